// Integration tests for the cliodb gRPC server
package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/cliodb/internal/logger"
	"github.com/nainya/cliodb/internal/metrics"
	"github.com/nainya/cliodb/pkg/conn"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv/memstore"
	"github.com/nainya/cliodb/pkg/query"
	"github.com/nainya/cliodb/pkg/rpc"
	"github.com/nainya/cliodb/pkg/tx"
)

const bufSize = 1024 * 1024

func setupTestServer(t *testing.T) (rpc.TreestoreServer, *rpc.Client, func()) {
	store := memstore.New()
	handle, err := tx.Start(store, "", tx.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to start transactor: %v", err)
	}

	c := conn.New(store, handle, 64)
	log := logger.NewLogger(logger.Config{Level: "error"})
	m := metrics.NewMetrics()
	srv := NewServer(c, log, m)

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	rpc.RegisterTreestoreServer(grpcServer, srv)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}

	ctx := context.Background()
	cc, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(rpc.DefaultCallOption()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}

	client := rpc.NewClient(cc)

	cleanup := func() {
		cc.Close()
		grpcServer.Stop()
		lis.Close()
		handle.Close()
	}

	return srv, client, cleanup
}

func TestTransactCreatesEntity(t *testing.T) {
	_, client, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	reply, err := client.Transact(ctx, &rpc.TxRequest{
		Tx: fact.Tx{Items: []fact.TxItem{
			fact.NewEntityItem(map[string]fact.Value{
				"db:ident": fact.IdentValue("color/red"),
			}),
		}},
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if !reply.Success {
		t.Fatalf("expected success, got failure: %s", reply.FailureMessage)
	}
	if len(reply.NewEntities) != 1 {
		t.Fatalf("expected 1 new entity, got %d", len(reply.NewEntities))
	}
}

func TestTransactRejectsRetractionOfNonexistentFact(t *testing.T) {
	_, client, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	reply, err := client.Transact(ctx, &rpc.TxRequest{
		Tx: fact.Tx{Items: []fact.TxItem{
			fact.Retract(fact.Entity(999), "db:ident", fact.IdentValue("nope")),
		}},
	})
	if err == nil && reply.Success {
		t.Fatal("expected retracting a nonexistent fact to fail")
	}
}

func TestQueryAfterTransact(t *testing.T) {
	_, client, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	_, err := client.Transact(ctx, &rpc.TxRequest{
		Tx: fact.Tx{Items: []fact.TxItem{
			fact.NewEntityItem(map[string]fact.Value{
				"db:ident": fact.IdentValue("color/blue"),
			}),
		}},
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	e := query.NewVar("e")
	q := query.Query{
		Find: []query.Var{e},
		Clauses: []query.Clause{
			{Entity: query.Unbound(e), Attribute: query.BoundIdent("db:ident"),
				Value: query.Bound(fact.IdentValue("color/blue"))},
		},
	}

	reply, err := client.Query(ctx, rpc.ToQueryRequest(q))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(reply.Tuples) != 1 {
		t.Fatalf("expected 1 result tuple, got %d", len(reply.Tuples))
	}
}
