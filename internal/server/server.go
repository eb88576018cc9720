// Package server implements the gRPC Treestore service over pkg/conn.
package server

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/cliodb/internal/logger"
	"github.com/nainya/cliodb/internal/metrics"
	"github.com/nainya/cliodb/pkg/conn"
	"github.com/nainya/cliodb/pkg/rpc"
)

// Server implements rpc.TreestoreServer over a single Conn. It does not
// itself hold any database state; all reads and writes go through conn,
// which owns the cached Db snapshot and the write path into the transactor.
type Server struct {
	conn *conn.Conn
	log  *logger.Logger
	m    *metrics.Metrics

	startTime time.Time
}

// NewServer wraps c for serving over gRPC.
func NewServer(c *conn.Conn, log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{conn: c, log: log, m: m, startTime: time.Now()}
}

var _ rpc.TreestoreServer = (*Server)(nil)

// Transact applies req's items and reports the outcome, mirroring
// pkg/tx.Handle.Transact's semantics over the wire.
func (s *Server) Transact(ctx context.Context, req *rpc.TxRequest) (*rpc.TxReply, error) {
	start := time.Now()
	report := s.conn.Transact(req.Tx)

	if s.m != nil {
		s.m.RecordTx(report.Success, len(report.NewEntities), time.Since(start))
	}

	if !report.Success {
		s.log.TxLogger().Error(report.FailureMessage).Msg("transact rpc rejected")
		return &rpc.TxReply{Success: false, FailureMessage: report.FailureMessage}, nil
	}

	return &rpc.TxReply{Success: true, NewEntities: report.NewEntities}, nil
}

// Query runs req against the connection's current database snapshot.
func (s *Server) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryReply, error) {
	start := time.Now()

	current, err := s.conn.Db()
	if err != nil {
		if s.m != nil {
			s.m.RecordQuery(false, 0, time.Since(start))
		}
		return nil, status.Errorf(codes.Internal, "failed to load database: %v", err)
	}

	rel, err := current.Query(rpc.FromQueryRequest(req))
	if err != nil {
		if s.m != nil {
			s.m.RecordQuery(false, 0, time.Since(start))
		}
		return nil, status.Errorf(codes.InvalidArgument, "query failed: %v", err)
	}

	if s.m != nil {
		s.m.RecordQuery(true, len(rel.Tuples), time.Since(start))
	}

	return rpc.ToQueryReply(rel), nil
}
