// cliodb gRPC server
// Serves a Datalog-queryable, append-only temporal database over gRPC.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/cliodb/internal/logger"
	"github.com/nainya/cliodb/internal/metrics"
	"github.com/nainya/cliodb/internal/server"
	"github.com/nainya/cliodb/pkg/conn"
	"github.com/nainya/cliodb/pkg/kv"
	"github.com/nainya/cliodb/pkg/kv/memstore"
	"github.com/nainya/cliodb/pkg/kv/pagestore"
	"github.com/nainya/cliodb/pkg/rpc"
	"github.com/nainya/cliodb/pkg/tx"
)

var (
	listenAddr        = flag.String("listen", "tcp://127.0.0.1:10405", "gRPC listen address (scheme://host:port)")
	dbURI             = flag.String("db", "cliodb:mem:", "database URI, scheme:backend:location")
	logLevel          = flag.String("log-level", "info", "log level: debug, info, warn, error")
	logPretty         = flag.Bool("log-pretty", false, "pretty-print logs for development")
	metricsAddr       = flag.String("metrics-addr", ":9405", "observability HTTP server address")
	nodeCacheSize     = flag.Int("node-cache-size", 1024, "durable tree node cache size, in nodes")
	rebuildThreshold  = flag.Int("rebuild-threshold", 100_000, "mem-index size that triggers a background rebuild")
	throttleThreshold = flag.Int("throttle-threshold", 1_000_000, "mem-index size past which writes are throttled")
)

// openStore opens the backend named by uri, of the form scheme:backend:location.
// Only the backend and location segments are meaningful; scheme is reserved
// for future transport selection and is presently ignored.
func openStore(uri string) (kv.Store, error) {
	parts := strings.SplitN(uri, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed db uri %q, want scheme:backend:location", uri)
	}
	backend, location := parts[1], parts[2]

	switch backend {
	case "mem":
		return memstore.New(), nil
	case "pagestore":
		return pagestore.Open(location)
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
}

func main() {
	flag.Parse()

	log := logger.NewLogger(logger.Config{Level: *logLevel, Pretty: *logPretty})
	m := metrics.NewMetrics()

	store, err := openStore(*dbURI)
	if err != nil {
		log.Fatal("failed to open database").Str("db", *dbURI).Err(err).Send()
	}

	txConfig := tx.Config{
		CacheSize:         *nodeCacheSize,
		RebuildThreshold:  *rebuildThreshold,
		ThrottleThreshold: *throttleThreshold,
		Logger:            log,
		Metrics:           m,
	}

	walPath := ""
	if parts := strings.SplitN(*dbURI, ":", 3); len(parts) == 3 && parts[1] == "pagestore" {
		walPath = parts[2] + ".wal"
	}

	handle, err := tx.Start(store, walPath, txConfig)
	if err != nil {
		log.Fatal("failed to start transactor").Err(err).Send()
	}
	defer handle.Close()

	connHandle := conn.New(store, handle, *nodeCacheSize)
	treeServer := server.NewServer(connHandle, log, m)

	netAddr := *listenAddr
	if idx := strings.Index(netAddr, "://"); idx >= 0 {
		netAddr = netAddr[idx+3:]
	}

	lis, err := net.Listen("tcp", netAddr)
	if err != nil {
		log.Fatal("failed to listen").Str("addr", netAddr).Err(err).Send()
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
		grpc.MaxRecvMsgSize(100*1024*1024),
		grpc.MaxSendMsgSize(100*1024*1024),
	)
	rpc.RegisterTreestoreServer(grpcServer, treeServer)
	reflection.Register(grpcServer)

	obsServer := server.NewObservabilityServer(parsePort(*metricsAddr), log)
	go func() {
		if err := obsServer.Start(); err != nil {
			log.Error("observability server failed").Err(err).Send()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.LogServerShutdown()
		grpcServer.GracefulStop()
	}()

	log.LogServerStart(lis.Addr().(*net.TCPAddr).Port, *dbURI)
	log.LogServerReady(lis.Addr().(*net.TCPAddr).Port)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("failed to serve").Err(err).Send()
	}
}

func parsePort(addr string) int {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0
	}
	var port int
	fmt.Sscanf(addr[idx+1:], "%d", &port)
	return port
}
