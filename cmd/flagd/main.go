package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/heysubinoy/flagstore/internal/api"
	"github.com/heysubinoy/flagstore/internal/store"
	"github.com/heysubinoy/flagstore/pkg/config"
	"github.com/heysubinoy/flagstore/pkg/kv"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flagd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:  "flagd",
		Usage: "serve feature flags over HTTP and gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file; environment variables override it",
				EnvVars: []string{"FLAGD_CONFIG"},
			},
		},
		Action: serve,
	}
	return app.Run(args)
}

func serve(cctx *cli.Context) error {
	cfg, err := config.LoadConfig(cctx.String("config"))
	if err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "flagd",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
	})

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer closeBackend()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storage := store.NewInstrumentedStorage(
		store.New(backend, store.Options{Prefix: cfg.KeyPrefix, Tenant: cfg.Tenant}),
		store.NewMetrics(reg),
	)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	api.RegisterFlagServiceServer(grpcServer, api.NewGRPCServer(storage, logger.Named("grpc")))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	mux := http.NewServeMux()
	api.NewServer(storage, logger.Named("http")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", api.MetricsHandler(reg))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown", "error", serr)
	}
	grpcServer.GracefulStop()
	return err
}

// openBackend builds the configured kv.Backend and a function releasing it.
func openBackend(ctx context.Context, cfg *config.Config, logger hclog.Logger) (kv.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rb, err := store.NewRedisBackendFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rb, func() { rb.Close() }, nil

	case config.BackendMemory:
		logger.Warn("using the in-memory backend; flags are lost on restart")
		return store.NewMemBackend(), func() {}, nil

	case config.BackendRaft:
		peers, err := cfg.ParsedRaftPeers()
		if err != nil {
			return nil, nil, err
		}
		servers := make([]raft.Server, 0, len(peers))
		for _, p := range peers {
			servers = append(servers, raft.Server{ID: raft.ServerID(p.ID), Address: raft.ServerAddress(p.Addr)})
		}
		node, err := store.OpenRaftNode(store.RaftNodeConfig{
			NodeID:    cfg.NodeID,
			BindAddr:  cfg.RaftAddr,
			DataDir:   cfg.RaftData,
			Bootstrap: cfg.RaftBootstrap,
			Peers:     servers,
		}, logger.Named("raft"))
		if err != nil {
			return nil, nil, err
		}
		return node.Backend, func() {
			if err := node.Close(); err != nil {
				logger.Warn("raft shutdown", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
