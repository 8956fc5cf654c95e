package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/bootstrap"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ingest"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/server"
)

// base64 inflates uploads by a third, plus room for the other fields
const maxRecvMsgSize = server.MaxUploadBytes*4/3 + 1<<20

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.DB.HealthCheck(ctx, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	queue := app.NewQueue()

	if src, err := app.NewSQSSource(ctx); err != nil {
		logger.Error("failed to configure sqs source", "error", err)
		os.Exit(1)
	} else if src != nil {
		go func() {
			if err := src.Run(ctx, queue); err != nil {
				logger.Error("sqs source stopped", "error", err)
			}
		}()
	}

	if len(cfg.Queue.WatchDirs) > 0 {
		watch := ingest.WatchConfig{
			Roots:       cfg.Queue.WatchDirs,
			InitialScan: cfg.Queue.WatchInitialScan,
			Debounce:    500 * time.Millisecond,
		}
		go func() {
			err := ingest.WatchAndEnqueue(ctx, queue, watch, ingest.DirectoryOptions{SkipHidden: true}, logger)
			if err != nil && ctx.Err() == nil {
				logger.Error("directory watcher stopped", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.UnaryInterceptor(server.LoggingInterceptor(logger)),
	)
	server.RegisterExtractorServiceServer(grpcServer, server.NewExtractorService(app.ServerDeps(queue), logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info("docextractd listening", "addr", addr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.Timeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
