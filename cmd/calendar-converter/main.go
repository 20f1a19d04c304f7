package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/calendar-converter/internal/app"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/observability"
	"github.com/joseph-ayodele/calendar-converter/internal/repository"
	"github.com/joseph-ayodele/calendar-converter/internal/server"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", getenv("CONFIG_PATH", "config.yaml"), "path to YAML config")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observability.Setup(ctx, cfg.Metrics, version, logger)
	if err != nil {
		logger.Error("failed to set up metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	if a.DB != nil {
		if err := repository.HealthCheck(ctx, a.DB, 5*time.Second, logger); err != nil {
			logger.Warn("history database unhealthy at startup", "error", err)
		}
	}

	hs := health.NewServer()
	a.Prober.Subscribe(server.HealthObserver(hs))
	if err := a.Prober.Start(ctx); err != nil {
		logger.Error("failed to start backend prober", "error", err)
		os.Exit(1)
	}

	var history *server.HistoryHandler
	if a.History != nil {
		history = server.NewHistoryHandler(a.History, a.Export, logger)
	}
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewHTTPServer(a.Converter, a.Avail, a.Prober, history, cfg.Limits.MaxFileSizeBytes(), logger).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcSrv := server.NewGRPCServer(a.Converter, hs, logger)
	var lis net.Listener
	if cfg.Server.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("calendar-converter grpc listening", "addr", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
				stop()
			}
		}()
	}

	logger.Info("calendar-converter http listening", "addr", httpSrv.Addr, "backends", len(cfg.LLM.Backends))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if lis != nil {
		hs.Shutdown()
		grpcSrv.GracefulStop()
	}
	a.Close(shutdownCtx)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
