// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/api"
	"github.com/kbforge/ingest/internal/client"
	"github.com/kbforge/ingest/internal/clock/system"
	"github.com/kbforge/ingest/internal/config"
	"github.com/kbforge/ingest/internal/id/uuid"
	"github.com/kbforge/ingest/internal/logging"
	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/store"
	"github.com/kbforge/ingest/internal/store/memory"
	"github.com/kbforge/ingest/internal/store/postgres"
	"github.com/kbforge/ingest/internal/tracker"
	"github.com/kbforge/ingest/internal/tracker/sinks"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opStore store.OperationStore
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewOperationStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		defer pgStore.Close()
		opStore = pgStore
		logger.Info("operation history persisted to postgres")
	} else {
		opStore = memory.NewOperationStore()
		logger.Info("operation history kept in memory")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}

	trk := tracker.New(
		system.New(),
		logger.Named("tracker"),
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(opStore, logger.Named("store")),
	)

	var resolver request.Resolver
	if cfg.Resolver.Enabled {
		resolver = request.NewDoHResolver(cfg.Resolver.BaseURL, cfg.ResolverTimeout(), logger.Named("resolver"))
	}
	builder := request.NewBuilder(resolver, cfg.Ingest.MaxDepthDefault, logger.Named("request"))
	backend := client.New(cfg.Backend.BaseURL, cfg.BackendTimeout(), logger.Named("client"))

	apiServer := api.NewServer(
		backend,
		builder,
		trk,
		uuid.New(),
		cfg,
		logger.Named("api"),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	apiServer.Shutdown()
	if err := trk.Close(shutdownCtx); err != nil {
		logger.Error("tracker close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
