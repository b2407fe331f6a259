// Command judgeworker runs the judge worker binary: it serves the intake
// HTTP API, drives the task-info cache's update worker, and owns a fixed
// pool of judge workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"judgeworker/internal/compile"
	appconfig "judgeworker/internal/config"
	"judgeworker/internal/intake"
	"judgeworker/internal/judge"
	"judgeworker/internal/pool"
	"judgeworker/internal/report"
	"judgeworker/internal/sandbox"
	"judgeworker/internal/taskcache"
	pkglogger "judgeworker/pkg/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "config.json"
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "path to config.json")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := pkglogger.New(pkglogger.Config{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	driver := sandbox.NewDriver(sandbox.Config{BinaryPath: cfg.SandboxBinary}, log)
	registry := compile.NewRegistry(compile.DefaultLanguages())
	boxDir := func(boxID int) string { return sandbox.BoxPath("/var/local/lib/isolate", boxID) }
	preparer := compile.NewPreparer(registry, driver, cfg.WorkRoot, boxDir)
	metaPath := func(boxID int) string {
		return filepath.Join(cfg.WorkRoot, fmt.Sprintf("meta-%d.txt", boxID))
	}

	frontend := taskcache.NewFrontend(cfg.FrontendURL, cfg.SecretKey, nil)
	cache := taskcache.New(cfg.CacheDir, frontend, log)
	if err := cache.LoadState(cfg.StateFile); err != nil {
		log.Warn("task cache state load failed, starting cold", zap.Error(err))
	}

	pipeline := judge.NewPipeline(preparer, driver, registry, metaPath, log)
	workerPool := pool.New(cfg.WorkerCount, cfg.WorkerCount*4, pipeline, driver, log)

	reportClient := report.New(report.Config{
		FrontendURL: cfg.FrontendURL,
		Secret:      cfg.SecretKey,
		MaxRetries:  cfg.ReportMaxRetries,
		BaseDelay:   cfg.ReportBaseDelay,
		MaxDelay:    cfg.ReportMaxDelay,
	}, log)

	server := intake.New(cfg.SecretKey, cache, workerPool, reportClient, nil, log)

	updateCtx, stopUpdateWorker := context.WithCancel(context.Background())
	defer stopUpdateWorker()
	go cache.RunUpdateWorker(updateCtx)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Engine(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("judgeworker http server started", zap.String("addr", cfg.ListenAddr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped unexpectedly", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		log.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	stopUpdateWorker()
	workerPool.Shutdown()

	if err := cache.SaveState(cfg.StateFile); err != nil {
		log.Error("task cache state save failed", zap.Error(err))
	}

	return nil
}
