// Package server implements the `proxypulse server` command.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/proxypulse/proxypulse/internal/application/subscription"
	"github.com/proxypulse/proxypulse/internal/infrastructure/config"
	"github.com/proxypulse/proxypulse/internal/infrastructure/geoip"
	"github.com/proxypulse/proxypulse/internal/infrastructure/publisher"
	"github.com/proxypulse/proxypulse/internal/infrastructure/storage"
	"github.com/proxypulse/proxypulse/internal/infrastructure/xray"
	httpRouter "github.com/proxypulse/proxypulse/internal/interfaces/http"
	"github.com/proxypulse/proxypulse/internal/shared/goroutine"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the evaluator and the HTTP API",
		Long:  `Start the periodic proxy evaluation loop and the HTTP server exposing the cached results.`,
		RunE:  run,
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	log.Infow("starting proxypulse",
		"address", cfg.Server.GetAddr(),
		"feeds", len(cfg.Subscription.URLs),
		"batch_size", cfg.Probe.BatchSize)

	if _, err := os.Stat(cfg.Probe.XrayPath); err != nil {
		log.Warnw("engine binary not found, probe rounds will fail",
			"path", cfg.Probe.XrayPath)
	}

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewRedisStore(&cfg.Redis, log)
	defer store.Close()

	geo := geoip.NewResolver(&cfg.GeoIP, log)
	defer geo.Close()

	var pub subscription.Publisher
	if cfg.GitHub.PushEnabled && cfg.GitHub.Token != "" && cfg.GitHub.RepoURL != "" {
		pub = publisher.NewGitPublisher(&cfg.GitHub, log)
	}

	parser := subscription.NewParser(log)
	fetcher := subscription.NewFetcher(parser, log)
	runner := xray.NewRunner(&cfg.Probe, log)
	evaluator := subscription.NewEvaluator(
		&cfg.Subscription, &cfg.Probe, fetcher, runner, geo, log)
	service := subscription.NewService(
		&cfg.Subscription, &cfg.Cache, &cfg.GitHub, evaluator, store, pub, log)

	goroutine.SafeGo(log, "refresh-loop", func() {
		geo.Init(ctx)
		service.Run(ctx)
	})

	router := httpRouter.NewRouter(service, log)
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("http server starting", "address", cfg.Server.GetAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}
