package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/infra/httpserver"
	"github.com/deepfake-detector/api/internal/infra/tracing"
	"github.com/deepfake-detector/api/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadBase()
	if err != nil {
		return err
	}
	c := &components{cfg: cfg, log: log}
	defer c.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		c.closers = append(c.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tp.Shutdown(sctx)
		})
	}

	if err := c.openDatabase(ctx); err != nil {
		return err
	}
	if err := c.openImages(ctx); err != nil {
		return err
	}
	c.openRetraining()
	if err := c.openClassifier(); err != nil {
		return err
	}

	evidenceSvc := c.evidenceService()
	analysisSvc, err := c.analysisService(evidenceSvc)
	if err != nil {
		return err
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: c.db},
		"storage":  c.images,
	}
	handler := httpserver.NewRouter(analysisSvc, evidenceSvc, c.feedbackService(), httpserver.Options{
		Logger:          log,
		MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		HealthCheckers:  checkers,
		ModelLoaded:     func() bool { return c.classifier != nil },
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("model_version", modelVersion(cfg)),
			zap.String("build", buildVersion),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
