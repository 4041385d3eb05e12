package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/config"
	"github.com/dukerupert/maycafe/internal/database"
	"github.com/dukerupert/maycafe/internal/email"
	"github.com/dukerupert/maycafe/internal/metrics"
	"github.com/dukerupert/maycafe/internal/server"
)

const cleanupInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func newBlobStore(cfg *config.Config) blob.Store {
	if cfg.BlobBackend == config.BlobS3 {
		return blob.NewS3Store(blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return blob.NewLocalStore(cfg.UploadDir)
}

func runServe(cfg *config.Config) error {
	logger := slog.Default()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("postmark token not set, password reset mail is disabled")
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("admin password hash not set, admin login is disabled")
	}

	srv := server.New(db, cfg, newBlobStore(cfg), emailClient, metrics.New(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.Cleanup(ctx)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("maycafe listening", "addr", cfg.Addr(), "blob_backend", cfg.BlobBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			srv.Stop()
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	srv.Stop()
	return nil
}
