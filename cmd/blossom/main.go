package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blossom/internal/blossom"
	"blossom/internal/config"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

func Run(ctx context.Context) error {

	configPath := flag.String("config", "config/config.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	level := log.DebugLevel
	if cfg.Env == "production" {
		level = log.InfoLevel
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	server, err := blossom.NewServer(ctx, blossom.Config{
		DBPath:               cfg.DB.Path,
		BaseURL:              cfg.CDN.BaseURL,
		WhitelistedPubkeys:   cfg.CDN.WhitelistedPubkeys,
		WhitelistedMimeTypes: cfg.CDN.WhitelistedMimeTypes,
		MinUploadSizeBytes:   cfg.CDN.MinUploadSizeBytes,
		MaxUploadSizeBytes:   cfg.CDN.MaxUploadSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create blossom server: %w", err)
	}

	defer server.Close()

	router := server.Handler()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port+1),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		<-ctx.Done()
		return httpsServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		if cfg.TLS.Cert == "" || cfg.TLS.Key == "" {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting Blossom HTTPS server", "addr", httpsServer.Addr)
		err := httpsServer.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting Blossom HTTP server", "addr", httpServer.Addr)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Blossom started", "base_url", cfg.CDN.BaseURL)
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Blossom exited with error", "error", err)
		os.Exit(1)
	}
}
