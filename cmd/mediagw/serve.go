package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mediagw/internal/app"
	"mediagw/internal/config"
	"mediagw/internal/gateway"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address or port")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Backend.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to prepare bucket %q: %w", cfg.Storage.Bucket, err)
	}

	router := gateway.NewServer(a.Controller).Handler()

	// Transfers are unbounded in size, so only header reads are timed.
	httpServer := &http.Server{
		Addr:              config.ListenAddr(cfg.Listen),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Addr:              config.ListenAddr(cfg.TLS.Listen),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), httpsServer.Shutdown(shutdownCtx))
	})

	eg.Go(func() error {
		if !cfg.TLS.Enabled() {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting media gateway HTTPS server", "addr", httpsServer.Addr)
		err := httpsServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting media gateway HTTP server", "addr", httpServer.Addr, "storage", cfg.Storage.Driver, "bucket", cfg.Storage.Bucket)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Media gateway started")
	err = eg.Wait()
	slog.Info("Media gateway stopped")
	return err
}
