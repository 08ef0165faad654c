package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"mediagw/internal/app"
	"mediagw/internal/config"
	"mediagw/internal/media"
	"mediagw/internal/metadata"
	"mediagw/internal/ui"
)

type Server struct {
	controller *media.Controller
	gatewayURL string
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// uiRecords sorts records newest first.
func uiRecords(snap metadata.Snapshot) []ui.Record {
	records := make([]ui.Record, 0, len(snap))
	for id, rec := range snap {
		records = append(records, ui.Record{
			ID:        id,
			Filename:  rec.Filename,
			MimeType:  rec.MimeType,
			CreatedAt: formatTime(rec.CreatedAt),
			UpdatedAt: formatTime(rec.UpdatedAt),
		})
	}

	slices.SortFunc(records, func(a, b ui.Record) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return records
}

func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records := uiRecords(s.controller.Records(ctx))

	if err := ui.RecordsPage(s.gatewayURL, records).Render(ctx, w); err != nil {
		slog.Error("Render records page", "err", err)
		http.Error(w, "failed to render records page", http.StatusInternalServerError)
		return
	}
}

func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.controller.Reconcile(ctx, false)
	if err != nil {
		slog.Error("Reconcile", "err", err)
		http.Error(w, "failed to list stored objects", http.StatusInternalServerError)
		return
	}

	page := ui.ReportPage(ui.Report{Orphans: report.Orphans, Dangling: report.Dangling})
	if err := page.Render(ctx, w); err != nil {
		slog.Error("Render report page", "err", err)
		http.Error(w, "failed to render report page", http.StatusInternalServerError)
		return
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.Home)
	mux.HandleFunc("GET /report", s.Report)
	return mux
}

func Run(ctx context.Context) error {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if err := app.SetupLogging(os.Stdout, cfg.LogLevel); err != nil {
		return err
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &Server{
		controller: a.Controller,
		gatewayURL: cfg.UI.GatewayURL,
	}

	srv := &http.Server{
		Addr:              config.ListenAddr(cfg.UI.Listen),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting media gateway UI server", "addr", srv.Addr, "gateway", cfg.UI.GatewayURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("media gateway UI server failed: %w", err)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
