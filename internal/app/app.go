// Package app builds the gateway's components from a config.Config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"mediagw/internal/config"
	"mediagw/internal/media"
	"mediagw/internal/metadata"
	"mediagw/internal/objectstore"
	"mediagw/internal/transfer"
)

// SetupLogging installs a charmbracelet/log handler as the slog default.
func SetupLogging(w io.Writer, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))
	return nil
}

// OpenMetadata opens the configured metadata store.
func OpenMetadata(ctx context.Context, cfg config.MetadataConfig) (metadata.Store, error) {
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve metadata path: %w", err)
	}

	switch cfg.Driver {
	case config.MetadataJSON:
		return metadata.NewFileStore(path), nil
	case config.MetadataSQLite:
		return metadata.NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown metadata driver %q", cfg.Driver)
	}
}

// LockPath returns the file every process writing the metadata store at
// cfg.Path locks, so the gateway and a concurrent reconcile do not lose each
// other's updates. Its directory is created if missing.
func LockPath(cfg config.MetadataConfig) (string, error) {
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve metadata path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return path + ".lock", nil
}

// OpenBackend creates the configured object storage backend.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (objectstore.Backend, error) {
	switch cfg.Driver {
	case config.StorageMinio:
		return objectstore.NewMinioBackend(objectstore.MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			PartSize:  cfg.PartSize,
		})
	case config.StorageS3:
		return objectstore.NewS3Backend(ctx, objectstore.S3Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			PartSize:  int64(cfg.PartSize),
		})
	case config.StorageLocal:
		dataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		return objectstore.NewLocalBackend(dataDir, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// App holds the wired components.
type App struct {
	Config     config.Config
	Backend    objectstore.Backend
	Store      *metadata.Serialized
	Controller *media.Controller
}

// Open wires a Controller from cfg.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	store, err := OpenMetadata(ctx, cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	lockPath, err := LockPath(cfg.Metadata)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	serialized := metadata.NewSerialized(store, metadata.WithLockFile(lockPath))
	controller := media.NewController(serialized, transfer.New(backend),
		media.WithOrphanGrace(cfg.Reconcile.OrphanGrace),
	)

	slog.Debug("Components wired",
		"storage", cfg.Storage.Driver,
		"bucket", cfg.Storage.Bucket,
		"metadata", cfg.Metadata.Driver,
		"metadata_path", cfg.Metadata.Path,
		"lock_path", lockPath,
	)

	return &App{
		Config:     cfg,
		Backend:    backend,
		Store:      serialized,
		Controller: controller,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
