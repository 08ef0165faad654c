package app_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mediagw/internal/app"
	"mediagw/internal/config"
	"mediagw/internal/metadata"
	"mediagw/internal/objectstore"
)

func TestOpenLocalWithSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.New(
		config.WithStorageDriver(config.StorageLocal),
		config.WithDataDir(filepath.Join(dir, "data")),
		config.WithMetadata(config.MetadataSQLite, filepath.Join(dir, "db", "metadata.db")),
	)
	require.NoError(t, cfg.Validate())

	a, err := app.Open(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.IsType(t, &objectstore.LocalBackend{}, a.Backend)
	require.NoError(t, a.Backend.EnsureBucket(t.Context()))
	require.Empty(t, a.Store.Load(t.Context()))
}

func TestOpenMetadataJSON(t *testing.T) {
	t.Parallel()

	store, err := app.OpenMetadata(t.Context(), config.MetadataConfig{
		Driver: config.MetadataJSON,
		Path:   filepath.Join(t.TempDir(), "metadata.json"),
	})
	require.NoError(t, err)
	require.IsType(t, &metadata.FileStore{}, store)
}

func TestOpenMinioBackend(t *testing.T) {
	t.Parallel()

	backend, err := app.OpenBackend(t.Context(), config.New().Storage)
	require.NoError(t, err)
	require.IsType(t, &objectstore.MinioBackend{}, backend)
}

func TestOpenUnknownDrivers(t *testing.T) {
	t.Parallel()

	_, err := app.OpenBackend(t.Context(), config.StorageConfig{Driver: "ftp"})
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = app.OpenMetadata(t.Context(), config.MetadataConfig{Driver: "bolt", Path: "x"})
	require.ErrorContains(t, err, "unknown metadata driver")
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, app.SetupLogging(&buf, "debug"))
	require.Error(t, app.SetupLogging(&buf, "loud"))
}

func TestLockPathSitsBesideMetadata(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "metadata.json")
	lockPath, err := app.LockPath(config.MetadataConfig{Driver: config.MetadataJSON, Path: path})
	require.NoError(t, err)
	require.Equal(t, path+".lock", lockPath)
	require.DirExists(t, filepath.Dir(path))
}
