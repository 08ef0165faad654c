package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mediagw/internal/media"
	"mediagw/internal/metadata"
	"mediagw/internal/objectstore"
	"mediagw/internal/transfer"
)

func newTestUI(t *testing.T) (*httptest.Server, *metadata.Serialized, *objectstore.LocalBackend) {
	t.Helper()

	backend := objectstore.NewLocalBackend(t.TempDir(), "media")
	store := metadata.NewSerialized(metadata.NewFileStore(filepath.Join(t.TempDir(), "metadata.json")))

	server := &Server{
		controller: media.NewController(store, transfer.New(backend), media.WithOrphanGrace(0)),
		gatewayURL: "http://gw:3000",
	}

	httpSrv := httptest.NewServer(server.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv, store, backend
}

func get(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHomeListsRecords(t *testing.T) {
	t.Parallel()

	httpSrv, store, _ := newTestUI(t)
	require.NoError(t, store.Save(t.Context(), metadata.Snapshot{
		"id-1": {Filename: "a.jpg", MimeType: "image/jpeg", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}))

	body := get(t, httpSrv.URL+"/")
	require.Contains(t, body, "http://gw:3000/media/id-1")
	require.Contains(t, body, "a.jpg")
	require.Contains(t, body, "2025-01-01T00:00:00Z")
}

func TestReportShowsOrphans(t *testing.T) {
	t.Parallel()

	httpSrv, _, backend := newTestUI(t)
	_, err := backend.PutObject(t.Context(), "orphan-object", bytes.NewReader([]byte("x")), 1, "image/png", nil)
	require.NoError(t, err)

	body := get(t, httpSrv.URL+"/report")
	require.Contains(t, body, "<code>orphan-object</code>")
}

func TestUIRecordsOrder(t *testing.T) {
	t.Parallel()

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	records := uiRecords(metadata.Snapshot{
		"b": {CreatedAt: older},
		"a": {CreatedAt: newer},
		"c": {CreatedAt: older},
	})

	ids := []string{records[0].ID, records[1].ID, records[2].ID}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}
