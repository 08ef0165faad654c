package metadata_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediagw/internal/metadata"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var (
	created = time.Date(2025, 3, 4, 10, 11, 12, 0, time.UTC)
	updated = time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
)

func requireSameRecord(t *testing.T, want, got metadata.Record) {
	t.Helper()
	require.Equal(t, want.Filename, got.Filename, "filename")
	require.Equal(t, want.MimeType, got.MimeType, "mime type")
	require.Truef(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt: want %v got %v", want.CreatedAt, got.CreatedAt)
	require.Truef(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt: want %v got %v", want.UpdatedAt, got.UpdatedAt)
}

func newSQLiteStore(t *testing.T) *metadata.SQLiteStore {
	t.Helper()
	store, err := metadata.NewSQLiteStore(t.Context(), filepath.Join(t.TempDir(), "metadata.sqlite"))
	require.NoError(t, err, "NewSQLiteStore error")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) metadata.Store{
		"file": func(t *testing.T) metadata.Store {
			return metadata.NewFileStore(filepath.Join(t.TempDir(), "metadata.json"))
		},
		"sqlite": func(t *testing.T) metadata.Store {
			return newSQLiteStore(t)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newStore(t)
			ctx := t.Context()

			require.Empty(t, store.Load(ctx), "fresh store should be empty")

			snap := metadata.Snapshot{
				"a": {Filename: "a.jpg", MimeType: "image/jpeg", CreatedAt: created},
				"b": {Filename: "b.pdf", MimeType: "application/pdf", CreatedAt: created, UpdatedAt: updated},
			}
			require.NoError(t, store.Save(ctx, snap), "Save error")

			got := store.Load(ctx)
			require.Len(t, got, 2, "record count")
			requireSameRecord(t, snap["a"], got["a"])
			requireSameRecord(t, snap["b"], got["b"])

			// Save replaces the snapshot in full.
			delete(snap, "a")
			require.NoError(t, store.Save(ctx, snap), "Save error")

			got = store.Load(ctx)
			require.Len(t, got, 1, "record count after removal")
			require.NotContains(t, got, "a", "removed record should be gone")
		})
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := metadata.NewFileStore(filepath.Join(t.TempDir(), "does", "not", "exist.json"))
	require.Empty(t, store.Load(t.Context()))
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace", content: "  \n"},
		{name: "garbage", content: "{not json"},
		{name: "wrong shape", content: `["a", "b"]`},
		{name: "null", content: "null"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "metadata.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			snap := metadata.NewFileStore(path).Load(t.Context())
			require.NotNil(t, snap, "Load should never return nil")
			require.Empty(t, snap)
		})
	}
}

func TestFileStoreDocumentShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metadata.json")
	store := metadata.NewFileStore(path)

	require.NoError(t, store.Save(t.Context(), metadata.Snapshot{
		"id-1": {Filename: "a.jpg", MimeType: "image/jpeg", CreatedAt: created},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Human readable, two-space indented.
	require.True(t, strings.HasPrefix(string(data), "{\n  \"id-1\": {\n"), "unexpected layout:\n%s", data)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "a.jpg", raw["id-1"]["filename"])
	require.Equal(t, "image/jpeg", raw["id-1"]["mimetype"])
	require.Equal(t, "2025-03-04T10:11:12Z", raw["id-1"]["createdAt"])
	require.NotContains(t, raw["id-1"], "updatedAt", "zero updatedAt should be omitted")
}

func TestFileStoreReadsLegacyUploadedAt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metadata.json")
	legacy := `{"abc": {"filename": "scan.pdf", "mimetype": "application/pdf", "uploadedAt": "2025-03-04T10:11:12Z"}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	snap := metadata.NewFileStore(path).Load(t.Context())
	require.Contains(t, snap, "abc")
	requireSameRecord(t, metadata.Record{Filename: "scan.pdf", MimeType: "application/pdf", CreatedAt: created}, snap["abc"])
}

// TestUnserializedStoreLosesInterleavedUpdate pins down the hazard that
// Serialized exists to remove: two read-modify-write cycles that both load
// before either saves end with only the last writer's record.
func TestUnserializedStoreLosesInterleavedUpdate(t *testing.T) {
	t.Parallel()

	store := metadata.NewFileStore(filepath.Join(t.TempDir(), "metadata.json"))
	ctx := t.Context()

	first := store.Load(ctx)
	second := store.Load(ctx)

	first["first"] = metadata.Record{Filename: "1.png", MimeType: "image/png", CreatedAt: created}
	second["second"] = metadata.Record{Filename: "2.png", MimeType: "image/png", CreatedAt: created}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	got := store.Load(ctx)
	require.Len(t, got, 1, "the first mutation is overwritten")
	require.Contains(t, got, "second")
}

// recordingStore logs the order in which Load and Save are entered and parks
// every Load for a moment so that unsynchronized callers would overlap.
type recordingStore struct {
	metadata.Store

	mu  sync.Mutex
	ops []string
}

func (s *recordingStore) Load(ctx context.Context) metadata.Snapshot {
	s.mu.Lock()
	s.ops = append(s.ops, "load")
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx)
}

func (s *recordingStore) Save(ctx context.Context, snap metadata.Snapshot) error {
	s.mu.Lock()
	s.ops = append(s.ops, "save")
	s.mu.Unlock()
	return s.Store.Save(ctx, snap)
}

func TestSerializedUpdateKeepsEveryWriter(t *testing.T) {
	t.Parallel()

	inner := &recordingStore{Store: metadata.NewFileStore(filepath.Join(t.TempDir(), "metadata.json"))}
	store := metadata.NewSerialized(inner)

	const writers = 8
	start := make(chan struct{})

	eg, ctx := errgroup.WithContext(t.Context())
	for i := range writers {
		id := string(rune('a' + i))
		eg.Go(func() error {
			<-start
			return store.Update(ctx, func(snap metadata.Snapshot) error {
				snap[id] = metadata.Record{Filename: id + ".png", MimeType: "image/png", CreatedAt: created}
				return nil
			})
		})
	}
	close(start)
	require.NoError(t, eg.Wait())

	// Every load is immediately followed by its own save.
	inner.mu.Lock()
	ops := append([]string(nil), inner.ops...)
	inner.mu.Unlock()

	require.Len(t, ops, 2*writers)
	for i := 0; i < len(ops); i += 2 {
		require.Equal(t, []string{"load", "save"}, ops[i:i+2], "operations interleaved at %d: %v", i, ops)
	}

	require.Len(t, store.Load(t.Context()), writers, "no update may be lost")
}

func TestSerializedUpdateErrorSkipsSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metadata.json")
	store := metadata.NewSerialized(metadata.NewFileStore(path))

	sentinel := os.ErrInvalid
	err := store.Update(t.Context(), func(snap metadata.Snapshot) error {
		snap["x"] = metadata.Record{Filename: "x.png"}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "nothing should have been written")
}

func TestSnapshotClone(t *testing.T) {
	t.Parallel()

	snap := metadata.Snapshot{"a": {Filename: "a.png"}}
	clone := snap.Clone()
	clone["b"] = metadata.Record{Filename: "b.png"}

	require.Len(t, snap, 1)
	require.Len(t, clone, 2)
}

// parkedUpdate starts an Update on store that blocks inside its mutation until
// release is closed. It returns once the mutation has started.
func parkedUpdate(t *testing.T, store *metadata.Serialized, fn func(metadata.Snapshot), release <-chan struct{}) <-chan error {
	t.Helper()

	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.Update(context.Background(), func(snap metadata.Snapshot) error {
			close(entered)
			<-release
			fn(snap)
			return nil
		})
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("update never started")
	}
	return done
}

func TestSerializedLockFileExcludesOtherProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	lockPath := path + ".lock"

	// Two independent wrappers over the same file, as the gateway and a
	// reconcile run from the command line would have.
	server := metadata.NewSerialized(metadata.NewFileStore(path), metadata.WithLockFile(lockPath))
	cli := metadata.NewSerialized(metadata.NewFileStore(path), metadata.WithLockFile(lockPath))
	t.Cleanup(func() {
		_ = server.Close()
		_ = cli.Close()
	})

	require.NoError(t, server.Save(t.Context(), metadata.Snapshot{
		"dangling": {Filename: "gone.png", MimeType: "image/png", CreatedAt: created},
	}))

	release := make(chan struct{})
	serverDone := parkedUpdate(t, server, func(snap metadata.Snapshot) {
		snap["new-create"] = metadata.Record{Filename: "new.png", MimeType: "image/png", CreatedAt: created}
	}, release)

	cliEntered := make(chan struct{})
	cliDone := make(chan error, 1)
	go func() {
		cliDone <- cli.Update(context.Background(), func(snap metadata.Snapshot) error {
			close(cliEntered)
			delete(snap, "dangling")
			return nil
		})
	}()

	select {
	case <-cliEntered:
		t.Fatal("second writer ran while the first held the lock")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-serverDone)
	require.NoError(t, <-cliDone)

	snap := metadata.NewFileStore(path).Load(t.Context())
	require.Contains(t, snap, "new-create")
	require.NotContains(t, snap, "dangling")
}

func TestSerializedLockFileHonorsContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metadata.json")
	holder := metadata.NewSerialized(metadata.NewFileStore(path), metadata.WithLockFile(path+".lock"))
	waiter := metadata.NewSerialized(metadata.NewFileStore(path), metadata.WithLockFile(path+".lock"))
	t.Cleanup(func() {
		_ = holder.Close()
		_ = waiter.Close()
	})

	release := make(chan struct{})
	done := parkedUpdate(t, holder, func(metadata.Snapshot) {}, release)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := waiter.Update(ctx, func(metadata.Snapshot) error {
		t.Error("mutation ran without the lock")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}
