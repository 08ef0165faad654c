package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// FileStore keeps the snapshot as one indented JSON document on the local
// filesystem. Writes go to a temporary file that is renamed over the target,
// so a concurrent Load sees either the old or the new document, never a
// partial one.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the document at path. The file
// does not need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.ErrorContext(ctx, "Failed to load metadata", "path", s.path, "err", err)
		}
		return Snapshot{}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.ErrorContext(ctx, "Failed to load metadata", "path", s.path, "err", err)
		return Snapshot{}
	}

	if snap == nil {
		return Snapshot{}
	}
	return snap
}

func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	slog.DebugContext(ctx, "Saved metadata", "path", s.path, "records", len(snap))
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
