package metadata

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS
)

// SQLiteStore keeps one row per Record in an embedded SQLite database. Save
// still has whole-snapshot semantics, but it is applied inside a single
// transaction.
type SQLiteStore struct {
	db *sql.DB
}

// initSchema applies all SQL files in the embedded migrations directory in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite allows a single writer; a one-connection pool avoids
	// "database is locked" errors between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) Snapshot {
	rows, err := s.db.QueryContext(ctx, `SELECT id, filename, mime_type, created_at, updated_at FROM media_records`)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load metadata", "err", err)
		return Snapshot{}
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var (
			id        string
			rec       Record
			createdAt sql.NullTime
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&id, &rec.Filename, &rec.MimeType, &createdAt, &updatedAt); err != nil {
			slog.ErrorContext(ctx, "Failed to load metadata", "err", err)
			return Snapshot{}
		}
		if createdAt.Valid {
			rec.CreatedAt = createdAt.Time.UTC()
		}
		if updatedAt.Valid {
			rec.UpdatedAt = updatedAt.Time.UTC()
		}
		snap[id] = rec
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "Failed to load metadata", "err", err)
		return Snapshot{}
	}

	return snap
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_records`); err != nil {
			return fmt.Errorf("clear records: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO media_records(id, filename, mime_type, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for id, rec := range snap {
			if _, err := stmt.ExecContext(ctx, id, rec.Filename, rec.MimeType, nullTime(rec.CreatedAt), nullTime(rec.UpdatedAt)); err != nil {
				return fmt.Errorf("insert record %q: %w", id, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
