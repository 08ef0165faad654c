package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by GetObject when the key does not exist in the
// bucket.
var ErrNotFound = errors.New("object not found")

// ProgressFunc receives the number of bytes sent so far and the total size of
// the upload, or -1 if the total is not known in advance.
type ProgressFunc func(loaded int64, total int64)

// PutResult describes a completed upload.
type PutResult struct {
	// Location is the URL at which the object can be addressed.
	Location string
	Size     int64
	ETag     string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Backend is an object-storage service scoped to a single bucket.
type Backend interface {
	// PutObject streams r to the object at key. size may be -1 when the
	// length is unknown; implementations must then upload in bounded parts
	// rather than reading r into memory. progress may be nil.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (PutResult, error)

	// GetObject opens the object at key for reading. It returns ErrNotFound
	// if the key does not exist. The caller must close the returned reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// DeleteObject removes the object at key.
	DeleteObject(ctx context.Context, key string) error

	// ListObjects returns every object in the bucket.
	ListObjects(ctx context.Context) ([]ObjectInfo, error)

	// EnsureBucket creates the bucket if it does not exist yet.
	EnsureBucket(ctx context.Context) error
}
