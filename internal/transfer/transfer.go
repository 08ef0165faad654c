// Package transfer connects HTTP request and response bodies to an object
// storage backend without holding whole payloads in memory.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"mediagw/internal/objectstore"
)

var (
	ErrInvalidType     = errors.New("invalid file type")
	ErrObjectNotFound  = errors.New("object not found in storage")
	ErrUpload          = errors.New("upload failed")
	ErrDelete          = errors.New("delete failed")
	ErrTransfer        = errors.New("transfer failed")
	allowedMimeTypes   = []string{"image/jpeg", "image/png", "application/pdf"}
	downloadBufferSize = 32 * 1024
)

// AllowedTypes returns the content types accepted for upload.
func AllowedTypes() []string {
	return slices.Clone(allowedMimeTypes)
}

// CanonicalType lower-cases mimeType and trims surrounding whitespace.
func CanonicalType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// ValidateType reports whether mimeType is on the upload allow-list. The
// comparison ignores case and surrounding whitespace but not parameters.
func ValidateType(mimeType string) bool {
	return slices.Contains(allowedMimeTypes, CanonicalType(mimeType))
}

// Pipeline moves bytes between callers and a storage backend.
type Pipeline struct {
	backend objectstore.Backend
}

// New returns a Pipeline over backend.
func New(backend objectstore.Backend) *Pipeline {
	return &Pipeline{backend: backend}
}

// UploadResult describes a stored object.
type UploadResult struct {
	Location string
	Size     int64
}

// Upload streams body to the backend under key. The content type is checked
// before anything is sent; a rejected type never reaches the backend. The
// object is stored with the canonical form of mimeType.
func (p *Pipeline) Upload(ctx context.Context, key string, body io.Reader, mimeType string) (UploadResult, error) {
	if !ValidateType(mimeType) {
		return UploadResult{}, fmt.Errorf("%w: %q", ErrInvalidType, mimeType)
	}
	mimeType = CanonicalType(mimeType)

	log := slog.With("key", key, "mime_type", mimeType)
	res, err := p.backend.PutObject(ctx, key, body, -1, mimeType, func(loaded, total int64) {
		log.DebugContext(ctx, "Upload progress", "loaded", loaded, "total", total)
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	log.InfoContext(ctx, "Object uploaded", "location", res.Location, "size", res.Size)
	return UploadResult{Location: res.Location, Size: res.Size}, nil
}

// Object is an open read stream on a stored object.
type Object struct {
	io.ReadCloser
	Key         string
	ContentType string
	Size        int64
}

// Open starts reading the object at key.
func (p *Pipeline) Open(ctx context.Context, key string) (*Object, error) {
	rc, info, err := p.backend.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	return &Object{
		ReadCloser:  rc,
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

// WriteTo forwards the object to w one chunk at a time, flushing after each
// chunk when w supports it. The pipeline never reads ahead of the writer, so
// a slow client throttles the backend read. A failure part way through is
// returned wrapped in ErrTransfer; bytes already written stay written.
func (o *Object) WriteTo(w io.Writer) (int64, error) {
	flush := func() {}
	if rw, ok := w.(http.ResponseWriter); ok {
		rc := http.NewResponseController(rw)
		flush = func() { _ = rc.Flush() }
	}

	buf := make([]byte, downloadBufferSize)
	var written int64
	for {
		n, readErr := o.ReadCloser.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, fmt.Errorf("%w: write %q: %w", ErrTransfer, o.Key, writeErr)
			}
			if m != n {
				return written, fmt.Errorf("%w: write %q: %w", ErrTransfer, o.Key, io.ErrShortWrite)
			}
			flush()
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("%w: read %q: %w", ErrTransfer, o.Key, readErr)
		}
	}
}

// Remove deletes the object at key.
func (p *Pipeline) Remove(ctx context.Context, key string) error {
	if err := p.backend.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	slog.InfoContext(ctx, "Object deleted", "key", key)
	return nil
}

// List returns every object currently held by the backend.
func (p *Pipeline) List(ctx context.Context) ([]objectstore.ObjectInfo, error) {
	objects, err := p.backend.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	return objects, nil
}
