// Package media implements create, read, update and delete of media objects,
// keeping the local metadata snapshot in step with the object store.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mediagw/internal/metadata"
	"mediagw/internal/transfer"
)

var (
	ErrNotFound = errors.New("media not found")
	ErrDecode   = errors.New("malformed upload")
)

// Upload is one decoded file part.
type Upload struct {
	Filename string
	MimeType string
	Body     io.Reader
}

// Decoder yields the file part of a request. It is called at most once per
// operation and only after any not-found check has passed, so a request for
// an unknown id never has its body read.
type Decoder func() (Upload, error)

// Result is returned by Create and Update.
type Result struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Option func(*Controller)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		c.now = fn
	}
}

// WithOrphanGrace sets how old an unrecorded object must be before
// Reconcile reports it. Younger objects may belong to a create that has
// uploaded but not yet saved its record.
func WithOrphanGrace(d time.Duration) Option {
	return func(c *Controller) {
		c.orphanGrace = d
	}
}

type Controller struct {
	store       *metadata.Serialized
	pipeline    *transfer.Pipeline
	newID       func() string
	now         func() time.Time
	orphanGrace time.Duration
}

func NewController(store *metadata.Serialized, pipeline *transfer.Pipeline, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		pipeline:    pipeline,
		newID:       uuid.NewString,
		now:         time.Now,
		orphanGrace: 15 * time.Minute,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a new object under a fresh id and records it. Nothing is
// recorded unless the upload succeeds. If the upload succeeds but the record
// cannot be saved the object is left in storage without a record.
func (c *Controller) Create(ctx context.Context, decode Decoder) (Result, error) {
	up, err := c.decode(decode)
	if err != nil {
		return Result{}, err
	}

	id := c.newID()
	res, err := c.pipeline.Upload(ctx, id, up.Body, up.MimeType)
	if err != nil {
		return Result{}, err
	}

	now := c.now().UTC()
	err = c.store.Update(ctx, func(snap metadata.Snapshot) error {
		snap[id] = metadata.Record{
			Filename:  up.Filename,
			MimeType:  up.MimeType,
			CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Object stored without metadata record", "id", id, "error", err)
		return Result{}, fmt.Errorf("failed to record %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Media created", "id", id, "filename", up.Filename, "mime_type", up.MimeType)
	return Result{ID: id, URL: res.Location}, nil
}

// Read opens the object recorded under id. The caller must close the
// returned object. When the store does not report a content type the
// recorded one is used.
func (c *Controller) Read(ctx context.Context, id string) (*transfer.Object, error) {
	rec, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	obj, err := c.pipeline.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	if obj.ContentType == "" {
		obj.ContentType = rec.MimeType
	}
	return obj, nil
}

// Update overwrites the object recorded under id with a new upload. The
// original creation time is kept. If the record is deleted while the upload
// is in flight the record stays deleted and ErrNotFound is returned; any
// object the upload left behind is reported by Reconcile as an orphan.
func (c *Controller) Update(ctx context.Context, id string, decode Decoder) (Result, error) {
	if _, err := c.lookup(ctx, id); err != nil {
		return Result{}, err
	}

	up, err := c.decode(decode)
	if err != nil {
		return Result{}, err
	}

	res, err := c.pipeline.Upload(ctx, id, up.Body, up.MimeType)
	if err != nil {
		return Result{}, err
	}

	now := c.now().UTC()
	err = c.store.Update(ctx, func(snap metadata.Snapshot) error {
		cur, ok := snap[id]
		if !ok {
			return fmt.Errorf("%w: %s deleted during update", ErrNotFound, id)
		}

		snap[id] = metadata.Record{
			Filename:  up.Filename,
			MimeType:  up.MimeType,
			CreatedAt: cur.CreatedAt,
			UpdatedAt: now,
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		slog.WarnContext(ctx, "Media deleted while update was uploading", "id", id)
		return Result{}, err
	}
	if err != nil {
		slog.ErrorContext(ctx, "Object replaced without metadata update", "id", id, "error", err)
		return Result{}, fmt.Errorf("failed to record %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Media updated", "id", id, "filename", up.Filename, "mime_type", up.MimeType)
	return Result{ID: id, URL: res.Location}, nil
}

// Delete removes the object recorded under id and then its record. Deleting
// an id that is no longer recorded is ErrNotFound.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if _, err := c.lookup(ctx, id); err != nil {
		return err
	}

	if err := c.pipeline.Remove(ctx, id); err != nil {
		return err
	}

	err := c.store.Update(ctx, func(snap metadata.Snapshot) error {
		delete(snap, id)
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Object deleted but record kept", "id", id, "error", err)
		return fmt.Errorf("failed to drop record %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Media deleted", "id", id)
	return nil
}

// Records returns a copy of the current snapshot.
func (c *Controller) Records(ctx context.Context) metadata.Snapshot {
	return c.store.Load(ctx).Clone()
}

func (c *Controller) lookup(ctx context.Context, id string) (metadata.Record, error) {
	rec, ok := c.store.Load(ctx)[id]
	if !ok {
		return metadata.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (c *Controller) decode(decode Decoder) (Upload, error) {
	up, err := decode()
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return Upload{}, err
		}
		return Upload{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if up.Body == nil {
		return Upload{}, fmt.Errorf("%w: no file part", ErrDecode)
	}

	if !transfer.ValidateType(up.MimeType) {
		return Upload{}, fmt.Errorf("%w: %q", transfer.ErrInvalidType, up.MimeType)
	}

	up.MimeType = transfer.CanonicalType(up.MimeType)
	return up, nil
}
