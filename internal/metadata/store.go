package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Store persists a Snapshot as a single unit. Load never fails: unreadable or
// corrupt state is logged and reported as an empty snapshot. Save replaces the
// persisted state in full.
//
// A Store on its own does no locking; two load-mutate-save cycles running at
// the same time will lose one of the mutations. Wrap it in a Serialized
// when more than one writer can be in flight, and give it a lock file when
// those writers can live in different processes.
type Store interface {
	Load(ctx context.Context) Snapshot
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Serialized gives a Store a single-writer discipline. Every mutation goes
// through Update, which holds a mutex across load, mutate and save. With
// WithLockFile the mutex is paired with an exclusive file lock, so writers
// in other processes sharing the same store are excluded as well.
type Serialized struct {
	store Store
	mu    sync.Mutex
	lock  *flock.Flock
}

type SerializedOption func(*Serialized)

// WithLockFile takes an exclusive flock on path around every write.
func WithLockFile(path string) SerializedOption {
	return func(s *Serialized) {
		s.lock = flock.New(path)
	}
}

// lockRetryDelay is how often a blocked writer retries the file lock.
const lockRetryDelay = 10 * time.Millisecond

// NewSerialized wraps store.
func NewSerialized(store Store, opts ...SerializedOption) *Serialized {
	s := &Serialized{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire takes the in-process mutex and, when configured, the file lock.
// The returned func releases both.
func (s *Serialized) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.lock == nil {
		return s.mu.Unlock, nil
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		s.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock metadata %s: %w", s.lock.Path(), err)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to release metadata lock", "path", s.lock.Path(), "err", err)
		}
		s.mu.Unlock()
	}, nil
}

// Load returns the current snapshot without taking the writer lock.
func (s *Serialized) Load(ctx context.Context) Snapshot {
	return s.store.Load(ctx)
}

// Save overwrites the persisted snapshot while holding the writer lock.
func (s *Serialized) Save(ctx context.Context, snap Snapshot) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.store.Save(ctx, snap)
}

// Update loads the current snapshot, passes it to fn and saves the result. If
// fn returns an error nothing is saved and the error is returned unchanged.
func (s *Serialized) Update(ctx context.Context, fn func(Snapshot) error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	snap := s.store.Load(ctx)
	if err := fn(snap); err != nil {
		return err
	}

	return s.store.Save(ctx, snap)
}

func (s *Serialized) Close() error {
	if s.lock != nil {
		_ = s.lock.Close()
	}
	return s.store.Close()
}
