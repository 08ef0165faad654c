// Package objectstoretest provides an in-memory objectstore.Backend for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"mediagw/internal/objectstore"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Backend keeps objects in memory and counts calls per operation.
// Fail* fields inject errors; BeforePut, when set, runs before every put
// and can be used to hold uploads at a barrier. OnPutRead sees the running
// byte count after every read from an upload body. BreakGetAfter, when
// positive, makes object bodies fail with ErrInjected after that many bytes.
type Backend struct {
	mu      sync.Mutex
	objects map[string]object
	calls   map[string]int

	FailPut    error
	FailGet    error
	FailDelete error
	FailList   error
	BeforePut  func(key string)
	OnPutRead  func(key string, total int64)

	BreakGetAfter int
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		calls:   make(map[string]int),
	}
}

// Calls reports how many times op ("put", "get", "delete", "list") ran.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// TotalCalls reports the number of calls across all operations.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// Keys returns the stored keys in sorted order.
func (b *Backend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Object returns the stored bytes for key.
func (b *Backend) Object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj.data, ok
}

// Seed stores data under key without counting a call.
func (b *Backend) Seed(key string, data []byte, contentType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: slices.Clone(data), contentType: contentType, modified: time.Now()}
}

func (b *Backend) record(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
}

func (b *Backend) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress objectstore.ProgressFunc) (objectstore.PutResult, error) {
	b.record("put")
	if b.BeforePut != nil {
		b.BeforePut(key)
	}
	if b.FailPut != nil {
		return objectstore.PutResult{}, b.FailPut
	}

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var n int64
	for {
		m, err := r.Read(chunk)
		if m > 0 {
			buf.Write(chunk[:m])
			n += int64(m)
			if b.OnPutRead != nil {
				b.OnPutRead(key, n)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return objectstore.PutResult{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return objectstore.PutResult{}, err
	}
	if progress != nil {
		progress(n, size)
	}

	b.Seed(key, buf.Bytes(), contentType)
	return objectstore.PutResult{
		Location: fmt.Sprintf("memory://bucket/%s", key),
		Size:     n,
	}, nil
}

func (b *Backend) GetObject(_ context.Context, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	b.record("get")
	if b.FailGet != nil {
		return nil, objectstore.ObjectInfo{}, b.FailGet
	}

	b.mu.Lock()
	obj, ok := b.objects[key]
	b.mu.Unlock()
	if !ok {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	}

	var body io.Reader = bytes.NewReader(obj.data)
	if b.BreakGetAfter > 0 && b.BreakGetAfter < len(obj.data) {
		body = io.MultiReader(bytes.NewReader(obj.data[:b.BreakGetAfter]), failingReader{})
	}

	return io.NopCloser(body), objectstore.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
	}, nil
}

func (b *Backend) DeleteObject(_ context.Context, key string) error {
	b.record("delete")
	if b.FailDelete != nil {
		return b.FailDelete
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *Backend) ListObjects(_ context.Context) ([]objectstore.ObjectInfo, error) {
	b.record("list")
	if b.FailList != nil {
		return nil, b.FailList
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]objectstore.ObjectInfo, 0, len(b.objects))
	for k, obj := range b.objects {
		infos = append(infos, objectstore.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	slices.SortFunc(infos, func(a, b objectstore.ObjectInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return infos, nil
}

func (b *Backend) EnsureBucket(context.Context) error {
	b.record("ensure")
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, ErrInjected
}

// ErrInjected is a convenience error for Fail* fields.
var ErrInjected = errors.New("injected failure")

var _ objectstore.Backend = (*Backend)(nil)
