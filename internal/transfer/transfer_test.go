package transfer_test

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mediagw/internal/objectstore/objectstoretest"
	"mediagw/internal/transfer"
)

func TestValidateType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime string
		want bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"application/pdf", true},
		{"IMAGE/PNG", true},
		{" image/jpeg ", true},
		{"text/plain", false},
		{"image/gif", false},
		{"image/jpeg; charset=binary", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.mime, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, transfer.ValidateType(tc.mime))
		})
	}
}

func TestAllowedTypesIsACopy(t *testing.T) {
	t.Parallel()

	types := transfer.AllowedTypes()
	require.Len(t, types, 3)
	types[0] = "text/plain"
	require.False(t, transfer.ValidateType("text/plain"))
}

func TestUploadRejectsInvalidTypeWithoutBackendCall(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	p := transfer.New(backend)

	_, err := p.Upload(t.Context(), "id-1", strings.NewReader("hello"), "text/plain")
	require.ErrorIs(t, err, transfer.ErrInvalidType)
	require.Zero(t, backend.TotalCalls())
}

func TestUploadStoresBytes(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	p := transfer.New(backend)

	payload := bytes.Repeat([]byte{0xff, 0xd8}, 4096)
	res, err := p.Upload(t.Context(), "id-1", bytes.NewReader(payload), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "memory://bucket/id-1", res.Location)
	require.Equal(t, int64(len(payload)), res.Size)

	stored, ok := backend.Object("id-1")
	require.True(t, ok)
	require.Equal(t, payload, stored)
}

func TestUploadStreamsBody(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	firstRead := make(chan int64, 1)
	backend.OnPutRead = func(_ string, total int64) {
		select {
		case firstRead <- total:
		default:
		}
	}
	p := transfer.New(backend)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := p.Upload(t.Context(), "id-1", pr, "application/pdf")
		done <- err
	}()

	head := []byte("%PDF-1.7\n")
	_, err := pw.Write(head)
	require.NoError(t, err)

	// The writer is still open: the store must already hold the first chunk.
	select {
	case total := <-firstRead:
		require.Equal(t, int64(len(head)), total)
	case <-time.After(5 * time.Second):
		t.Fatal("backend did not see any bytes before the body was complete")
	}

	tail := bytes.Repeat([]byte("x"), 100_000)
	_, err = pw.Write(tail)
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	stored, ok := backend.Object("id-1")
	require.True(t, ok)
	require.Equal(t, append(head, tail...), stored)
}

func TestUploadUsesCanonicalType(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	p := transfer.New(backend)

	_, err := p.Upload(t.Context(), "id-1", strings.NewReader("x"), "\tIMAGE/JPEG ")
	require.NoError(t, err)

	obj, err := p.Open(t.Context(), "id-1")
	require.NoError(t, err)
	defer obj.Close()
	require.Equal(t, "image/jpeg", obj.ContentType)
}

func TestUploadWrapsBackendFailure(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	backend.FailPut = objectstoretest.ErrInjected
	p := transfer.New(backend)

	_, err := p.Upload(t.Context(), "id-1", strings.NewReader("x"), "application/pdf")
	require.ErrorIs(t, err, transfer.ErrUpload)
	require.ErrorIs(t, err, objectstoretest.ErrInjected)
}

func TestOpenAndWriteTo(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	payload := bytes.Repeat([]byte("pdf"), 50_000)
	backend.Seed("doc", payload, "application/pdf")
	p := transfer.New(backend)

	obj, err := p.Open(t.Context(), "doc")
	require.NoError(t, err)
	defer obj.Close()
	require.Equal(t, "application/pdf", obj.ContentType)
	require.Equal(t, int64(len(payload)), obj.Size)

	rec := httptest.NewRecorder()
	n, err := obj.WriteTo(rec)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, rec.Body.Bytes())
	require.True(t, rec.Flushed)
}

func TestOpenMissingObject(t *testing.T) {
	t.Parallel()

	p := transfer.New(objectstoretest.New())
	_, err := p.Open(t.Context(), "missing")
	require.ErrorIs(t, err, transfer.ErrObjectNotFound)
}

func TestOpenBackendFailure(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	backend.FailGet = objectstoretest.ErrInjected
	p := transfer.New(backend)

	_, err := p.Open(t.Context(), "x")
	require.ErrorIs(t, err, transfer.ErrTransfer)
	require.NotErrorIs(t, err, transfer.ErrObjectNotFound)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestWriteToReportsMidStreamFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	obj := &transfer.Object{
		ReadCloser: io.NopCloser(&failingReader{data: []byte("partial"), err: boom}),
		Key:        "k",
	}

	var buf bytes.Buffer
	n, err := obj.WriteTo(&buf)
	require.ErrorIs(t, err, transfer.ErrTransfer)
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(7), n)
	require.Equal(t, "partial", buf.String())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	backend.Seed("gone", []byte("x"), "image/png")
	p := transfer.New(backend)

	require.NoError(t, p.Remove(t.Context(), "gone"))
	require.Empty(t, backend.Keys())

	backend.FailDelete = objectstoretest.ErrInjected
	require.ErrorIs(t, p.Remove(t.Context(), "gone"), transfer.ErrDelete)
}

func TestList(t *testing.T) {
	t.Parallel()

	backend := objectstoretest.New()
	backend.Seed("b", []byte("2"), "image/png")
	backend.Seed("a", []byte("1"), "image/png")
	p := transfer.New(backend)

	objects, err := p.List(t.Context())
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "a", objects[0].Key)
	require.Equal(t, "b", objects[1].Key)
}
