package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	localMetaSuffix = ".meta.json"
	localTempPrefix = ".upload-"
)

// localObjectMeta is the sidecar stored next to every payload.
type localObjectMeta struct {
	ContentType string `json:"contentType"`
}

// LocalBackend is a Backend that keeps object payloads on the local
// filesystem under dataDir/bucket. Objects are spread across subdirectories
// named after the first two characters of their key. It is meant for
// development and tests, not for production deployments.
type LocalBackend struct {
	dataDir string
	bucket  string
}

// NewLocalBackend creates a LocalBackend rooted at dataDir.
func NewLocalBackend(dataDir string, bucket string) *LocalBackend {
	return &LocalBackend{dataDir: dataDir, bucket: bucket}
}

// ObjectPath computes the filesystem path of the payload for key.
func ObjectPath(directory string, bucket string, key string) (string, error) {
	if len(key) < 2 {
		return "", fmt.Errorf("invalid key length: %d", len(key))
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid key: %q", key)
	}
	return filepath.Join(directory, bucket, key[:2], key), nil
}

func (b *LocalBackend) bucketDir() string {
	return filepath.Join(b.dataDir, b.bucket)
}

func (b *LocalBackend) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string, progressFn ProgressFunc) (PutResult, error) {
	objPath, err := ObjectPath(b.dataDir, b.bucket, key)
	if err != nil {
		return PutResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return PutResult{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(objPath), localTempPrefix+"*")
	if err != nil {
		return PutResult{}, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, io.TeeReader(contextReader{ctx: ctx, r: r}, newProgress(progressFn, size)))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return PutResult{}, fmt.Errorf("write object %q: %w", key, err)
	}

	meta, err := json.Marshal(localObjectMeta{ContentType: contentType})
	if err != nil {
		return PutResult{}, err
	}
	if err := atomic.WriteFile(objPath+localMetaSuffix, bytes.NewReader(meta)); err != nil {
		return PutResult{}, fmt.Errorf("write object metadata %q: %w", key, err)
	}

	if err := atomic.ReplaceFile(tmpPath, objPath); err != nil {
		return PutResult{}, fmt.Errorf("move object %q into place: %w", key, err)
	}

	location := (&url.URL{Scheme: "file", Path: filepath.ToSlash(objPath)}).String()
	return PutResult{Location: location, Size: written}, nil
}

func (b *LocalBackend) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	objPath, err := ObjectPath(b.dataDir, b.bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	f, err := os.Open(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, ObjectInfo{}, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}

	info := ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  "application/octet-stream",
		LastModified: stat.ModTime().UTC(),
	}
	if data, err := os.ReadFile(objPath + localMetaSuffix); err == nil {
		var meta localObjectMeta
		if json.Unmarshal(data, &meta) == nil && meta.ContentType != "" {
			info.ContentType = meta.ContentType
		}
	}

	return f, info, nil
}

// DeleteObject removes the payload and its sidecar. Deleting a key that does
// not exist is not an error, matching S3 semantics.
func (b *LocalBackend) DeleteObject(ctx context.Context, key string) error {
	objPath, err := ObjectPath(b.dataDir, b.bucket, key)
	if err != nil {
		return err
	}

	for _, p := range []string{objPath, objPath + localMetaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (b *LocalBackend) ListObjects(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.WalkDir(b.bucketDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, localMetaSuffix) || strings.HasPrefix(name, localTempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          name,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %q: %w", b.bucket, err)
	}

	return objects, nil
}

func (b *LocalBackend) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(b.bucketDir(), 0o755)
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
