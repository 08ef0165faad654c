package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioBackend.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	// PartSize bounds the memory used per in-flight part when the upload
	// size is not known. Values below MinPartSize are raised to it.
	PartSize uint64
}

// MinPartSize is the smallest part S3 accepts in a multipart upload. It is
// also what minio-go buffers per part for uploads of unknown size.
const MinPartSize = 5 * 1024 * 1024

// MinioBackend stores objects in an S3-compatible service through minio-go.
type MinioBackend struct {
	client   *minio.Client
	bucket   string
	region   string
	partSize uint64
}

// NewMinioBackend creates a MinioBackend using path-style bucket lookup,
// which works against both MinIO and AWS.
func NewMinioBackend(opts MinioOptions) (*MinioBackend, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioBackend{
		client:   client,
		bucket:   opts.Bucket,
		region:   opts.Region,
		partSize: max(opts.PartSize, MinPartSize),
	}, nil
}

// objectURL returns the path-style URL of key within the bucket.
func (b *MinioBackend) objectURL(key string) string {
	return b.client.EndpointURL().JoinPath(b.bucket, key).String()
}

func (b *MinioBackend) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string, progressFn ProgressFunc) (PutResult, error) {
	info, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    newProgress(progressFn, size),
		PartSize:    b.partSize,
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to upload object %q to bucket %q: %w", key, b.bucket, err)
	}

	location := info.Location
	if location == "" {
		location = b.objectURL(key)
	}

	return PutResult{Location: location, Size: info.Size, ETag: info.ETag}, nil
}

func (b *MinioBackend) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, mapMinioError(err)
	}

	// GetObject is lazy; Stat performs the request so a missing key is
	// reported before the caller commits to a response.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, mapMinioError(err)
	}

	return obj, ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

func (b *MinioBackend) DeleteObject(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %q from bucket %q: %w", key, b.bucket, err)
	}
	return nil
}

func (b *MinioBackend) ListObjects(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for objectInfo := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if objectInfo.Err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %q: %w", b.bucket, objectInfo.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          objectInfo.Key,
			Size:         objectInfo.Size,
			ContentType:  objectInfo.ContentType,
			LastModified: objectInfo.LastModified,
		})
	}
	return objects, nil
}

func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", b.bucket, err)
		}
	}
	return nil
}

// mapMinioError translates a missing-key response into ErrNotFound.
func mapMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
