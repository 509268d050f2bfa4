package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// To switch providers, change STORAGE_ENDPOINT and credentials — no code
// changes are needed since DO Spaces and AWS S3 speak the same API.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists, and
// returns a ready-to-use MinioStorage. The bucket stays private: reads go
// through presigned URLs only.
func NewMinioStorage(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Printf("[INFO] storage: created bucket %q", bucket)
	}

	return &MinioStorage{client: client, bucket: bucket}, nil
}

// Upload streams reader to the store under key. size must be the exact byte
// count (pass -1 only if the size is genuinely unknown — MinIO will buffer it).
func (s *MinioStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=600",
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// RemovePrefix lists all objects under prefix and deletes them in bulk.
// Listing is paged by the client; deletion streams keys as they arrive.
func (s *MinioStorage) RemovePrefix(ctx context.Context, prefix string) error {
	keys := make(chan minio.ObjectInfo)

	go func() {
		defer close(keys)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				log.Printf("[WARN] storage: list %q: %v", prefix, obj.Err)
				return
			}
			select {
			case keys <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	return drainRemoveErrors(s.client.RemoveObjects(ctx, s.bucket, keys, minio.RemoveObjectsOptions{}))
}

// drainRemoveErrors consumes the bulk-delete error channel to completion and
// keeps the first failure. Returning on the first error would stall the
// deletion worker and leave the listing goroutine blocked on its send.
func drainRemoveErrors(errs <-chan minio.RemoveObjectError) error {
	var first error
	for rmErr := range errs {
		if rmErr.Err == nil {
			continue
		}
		log.Printf("[WARN] storage: remove %q: %v", rmErr.ObjectName, rmErr.Err)
		if first == nil {
			first = fmt.Errorf("remove object %q: %w", rmErr.ObjectName, rmErr.Err)
		}
	}
	return first
}

// PresignGet returns a time-boxed presigned GET URL for key. The provider
// alone validates the URL; no local crypto is involved.
func (s *MinioStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}
