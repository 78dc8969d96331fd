package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/config"
	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// Store is the object store contract used by the handlers. The production
// implementation talks to an S3-compatible backend; tests substitute a
// mock.
type Store interface {
	// Put stores the gzipped document body under key, overwriting any
	// previous version.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the stored body for key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// S3Store is a thin gateway around the minio client translating backend
// failures into the error taxonomy.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates the gateway and verifies the bucket is reachable.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3 bucket check: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("s3 bucket %s does not exist", cfg.Bucket)
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:     models.ContentType,
			ContentEncoding: models.ContentEncoding,
		})
	if err != nil {
		return translate(err, key, "put")
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, key, "get")
	}
	defer obj.Close()

	// GetObject is lazy, errors only surface on read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err, key, "get")
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		// Removing a missing key is treated as success by the backend
		// already; NoSuchKey can still show up on some implementations.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			log.Debug().Str("key", key).Msg("Object already deleted")
			return nil
		}
		return translate(err, key, "delete")
	}
	return nil
}

// translate maps a minio error to the taxonomy: a NoSuchKey API response
// becomes NotFound, a request that never produced an API response becomes
// UpstreamUnavailable, everything else is re-raised as-is.
func translate(err error, key, op string) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey":
		log.Error().Str("key", key).Str("op", op).Msg("Object not found in bucket")
		return apperr.Wrap(apperr.KindNotFound, "Object not found", err)
	case resp.Code == "":
		log.Error().Err(err).Str("key", key).Str("op", op).Msg("Failed to connect to object storage")
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "Object storage not reachable", err)
	default:
		log.Error().Err(err).Str("key", key).Str("op", op).Str("code", resp.Code).Msg("Object storage error")
		return fmt.Errorf("object storage %s %s: %w", op, key, err)
	}
}
