package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/openmined/treesync/internal/store"
)

// S3Blobs stores catalog blobs as objects in an S3 (or MinIO) bucket.
type S3Blobs struct {
	client IBlobClient
	prefix string
}

func NewS3Blobs(client IBlobClient, prefix string) *S3Blobs {
	return &S3Blobs{client: client, prefix: strings.Trim(prefix, "/")}
}

// OpenS3Blobs builds an S3 client from cfg and wraps it.
func OpenS3Blobs(ctx context.Context, cfg *S3BlobConfig) (*S3Blobs, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := NewBlobClientWithS3Config(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("s3 blob store", "bucket", cfg.BucketName, "endpoint", cfg.Endpoint, "prefix", cfg.Prefix)
	return NewS3Blobs(client, cfg.Prefix), nil
}

func (b *S3Blobs) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, &PutObjectParams{
		Key:  b.objectKey(key),
		Size: size,
		Body: r,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, mapError(err))
	}
	return nil
}

func (b *S3Blobs) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.GetObject(ctx, b.objectKey(key))
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, mapError(err))
	}
	return resp.Body, nil
}

func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteObject(ctx, b.objectKey(key)); err != nil {
		return fmt.Errorf("delete object %s: %w", key, mapError(err))
	}
	return nil
}

// objectKey shards keys by their first two characters, same as the directory store.
func (b *S3Blobs) objectKey(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	if b.prefix == "" {
		return shard + "/" + key
	}
	return b.prefix + "/" + shard + "/" + key
}

func mapError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%s: %w", apiErr.ErrorMessage(), store.ErrNotFound)
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), store.ErrPermissionDenied)
	}
	return err
}
