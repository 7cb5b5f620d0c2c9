package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/paastest/clustertest/internal/config"
)

// MinIO uploads each snapshot to an S3-compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	key    string
}

// NewMinIO creates the client and ensures the bucket exists.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig, fileName string) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, cfg.Bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return &MinIO{client: mc, bucket: cfg.Bucket, key: ObjectKey(cfg.Prefix, fileName)}, nil
}

// ObjectKey joins an optional prefix and the file name.
func ObjectKey(prefix, fileName string) string {
	if prefix == "" {
		return fileName
	}
	return path.Join(prefix, fileName)
}

func (m *MinIO) Name() string { return "minio" }

func (m *MinIO) Export(ctx context.Context, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", m.bucket, m.key, err)
	}
	return nil
}
