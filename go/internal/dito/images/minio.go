package images

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the object storage location of a pair csv.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string // skips the bucket location lookup when set
	Bucket    string
	Object    string
}

// MinioSource streams the pair csv from an object storage bucket. Each
// traversal issues a fresh GetObject, so the object is never held in memory.
type MinioSource struct {
	mc     *minio.Client
	bucket string
	object string
}

// NewMinioSource connects to the configured endpoint.
func NewMinioSource(cfg MinioConfig) (*MinioSource, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &MinioSource{mc: mc, bucket: cfg.Bucket, object: cfg.Object}, nil
}

func (s *MinioSource) Open(ctx context.Context) (Cursor, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.object, err)
	}
	return newCSVCursor(obj), nil
}
