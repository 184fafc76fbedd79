package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive keeps a copy of every generated report in an S3-compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewArchive connects to the object store and creates the bucket if needed.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the report and returns its object key.
func (a *Archive) Put(ctx context.Context, generatedAt time.Time, result *Result) (string, error) {
	key := objectKey(generatedAt, result.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// objectKey lays reports out as reports/2006/01/02/150405-<filename>.
func objectKey(generatedAt time.Time, filename string) string {
	utc := generatedAt.UTC()
	return path.Join("reports", utc.Format("2006/01/02"), utc.Format("150405")+"-"+filename)
}
