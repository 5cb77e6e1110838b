package notify

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PhotoLinker turns a stored attachment name into a URL an admin can open.
type PhotoLinker interface {
	PhotoURL(ctx context.Context, filename string) (string, error)
}

// MinioConfig configures the attachment bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// Region avoids a bucket location lookup, default us-east-1
	Region string
	// Expiry is the lifetime of generated links, default 24h
	Expiry time.Duration
}

// MinioPhotoLinker presigns GET requests for attachments in an S3-compatible bucket.
type MinioPhotoLinker struct {
	cli    *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioPhotoLinker creates a linker for cfg.Bucket.
func NewMinioPhotoLinker(cfg MinioConfig) (*MinioPhotoLinker, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	return &MinioPhotoLinker{cli: cli, bucket: cfg.Bucket, expiry: cfg.Expiry}, nil
}

// PhotoURL implements PhotoLinker. Presigning is local, no request is made.
func (l *MinioPhotoLinker) PhotoURL(ctx context.Context, filename string) (string, error) {
	u, err := l.cli.PresignedGetObject(ctx, l.bucket, filename, l.expiry, nil)
	if err != nil {
		return "", errors.Wrapf(err, "presign %q", filename)
	}

	return u.String(), nil
}
