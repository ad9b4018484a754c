// Package objectstore archives captured pages in an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var tracer = otel.Tracer("objectstore")

// Config selects the endpoint and bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive implements port.PageArchive on MinIO (or any S3 endpoint).
type Archive struct {
	client *minio.Client
	bucket string
	now    func() time.Time
	logger *zap.Logger
}

// New connects and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, &domain.ErrNotConfigured{Integration: "object storage"}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	a := &Archive{client: client, bucket: cfg.Bucket, now: time.Now, logger: logger}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("created archive bucket", zap.String("bucket", a.bucket))
	return nil
}

// Archive stores the page HTML (or its text when no HTML was captured)
// and returns the object key.
func (a *Archive) Archive(ctx context.Context, userID string, page *domain.PageData) (string, error) {
	ctx, span := tracer.Start(ctx, "Archive.Archive")
	defer span.End()

	body, contentType := page.HTML, "text/html; charset=utf-8"
	if body == "" {
		body, contentType = page.Text, "text/plain; charset=utf-8"
	}

	key := ObjectKey(userID, a.now(), uuid.NewString(), contentType)
	_, err := a.client.PutObject(ctx, a.bucket, key, strings.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"source-url": page.URL,
			"title":      truncate(page.Title, 200),
		},
	})
	if err != nil {
		return "", &domain.ErrExternalService{Service: "object storage", Err: err}
	}
	return key, nil
}

// ObjectKey lays pages out as pages/<user>/<yyyy>/<mm>/<dd>/<id>.<ext>.
func ObjectKey(userID string, at time.Time, id, contentType string) string {
	if userID == "" {
		userID = "anonymous"
	}
	ext := ".html"
	if strings.HasPrefix(contentType, "text/plain") {
		ext = ".txt"
	}
	return path.Join("pages", userID, at.UTC().Format("2006/01/02"), id+ext)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
