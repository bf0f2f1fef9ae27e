package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3-compatible uploader backend.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the externally reachable prefix for stored objects.
	// Defaults to the endpoint + bucket.
	PublicBaseURL string
}

// S3Uploader stores documents in an S3-compatible bucket.
type S3Uploader struct {
	client   *minio.Client
	bucket   string
	region   string
	baseURL  string
	initOnce sync.Once
	initErr  error
}

// NewS3Uploader creates an uploader against the configured bucket.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}

	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: baseURL,
	}, nil
}

// ensureBucket lazily creates the bucket on first upload.
func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = err
			return
		}
		if exists {
			return
		}
		u.initErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
	})
	return u.initErr
}

// Upload stores the document under a session-scoped key and returns its URL.
func (u *S3Uploader) Upload(ctx context.Context, sessionID, fileName, mediaType string, content io.Reader, size int64) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("session ID is required")
	}
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := objectKey(sessionID, fileName)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	_, err := u.client.PutObject(ctx, u.bucket, key, content, size, minio.PutObjectOptions{
		ContentType: mediaType,
	})
	if err != nil {
		slog.Error("S3Uploader.Upload failed", "sessionID", sessionID, "key", key, "error", err)
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	url := u.baseURL + "/" + key
	slog.Debug("S3Uploader.Upload succeeded", "sessionID", sessionID, "key", key)
	return url, nil
}

// objectKey builds a unique session-scoped object key, preserving the file
// extension and stripping non-ASCII characters from the name.
func objectKey(sessionID, fileName string) string {
	ext := path.Ext(sanitizeFileName(fileName))
	return sessionID + "/" + uuid.NewString() + ext
}

// sanitizeFileName removes non-ASCII characters from an uploaded file name.
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
