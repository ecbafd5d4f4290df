package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/gcp"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const minioService = "minio"

// MinIO serves self-hosted deployments through the S3 API.
type MinIO struct {
	log     *logger.Logger
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinIO(ctx context.Context, log *logger.Logger, cfg Config) (*MinIO, error) {
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.MinIORegion); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.MinIOUseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.MinIOEndpoint
	}
	return &MinIO{
		log:     log.With("service", "MinIOStore"),
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(base, "/"),
	}, nil
}

func (m *MinIO) Put(ctx context.Context, path string, data []byte, contentType string) error {
	key := strings.TrimLeft(path, "/")
	if contentType == "" {
		contentType = gcp.ContentTypeForKey(key)
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return adapters.Wrap(minioService, adapters.IOError, fmt.Errorf("put %s: %w", key, err))
	}
	return nil
}

func (m *MinIO) Get(ctx context.Context, path string) ([]byte, error) {
	key := strings.TrimLeft(path, "/")
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, adapters.Wrap(minioService, adapters.IOError, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, adapters.Errorf(minioService, adapters.NotFound, "object %s", key)
		}
		return nil, adapters.Wrap(minioService, adapters.IOError, err)
	}
	return data, nil
}

func (m *MinIO) URL(path string) string {
	return fmt.Sprintf("%s/%s/%s", m.baseURL, m.bucket, strings.TrimLeft(path, "/"))
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
