package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const bucketService = "gcs"

type BucketConfig struct {
	Name      string
	CDNDomain string
	// EmulatorHost points the client at fake-gcs-server when set.
	EmulatorHost string
	// PublicBaseURL overrides the host used when building public URLs.
	PublicBaseURL string
}

// Bucket stores pipeline media in a single GCS bucket.
type Bucket struct {
	log           *logger.Logger
	client        *storage.Client
	name          string
	cdnDomain     string
	emulatorHost  string
	publicBaseURL string
}

func NewBucket(ctx context.Context, log *logger.Logger, cfg BucketConfig) (*Bucket, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("missing bucket name")
	}
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	var (
		client *storage.Client
		err    error
	)
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		client, err = storage.NewClient(ctx, option.WithoutAuthentication())
	} else {
		opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
		client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	b := &Bucket{
		log:           log.With("service", "BucketService"),
		client:        client,
		name:          cfg.Name,
		cdnDomain:     strings.TrimSpace(cfg.CDNDomain),
		emulatorHost:  emulator,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}
	b.log.Info("Object storage initialized", "bucket", b.name, "emulator_host", emulator, "public_base_url", b.publicBaseURL)
	return b, nil
}

func (b *Bucket) Put(ctx context.Context, path string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	key := cleanKey(path)
	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = ContentTypeForKey(key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return adapters.Wrap(bucketService, adapters.IOError, fmt.Errorf("write %s: %w", key, err))
	}
	if err := w.Close(); err != nil {
		return adapters.Wrap(bucketService, adapters.IOError, fmt.Errorf("close writer %s: %w", key, err))
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	key := cleanKey(path)
	r, err := b.client.Bucket(b.name).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, adapters.Errorf(bucketService, adapters.NotFound, "object %s", key)
	}
	if err != nil {
		return nil, adapters.Wrap(bucketService, adapters.IOError, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, adapters.Wrap(bucketService, adapters.IOError, err)
	}
	return data, nil
}

func (b *Bucket) URL(path string) string {
	return PublicURL(b.name, cleanKey(path), b.cdnDomain, b.emulatorHost, b.publicBaseURL)
}

func (b *Bucket) Close() error { return b.client.Close() }

// PublicURL prefers the CDN domain, then the emulator media endpoint, then
// the storage.googleapis.com form.
func PublicURL(bucket, key, cdnDomain, emulatorHost, publicBaseURL string) string {
	if cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", cdnDomain, key)
	}
	if emulatorHost != "" {
		base := publicBaseURL
		if base == "" {
			base = emulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(bucket), url.PathEscape(key))
	}
	if publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", publicBaseURL, bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}

func cleanKey(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"), strings.HasSuffix(s, ".md"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
