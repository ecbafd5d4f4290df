// Package objectstore selects the media store backing adapters.ObjectStore.
package objectstore

import (
	"context"
	"fmt"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/gcp"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func New(ctx context.Context, log *logger.Logger, cfg Config) (adapters.ObjectStore, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	log.Info("Resolving object storage", "mode", cfg.Mode, "mode_source", cfg.ModeSource(), "bucket", cfg.Bucket)
	switch cfg.Mode {
	case ModeGCS:
		return gcp.NewBucket(ctx, log, gcp.BucketConfig{Name: cfg.Bucket, CDNDomain: cfg.CDNDomain, PublicBaseURL: cfg.PublicBaseURL})
	case ModeGCSEmulator:
		return gcp.NewBucket(ctx, log, gcp.BucketConfig{Name: cfg.Bucket, CDNDomain: cfg.CDNDomain, PublicBaseURL: cfg.PublicBaseURL, EmulatorHost: cfg.EmulatorHost})
	case ModeMinIO:
		return NewMinIO(ctx, log, cfg)
	default:
		return NewMemory(cfg.PublicBaseURL), nil
	}
}
