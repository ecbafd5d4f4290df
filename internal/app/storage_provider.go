package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/platform/objectstore"
)

var (
	newObjectStore       = objectstore.New
	objectStoreFromEnv   = objectstore.ConfigFromEnv
	objectStoreModeIsSet = func() bool { return envString("OBJECT_STORAGE_MODE") != "" }
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorInvalidConfig       StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore returns nil, nil when no bucket is configured and no
// mode was asked for; media steps then fail with NotConfigured.
func resolveObjectStore(ctx context.Context, log *logger.Logger, memory bool) (adapters.ObjectStore, error) {
	if memory {
		log.Info("Selecting object storage provider", "mode", objectstore.ModeMemory, "mode_source", "memory_flag")
		return objectstore.NewMemory(""), nil
	}

	cfg, err := objectStoreFromEnv()
	if err != nil {
		var cfgErr *objectstore.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Code == objectstore.ErrMissingBucket && !objectStoreModeIsSet() {
			log.Warn("Object storage not configured; media pipelines will fail", "hint", "set MEDIA_BUCKET_NAME or OBJECT_STORAGE_MODE")
			return nil, nil
		}
		classified := classifyStorageProviderBootstrapError(cfg, err)
		log.Error(
			"Object storage provider selection failed",
			"mode", cfg.Mode,
			"mode_source", cfg.ModeSource(),
			"emulator_host", cfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting object storage provider",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"compatibility_fallback", cfg.CompatibilityFallback,
		"emulator_host", cfg.EmulatorHost,
	)
	store, err := newObjectStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(cfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", cfg.Mode,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(cfg objectstore.Config, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *objectstore.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case objectstore.ErrInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case objectstore.ErrMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case objectstore.ErrInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		default:
			code = StorageProviderBootstrapErrorInvalidConfig
		}
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
