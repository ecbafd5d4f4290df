package objectstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeMinIO       Mode = "minio"
	ModeMemory      Mode = "memory"
)

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeGCS, ModeGCSEmulator, ModeMinIO, ModeMemory:
		return true
	default:
		return false
	}
}

type Config struct {
	Mode   Mode
	Bucket string
	// CompatibilityFallback is set when the emulator mode was inferred from
	// STORAGE_EMULATOR_HOST rather than OBJECT_STORAGE_MODE.
	CompatibilityFallback bool

	CDNDomain     string
	PublicBaseURL string
	EmulatorHost  string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIORegion    string
}

func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ErrInvalidMode         ConfigErrorCode = "invalid_mode"
	ErrMissingBucket       ConfigErrorCode = "missing_bucket"
	ErrMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ErrInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ErrInvalidPublicURL    ConfigErrorCode = "invalid_public_base_url"
	ErrMissingMinIO        ConfigErrorCode = "missing_minio_settings"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Mode  string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ErrInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q, %q)", e.Mode, ModeGCS, ModeGCSEmulator, ModeMinIO, ModeMemory)
	case ErrMissingBucket:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires MEDIA_BUCKET_NAME", e.Mode)
	case ErrMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeGCSEmulator)
	case ErrInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case ErrInvalidPublicURL:
		return fmt.Sprintf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", e.Value)
	case ErrMissingMinIO:
		return "OBJECT_STORAGE_MODE=\"minio\" requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY"
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Bucket:         envutil.String("MEDIA_BUCKET_NAME", ""),
		CDNDomain:      envutil.String("MEDIA_CDN_DOMAIN", ""),
		PublicBaseURL:  strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
		EmulatorHost:   strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		MinIOEndpoint:  envutil.String("MINIO_ENDPOINT", ""),
		MinIOAccessKey: envutil.String("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: envutil.String("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:    envutil.Bool("MINIO_USE_SSL", false),
		MinIORegion:    envutil.String("MINIO_REGION", "us-east-1"),
	}

	rawMode := envutil.String("OBJECT_STORAGE_MODE", "")
	switch mode := Mode(strings.ToLower(rawMode)); mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ModeGCS
		}
	case ModeGCS, ModeGCSEmulator, ModeMinIO, ModeMemory:
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ErrInvalidMode, Mode: rawMode}
	}
	return cfg, Validate(cfg)
}

func Validate(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ErrInvalidMode, Mode: string(cfg.Mode)}
	}
	if cfg.Mode == ModeMemory {
		return nil
	}
	if cfg.Bucket == "" {
		return &ConfigError{Code: ErrMissingBucket, Mode: string(cfg.Mode)}
	}
	if cfg.PublicBaseURL != "" && !absoluteURL(cfg.PublicBaseURL) {
		return &ConfigError{Code: ErrInvalidPublicURL, Mode: string(cfg.Mode), Value: cfg.PublicBaseURL}
	}
	switch cfg.Mode {
	case ModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ErrMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		if !absoluteURL(cfg.EmulatorHost) {
			return &ConfigError{Code: ErrInvalidEmulatorHost, Mode: string(cfg.Mode), Value: cfg.EmulatorHost}
		}
	case ModeMinIO:
		if cfg.MinIOEndpoint == "" || cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "" {
			return &ConfigError{Code: ErrMissingMinIO, Mode: string(cfg.Mode)}
		}
	}
	return nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
