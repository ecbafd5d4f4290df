package app

import (
	"os"
	"strings"
	"time"

	"github.com/yungbote/hypermind-backend/internal/data/db"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
)

type Config struct {
	LogMode     string
	Addr        string
	Environment string
	Version     string
	CORSOrigins string

	// PipelinesConfig is an optional YAML file of concurrency/retry overrides.
	PipelinesConfig string
	FontPath        string
	VisionOCR       bool
	WebTimeout      time.Duration

	WorkerOwner string
	StepLease   time.Duration

	DB db.Config
}

const ServiceName = "hypermind-backend"

func LoadConfig() Config {
	return Config{
		LogMode:         envutil.String("LOG_MODE", "development"),
		Addr:            envutil.String("HTTP_ADDR", ":8080"),
		Environment:     envutil.String("APP_ENV", "development"),
		Version:         envutil.String("APP_VERSION", "dev"),
		CORSOrigins:     envutil.String("CORS_ORIGINS", ""),
		PipelinesConfig: envutil.String("PIPELINES_CONFIG", ""),
		FontPath:        envutil.String("FRAME_FONT_PATH", ""),
		VisionOCR:       envutil.Bool("VISION_OCR_ENABLED", false),
		WebTimeout:      envutil.Seconds("WEB_TIMEOUT_SECONDS", 20*time.Second),
		WorkerOwner:     envutil.String("WORKER_OWNER", ""),
		StepLease:       envutil.Seconds("STEP_LEASE_SECONDS", 2*time.Minute),
		DB:              db.ConfigFromEnv(),
	}
}

func envString(name string) string { return strings.TrimSpace(os.Getenv(name)) }
