package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/http"
	httpH "github.com/yungbote/hypermind-backend/internal/http/handlers"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/realtime"
	"github.com/yungbote/hypermind-backend/internal/services"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Event    *httpH.EventHandler
	Run      *httpH.RunHandler
	Pipeline *httpH.PipelineHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, runs services.RunService, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	var ping httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		ping = sqlDB
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(ping),
		Event:    httpH.NewEventHandler(runs),
		Run:      httpH.NewRunHandler(runs),
		Pipeline: httpH.NewPipelineHandler(runs),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log.With("component", "HTTP"),
		Metrics:         metrics,
		ServiceName:     ServiceName,
		Tracing:         envutil.Bool("OTEL_ENABLED", false),
		CORSOrigins:     cfg.CORSOrigins,
		HealthHandler:   handlers.Health,
		EventHandler:    handlers.Event,
		RunHandler:      handlers.Run,
		PipelineHandler: handlers.Pipeline,
		RealtimeHandler: handlers.Realtime,
	})
}
