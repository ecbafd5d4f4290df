package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/hypermind-backend/internal/http/handlers"
	httpMW "github.com/yungbote/hypermind-backend/internal/http/middleware"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	Tracing     bool
	CORSOrigins string

	HealthHandler   *httpH.HealthHandler
	EventHandler    *httpH.EventHandler
	RunHandler      *httpH.RunHandler
	PipelineHandler *httpH.PipelineHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Events
		if cfg.EventHandler != nil {
			api.POST("/events", cfg.EventHandler.Publish)
			api.GET("/events/:id/runs", cfg.EventHandler.ListRuns)
		}

		// Realtime (SSE); registered before /runs/:id so the static segment wins
		if cfg.RealtimeHandler != nil {
			api.GET("/runs/stream", cfg.RealtimeHandler.StreamAll)
			api.GET("/runs/:id/stream", cfg.RealtimeHandler.StreamRun)
		}

		// Runs
		if cfg.RunHandler != nil {
			api.GET("/runs", cfg.RunHandler.ListRuns)
			api.GET("/runs/:id", cfg.RunHandler.GetRun)
			api.GET("/runs/:id/steps", cfg.RunHandler.ListSteps)
		}

		// Pipelines
		if cfg.PipelineHandler != nil {
			api.GET("/pipelines", cfg.PipelineHandler.List)
		}
	}

	return r
}
