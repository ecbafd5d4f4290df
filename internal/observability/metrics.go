package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Metrics is a process-wide registry exposed in Prometheus text format.
// Every method is safe on a nil receiver so callers never need to check
// whether metrics are enabled.
type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	eventsTotal   *CounterVec
	runsTotal     *CounterVec
	runDuration   *HistogramVec
	stepAttempts  *CounterVec
	stepDuration  *HistogramVec
	runsActive    *GaugeVec
	deliveryDepth *GaugeVec
	llmRequests   *CounterVec
	llmLatency    *HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

// Init builds the singleton when METRICS_ENABLED is set; otherwise it
// returns nil.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	durBuckets := []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900}
	return &Metrics{
		apiRequests:   NewCounterVec("hypermind_api_requests_total", "HTTP requests by route and status", []string{"method", "route", "status"}),
		apiLatency:    NewHistogramVec("hypermind_api_request_seconds", "HTTP request latency", []string{"method", "route"}, nil),
		eventsTotal:   NewCounterVec("hypermind_events_published_total", "Published events by name and outcome", []string{"event", "outcome"}),
		runsTotal:     NewCounterVec("hypermind_pipeline_runs_total", "Finished pipeline runs", []string{"pipeline", "status"}),
		runDuration:   NewHistogramVec("hypermind_pipeline_run_seconds", "Pipeline run wall time", []string{"pipeline", "status"}, durBuckets),
		stepAttempts:  NewCounterVec("hypermind_step_attempts_total", "Step attempts by outcome", []string{"pipeline", "step", "outcome"}),
		stepDuration:  NewHistogramVec("hypermind_step_attempt_seconds", "Step attempt wall time", []string{"pipeline", "step"}, durBuckets),
		runsActive:    NewGaugeVec("hypermind_pipeline_runs_active", "Runs holding a concurrency slot", []string{"pipeline"}),
		deliveryDepth: NewGaugeVec("hypermind_deliveries", "Deliveries by status", []string{"status"}),
		llmRequests:   NewCounterVec("hypermind_llm_requests_total", "Completion calls by model and status", []string{"model", "status"}),
		llmLatency:    NewHistogramVec("hypermind_llm_request_seconds", "Completion latency", []string{"model"}, durBuckets),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(orUnknown(method), orUnknown(route), orUnknown(status))
	m.apiLatency.Observe(dur.Seconds(), orUnknown(method), orUnknown(route))
}

func (m *Metrics) IncEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.Inc(orUnknown(event), orUnknown(outcome))
}

func (m *Metrics) ObserveRun(pipelineID, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.Inc(orUnknown(pipelineID), orUnknown(status))
	m.runDuration.Observe(dur.Seconds(), orUnknown(pipelineID), orUnknown(status))
}

func (m *Metrics) ObserveStepAttempt(pipelineID, step, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stepAttempts.Inc(orUnknown(pipelineID), orUnknown(step), orUnknown(outcome))
	m.stepDuration.Observe(dur.Seconds(), orUnknown(pipelineID), orUnknown(step))
}

func (m *Metrics) SetActiveRuns(pipelineID string, n int) {
	if m == nil {
		return
	}
	m.runsActive.Set(float64(n), orUnknown(pipelineID))
}

func (m *Metrics) ObserveLLM(model string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(orUnknown(model), strconv.Itoa(status))
	m.llmLatency.Observe(dur.Seconds(), orUnknown(model))
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.eventsTotal, m.runsTotal, m.runDuration,
		m.stepAttempts, m.stepDuration, m.runsActive, m.deliveryDepth,
		m.llmRequests, m.llmLatency,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

// StartDeliveryCollector samples delivery backlog from the database.
func (m *Metrics) StartDeliveryCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, s := range []string{pipeline.DeliveryQueued, pipeline.DeliveryAdmitted, pipeline.DeliveryDone} {
				m.deliveryDepth.Set(0, s)
			}
			var rows []struct {
				Status string
				Count  int64
			}
			if err := db.WithContext(ctx).
				Model(&pipeline.Delivery{}).
				Select("status, count(*) as count").
				Group("status").
				Scan(&rows).Error; err != nil {
				if log != nil {
					log.Warn("metrics: delivery depth query failed", "error", err)
				}
				continue
			}
			for _, row := range rows {
				m.deliveryDepth.Set(float64(row.Count), orUnknown(row.Status))
			}
		}
	}()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
