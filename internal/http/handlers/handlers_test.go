package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/apierr"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/services"
)

type fakeRuns struct {
	published map[string]string
	runs      map[uuid.UUID]*types.PipelineRun
	filter    pipelines.RunFilter
}

func (f *fakeRuns) Publish(_ dbctx.Context, name string, payload any) (uuid.UUID, error) {
	raw, _ := payload.(json.RawMessage)
	if !strings.Contains(string(raw), "documentId") {
		return uuid.Nil, apierr.New(http.StatusBadRequest, "invalid_event", fmt.Errorf("missing documentId"))
	}
	f.published[name] = string(raw)
	return uuid.New(), nil
}

func (f *fakeRuns) GetRun(_ dbctx.Context, id uuid.UUID) (*types.PipelineRun, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, apierr.New(http.StatusNotFound, "run_not_found", apierr.ErrNotFound)
}

func (f *fakeRuns) ListSteps(dbc dbctx.Context, id uuid.UUID) ([]*types.StepRecord, error) {
	if _, err := f.GetRun(dbc, id); err != nil {
		return nil, err
	}
	return []*types.StepRecord{{RunID: id, StepName: "extract-topics", Status: pipeline.StepSucceeded}}, nil
}

func (f *fakeRuns) ListRuns(_ dbctx.Context, flt pipelines.RunFilter) ([]*types.PipelineRun, error) {
	f.filter = flt
	return []*types.PipelineRun{}, nil
}

func (f *fakeRuns) EventRuns(dbctx.Context, uuid.UUID) (*services.EventRuns, error) {
	return nil, apierr.New(http.StatusNotFound, "event_not_found", apierr.ErrNotFound)
}

func (f *fakeRuns) Pipelines() []services.PipelineInfo {
	return []services.PipelineInfo{{ID: "predict-exam", Events: []string{"exam/predict"}, Concurrency: 2}}
}

func testRouter(svc services.RunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ev := NewEventHandler(svc)
	runs := NewRunHandler(svc)
	r.POST("/api/events", ev.Publish)
	r.GET("/api/events/:id/runs", ev.ListRuns)
	r.GET("/api/runs", runs.ListRuns)
	r.GET("/api/runs/:id", runs.GetRun)
	r.GET("/api/runs/:id/steps", runs.ListSteps)
	r.GET("/api/pipelines", NewPipelineHandler(svc).List)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rec.Body.String())
	}
	return env.Error.Code
}

func TestPublishAcceptsEvent(t *testing.T) {
	svc := &fakeRuns{published: map[string]string{}}
	rec := do(testRouter(svc), http.MethodPost, "/api/events", `{"name":"exam/predict","data":{"documentId":"d1"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, rec.Code, rec.Body.String())
	}
	var out struct {
		EventID uuid.UUID `json:"eventId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.EventID == uuid.Nil {
		t.Fatalf("eventId: %s err=%v", rec.Body.String(), err)
	}
	if svc.published["exam/predict"] != `{"documentId":"d1"}` {
		t.Fatalf("payload: %q", svc.published["exam/predict"])
	}
}

func TestPublishRejectsBadRequests(t *testing.T) {
	r := testRouter(&fakeRuns{published: map[string]string{}})
	cases := []struct {
		body string
		code string
	}{
		{`not json`, "invalid_request"},
		{`{"name":"  ","data":{}}`, "missing_event_name"},
		{`{"name":"exam/predict","data":{}}`, "invalid_event"},
	}
	for _, tc := range cases {
		rec := do(r, http.MethodPost, "/api/events", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: want=400 got=%d", tc.body, rec.Code)
		}
		if got := errorCode(t, rec); got != tc.code {
			t.Fatalf("%s: code want=%s got=%s", tc.body, tc.code, got)
		}
	}
}

func TestRunEndpoints(t *testing.T) {
	id := uuid.New()
	svc := &fakeRuns{runs: map[uuid.UUID]*types.PipelineRun{id: {ID: id, PipelineID: "predict-exam", Status: pipeline.RunRunning}}}
	r := testRouter(svc)

	if rec := do(r, http.MethodGet, "/api/runs/"+id.String(), ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"running"`) {
		t.Fatalf("get run: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/api/runs/"+id.String()+"/steps", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "extract-topics") {
		t.Fatalf("steps: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(r, http.MethodGet, "/api/runs/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "run_not_found" {
		t.Fatalf("missing run: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/api/runs/nope", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/events/"+uuid.NewString()+"/runs", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing event: want=404 got=%d", rec.Code)
	}
}

func TestListRunsParsesFilter(t *testing.T) {
	svc := &fakeRuns{}
	r := testRouter(svc)
	rec := do(r, http.MethodGet, "/api/runs?pipeline=predict-exam&status=failed&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	want := pipelines.RunFilter{PipelineID: "predict-exam", Status: "failed", Limit: 5}
	if svc.filter != want {
		t.Fatalf("filter: want=%+v got=%+v", want, svc.filter)
	}
	if rec := do(r, http.MethodGet, "/api/runs?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit: want=400 got=%d", rec.Code)
	}
}

func TestPipelinesList(t *testing.T) {
	rec := do(testRouter(&fakeRuns{}), http.MethodGet, "/api/pipelines", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"predict-exam"`) {
		t.Fatalf("pipelines: %d %s", rec.Code, rec.Body.String())
	}
}

type pingErr struct{ err error }

func (p pingErr) PingContext(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		db   Pinger
		want int
	}{
		{nil, http.StatusOK},
		{pingErr{}, http.StatusOK},
		{pingErr{fmt.Errorf("down")}, http.StatusServiceUnavailable},
	} {
		r := gin.New()
		r.GET("/readyz", NewHealthHandler(tc.db).Ready)
		if rec := do(r, http.MethodGet, "/readyz", ""); rec.Code != tc.want {
			t.Fatalf("ready: want=%d got=%d", tc.want, rec.Code)
		}
	}
}
