// Package pipelinetest holds in-memory adapters and a one-run executor for
// pipeline tests.
package pipelinetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Run executes def once for payload, as if delivered by its first event.
func Run(tb testing.TB, def jobrt.Definition, payload any) (orchestrator.Result, *orchestrator.MemoryStore) {
	tb.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	store := orchestrator.NewMemoryStore()
	run := &pipeline.PipelineRun{
		ID:         uuid.New(),
		PipelineID: def.ID,
		EventID:    uuid.New(),
		EventName:  def.Events[0],
		EventData:  datatypes.JSON(raw),
		Status:     pipeline.RunPending,
		CreatedAt:  time.Now().UTC(),
	}
	store.PutRun(run)
	engine := orchestrator.NewEngine(store, store, logger.NewNop())
	engine.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	res, err := engine.Execute(context.Background(), run, def)
	if err != nil {
		tb.Fatalf("Execute: %v", err)
	}
	return res, store
}

// Steps returns the step records of a run in declared order.
func Steps(tb testing.TB, store *orchestrator.MemoryStore, runID uuid.UUID) []*pipeline.StepRecord {
	tb.Helper()
	recs, err := store.ListSteps(context.Background(), runID)
	if err != nil {
		tb.Fatalf("ListSteps: %v", err)
	}
	return recs
}

// Output decodes the run output into v.
func Output(tb testing.TB, res orchestrator.Result, v any) {
	tb.Helper()
	if err := json.Unmarshal(res.Output, v); err != nil {
		tb.Fatalf("decode output %s: %v", res.Output, err)
	}
}

// -------------------- Completion --------------------

type Call struct {
	Msgs []adapters.Message
	Hint adapters.ModelHint
	Opts adapters.CompletionOptions
}

// LLM replies from Reply, or pops Replies in order when Reply is nil.
type LLM struct {
	mu      sync.Mutex
	Reply   func(msgs []adapters.Message, hint adapters.ModelHint) (string, error)
	Replies []string
	Calls   []Call
}

func Replies(replies ...string) *LLM { return &LLM{Replies: replies} }

func (l *LLM) Complete(_ context.Context, msgs []adapters.Message, hint adapters.ModelHint, opts adapters.CompletionOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, Call{Msgs: append([]adapters.Message(nil), msgs...), Hint: hint, Opts: opts})
	if l.Reply != nil {
		return l.Reply(msgs, hint)
	}
	if len(l.Replies) == 0 {
		return "", adapters.Errorf("fake-llm", adapters.InvalidResponse, "no scripted reply")
	}
	out := l.Replies[0]
	l.Replies = l.Replies[1:]
	return out, nil
}

func (l *LLM) Hints() []adapters.ModelHint {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]adapters.ModelHint, len(l.Calls))
	for i, c := range l.Calls {
		out[i] = c.Hint
	}
	return out
}

// LastUser returns the user message of the latest call.
func (l *LLM) LastUser() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Calls) == 0 {
		return ""
	}
	msgs := l.Calls[len(l.Calls)-1].Msgs
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// -------------------- RelationalStore --------------------

// DB is a map-backed RelationalStore with equality filters.
type DB struct {
	mu     sync.Mutex
	seq    int
	tables map[string][]adapters.Row
}

func NewDB() *DB { return &DB{tables: map[string][]adapters.Row{}} }

func (d *DB) Insert(_ context.Context, table string, rows []adapters.Row) ([]adapters.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]adapters.Row, 0, len(rows))
	for _, r := range rows {
		cp := adapters.Row{}
		for k, v := range r {
			cp[k] = v
		}
		if id, _ := cp["id"].(string); id == "" {
			d.seq++
			cp["id"] = fmt.Sprintf("%s-%d", table, d.seq)
		}
		d.tables[table] = append(d.tables[table], cp)
		out = append(out, copyRow(cp))
	}
	return out, nil
}

func (d *DB) Select(_ context.Context, table string, q adapters.Query) ([]adapters.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []adapters.Row
	for _, r := range d.tables[table] {
		if matches(r, q.Where) {
			out = append(out, copyRow(r))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return lessValue(out[j][q.OrderBy], out[i][q.OrderBy])
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (d *DB) Update(_ context.Context, table string, q adapters.Query, set adapters.Row) ([]adapters.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []adapters.Row
	for _, r := range d.tables[table] {
		if !matches(r, q.Where) {
			continue
		}
		for k, v := range set {
			r[k] = v
		}
		out = append(out, copyRow(r))
	}
	if len(out) == 0 {
		return nil, adapters.Errorf("fake-db", adapters.NotFound, "no %s row matches %v", table, q.Where)
	}
	return out, nil
}

// Rows returns a copy of every row in table.
func (d *DB) Rows(table string) []adapters.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]adapters.Row, 0, len(d.tables[table]))
	for _, r := range d.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

func copyRow(r adapters.Row) adapters.Row {
	cp := make(adapters.Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

func matches(r adapters.Row, where map[string]any) bool {
	for k, v := range where {
		if fmt.Sprint(r[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	fa, errA := strconv.ParseFloat(fmt.Sprint(a), 64)
	fb, errB := strconv.ParseFloat(fmt.Sprint(b), 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// -------------------- other adapters --------------------

// Fetcher serves blobs by URL; unknown URLs are NotFound.
type Fetcher map[string]adapters.Blob

func (f Fetcher) Fetch(_ context.Context, url string) (adapters.Blob, error) {
	b, ok := f[url]
	if !ok {
		return adapters.Blob{}, adapters.Errorf("fake-fetch", adapters.NotFound, "GET %s: http 404", url)
	}
	return b, nil
}

// Extractor returns the blob bytes as text.
type Extractor struct{}

func (Extractor) Extract(_ context.Context, blob adapters.Blob, _ string) (string, error) {
	return string(blob.Data), nil
}

type Graph struct {
	mu    sync.Mutex
	Nodes map[string][]adapters.GraphNode
	Edges map[string][]adapters.GraphEdge
}

func NewGraph() *Graph {
	return &Graph{Nodes: map[string][]adapters.GraphNode{}, Edges: map[string][]adapters.GraphEdge{}}
}

func (g *Graph) UpsertGraph(_ context.Context, documentID string, nodes []adapters.GraphNode, edges []adapters.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Nodes[documentID] = append([]adapters.GraphNode(nil), nodes...)
	g.Edges[documentID] = append([]adapters.GraphEdge(nil), edges...)
	return nil
}

type Search struct {
	Results []adapters.SearchResult
	Err     error
	Queries []string
}

func (s *Search) Search(_ context.Context, query string, max int) ([]adapters.SearchResult, error) {
	s.Queries = append(s.Queries, query)
	if s.Err != nil {
		return nil, s.Err
	}
	if max > 0 && len(s.Results) > max {
		return s.Results[:max], nil
	}
	return s.Results, nil
}

type Videos struct {
	List        []adapters.Video
	Transcripts map[string]string
}

func (v *Videos) SearchVideos(_ context.Context, _ string, max int) ([]adapters.Video, error) {
	if max > 0 && len(v.List) > max {
		return v.List[:max], nil
	}
	return v.List, nil
}

func (v *Videos) Transcript(_ context.Context, id string) (string, error) {
	return v.Transcripts[id], nil
}

type OCR struct {
	Text string
	Got  []adapters.Blob
}

func (o *OCR) ReadImage(_ context.Context, blob adapters.Blob) (string, error) {
	o.Got = append(o.Got, blob)
	return o.Text, nil
}

// Frames renders "PNG:<text>" so tests can check what was drawn.
type Frames struct{}

func (Frames) RenderFrame(text string, _ adapters.FrameStyle) ([]byte, error) {
	return []byte("PNG:" + text), nil
}
