package app

import (
	"context"
	"fmt"

	"github.com/yungbote/hypermind-backend/internal/data/repos/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/frames"
	"github.com/yungbote/hypermind-backend/internal/platform/gcp"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/platform/neo4jdb"
	"github.com/yungbote/hypermind-backend/internal/platform/openrouter"
	"github.com/yungbote/hypermind-backend/internal/platform/web"
	"github.com/yungbote/hypermind-backend/internal/realtime/bus"

	"gorm.io/gorm"
)

// Clients holds the external service connections behind adapters.Set.
// Optional services are nil when unconfigured; steps that need them fail
// with NotConfigured.
type Clients struct {
	Adapters  adapters.Set
	RunBus    bus.Bus
	Neo4j     *neo4jdb.Client
	Document  *gcp.Extractor
	Vision    *gcp.VisionOCR
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB, memory bool) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients
	set := adapters.Set{DB: study.NewStore(db, log)}

	// OpenRouter
	if llm, err := openrouter.New(log, openrouter.ConfigFromEnv()); err != nil {
		log.Warn("LLM gateway not configured; LLM steps will fail", "error", err)
	} else {
		set.LLM = llm
	}

	// Object storage
	objects, err := resolveObjectStore(ctx, log, memory)
	if err != nil {
		return Clients{}, err
	}
	if objects != nil {
		set.Objects = objects
	}

	// Web
	httpc := web.NewClient(log, cfg.WebTimeout)
	set.Web = web.NewDuckDuckGo(httpc)
	set.Videos = web.NewYouTube(httpc)
	set.Fetch = web.NewFetcher(httpc)

	// Gcp
	doc, err := gcp.NewExtractor(ctx, log, gcp.DocumentConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init document client: %w", err)
	}
	c.Document = doc
	set.Extractor = doc

	vision, err := gcp.NewVisionOCR(ctx, log, cfg.VisionOCR)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init vision client: %w", err)
	}
	if set.LLM != nil {
		vision.Fallback = openrouter.NewOCR(set.LLM)
	}
	c.Vision = vision
	set.OCR = vision

	// Neo4j
	graph, err := neo4jdb.New(ctx, log, neo4jdb.ConfigFromEnv())
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	if graph != nil {
		c.Neo4j = graph
		set.Graph = neo4jdb.NewGraphStore(graph)
	}

	// Frames
	renderer, err := frames.New(cfg.FontPath)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init frame renderer: %w", err)
	}
	set.Frames = renderer

	// Redis
	runBus, err := bus.NewRedisBus(ctx, log)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init redis run bus: %w", err)
	}
	c.RunBus = runBus

	c.Adapters = set
	return c, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.RunBus != nil {
		_ = c.RunBus.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Document != nil {
		_ = c.Document.Close()
	}
}

// offlineClients backs processes that only publish or read runs.
func offlineClients(log *logger.Logger, db *gorm.DB) Clients {
	return Clients{Adapters: adapters.Set{DB: study.NewStore(db, log)}}
}
