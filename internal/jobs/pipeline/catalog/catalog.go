// Package catalog lists every pipeline the service runs and the payload
// schema of every event that can trigger one.
package catalog

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/eventbus"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/analyze_video_source"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/extract_knowledge"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/generate_podcast"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/generate_quiz_batch"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/generate_system_architecture"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/generate_video"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/grade_handwriting"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/ingest_document"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/predict_exam"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/run_lexmind"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/run_medisim"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Definitions builds every pipeline over deps, in registration order.
func Definitions(deps adapters.Set, log *logger.Logger) []jobrt.Definition {
	return []jobrt.Definition{
		ingest_document.New(deps, log).Definition(),
		generate_quiz_batch.New(deps, log).Definition(),
		generate_podcast.New(deps, log).Definition(),
		extract_knowledge.New(deps, log).Definition(),
		analyze_video_source.New(deps, log).Definition(),
		generate_video.New(deps, log).Definition(),
		predict_exam.New(deps, log).Definition(),
		grade_handwriting.New(deps, log).Definition(),
		generate_system_architecture.New(deps, log).Definition(),
		run_medisim.New(deps, log).Definition(),
		run_lexmind.New(deps, log).Definition(),
	}
}

func integer(min float64) *openapi3.Schema {
	return openapi3.NewIntegerSchema().WithMin(min)
}

// Events returns the payload schemas. Fields a pipeline treats as optional
// are typed but not required.
func Events() *eventbus.Catalog {
	str := openapi3.NewStringSchema
	turn := eventbus.Object("role", "content")
	return eventbus.NewCatalog().
		Register(ingest_document.Event, eventbus.Object("documentId", "fileUrl").
			WithProperty("fileName", str()).
			WithProperty("userId", str())).
		Register(generate_quiz_batch.Event, eventbus.Object("documentId").
			WithProperty("sessionId", str()).
			WithProperty("difficulty", str()).
			WithProperty("count", integer(1))).
		Register(generate_podcast.Event, eventbus.Object().
			WithProperty("documentId", str()).
			WithProperty("userId", str()).
			WithProperty("content", str()).
			WithProperty("duration", integer(1))).
		Register(extract_knowledge.Event, eventbus.Object("documentId").
			WithProperty("content", str())).
		Register(analyze_video_source.Event, eventbus.Object("query").
			WithProperty("sessionId", str()).
			WithProperty("userId", str()).
			WithProperty("maxResults", integer(1))).
		Register(generate_video.Event, eventbus.Object("documentId", "content").
			WithProperty("userId", str()).
			WithProperty("style", openapi3.NewStringSchema().WithEnum("viral", "educational", "cinematic"))).
		Register(predict_exam.Event, eventbus.Object("documentId").
			WithProperty("subject", str()).
			WithProperty("examDate", str())).
		Register(grade_handwriting.Event, eventbus.Object().
			WithProperty("documentId", str()).
			WithProperty("imageUrl", str()).
			WithProperty("imageBase64", str()).
			WithProperty("correctAnswer", str()).
			WithProperty("context", str())).
		Register(generate_system_architecture.Event, eventbus.Object("requirements").
			WithProperty("constraints", str())).
		Register(run_medisim.Event, eventbus.Object("action").
			WithProperty("documentId", str()).
			WithProperty("history", openapi3.NewArraySchema().WithItems(turn))).
		Register(run_lexmind.Event, eventbus.Object("input").
			WithProperty("documentId", str()).
			WithProperty("mode", openapi3.NewStringSchema().WithEnum("brief", "argue", "cite")).
			WithProperty("context", str()))
}

// Registry registers every definition with overrides applied. A nil
// overrides value leaves the built-in policies alone.
func Registry(deps adapters.Set, o *registry.Overrides, log *logger.Logger) (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.RegisterAll(o, Definitions(deps, log)...); err != nil {
		return nil, err
	}
	return reg, nil
}
