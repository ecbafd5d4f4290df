package generate_video

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	contentLimit  = 5000
	renderWorkers = 4
	mediaType     = "video"
)

type palette struct{ bg, fg string }

var palettes = map[string]palette{
	"viral":       {bg: "#101820", fg: "#F2AA4C"},
	"educational": {bg: "#FFFFFF", fg: "#1B1B1B"},
	"cinematic":   {bg: "#000000", fg: "#E0E0E0"},
}

type Segment struct {
	Text         string  `json:"text"`
	Duration     float64 `json:"duration"`
	VisualPrompt string  `json:"visualPrompt"`
}

type Script struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Segments    []Segment `json:"segments"`
}

type Frame struct {
	Segment
	Path     string `json:"path"`
	FrameURL string `json:"frameUrl"`
}

type Result struct {
	Success        bool    `json:"success"`
	MediaID        string  `json:"mediaId"`
	CompositionURL string  `json:"compositionUrl"`
	Script         Script  `json:"script"`
	Segments       []Frame `json:"segments"`
}

func style(in jobrt.StepInput) string {
	s := strings.ToLower(in.Event.String("style"))
	if _, ok := palettes[s]; !ok {
		return "viral"
	}
	return s
}

func (p *Pipeline) generateScript(ctx context.Context, in jobrt.StepInput) (any, error) {
	if _, err := in.Event.Require("documentId"); err != nil {
		return nil, err
	}
	content, err := in.Event.Require("content")
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(`You are a professional video scriptwriter.
Your goal is to explain the provided academic concept in exactly 60 seconds.

Style Guide (%s):
- Hook: Start with a compelling fact or question.
- Body: Fast-paced, concise, and information-dense.
- Visuals: Describe the perfect B-roll or animation for each sentence.
- Tone: Professional, authoritative, and direct.
- Do not use hashtags, emojis, or buzzwords.

Return JSON format:
{
  "segments": [
    {"text": "Spoken audio text...", "duration": 4.5, "visualPrompt": "Photorealistic description of..."}
  ],
  "title": "Video Title",
  "description": "Video description"
}`, style(in))

	reply, err := steps.Ask(ctx, p.ai, adapters.HintSpeed, system,
		"Create a 60-second video script for this content: "+steps.Truncate(content, contentLimit)+"...",
		adapters.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	script, err := llmjson.Require[Script](reply, "video script")
	if err != nil {
		return nil, err
	}
	if len(script.Segments) == 0 {
		return nil, jobrt.Permanentf("video script has no segments")
	}
	return script, nil
}

func framePath(documentID, runID string, i int) string {
	return fmt.Sprintf("media/%s/%s/frame-%02d.png", documentID, runID, i+1)
}

func (p *Pipeline) renderFrames(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.frames == nil {
		return nil, adapters.Missing("renderer")
	}
	if p.objects == nil {
		return nil, adapters.Missing("object-store")
	}
	var script Script
	if err := in.Prior.Decode("generate-script", &script); err != nil {
		return nil, err
	}
	docID := in.Event.String("documentId")
	pal := palettes[style(in)]

	out := make([]Frame, len(script.Segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renderWorkers)
	for i, seg := range script.Segments {
		g.Go(func() error {
			png, err := p.frames.RenderFrame(seg.Text, adapters.FrameStyle{
				Background: pal.bg,
				Foreground: pal.fg,
				Caption:    script.Title,
			})
			if err != nil {
				return jobrt.Permanent(fmt.Errorf("render frame %d: %w", i+1, err))
			}
			path := framePath(docID, in.RunID.String(), i)
			if err := p.objects.Put(gctx, path, png, "image/png"); err != nil {
				return fmt.Errorf("upload frame %d: %w", i+1, err)
			}
			out[i] = Frame{Segment: seg, Path: path, FrameURL: p.objects.URL(path)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.log.Info("frames rendered", "document_id", docID, "frames", len(out))
	return out, nil
}

func (p *Pipeline) saveComposition(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.db == nil {
		return nil, adapters.Missing("relational-store")
	}
	var (
		script Script
		frames []Frame
	)
	if err := in.Prior.Decode("generate-script", &script); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("render-frames", &frames); err != nil {
		return nil, err
	}
	docID := in.Event.String("documentId")
	id := in.RunID.String()
	meta := map[string]any{
		"style":    style(in),
		"script":   script,
		"segments": frames,
		"status":   "ready_to_render",
	}

	manifest, err := json.Marshal(meta)
	if err != nil {
		return nil, jobrt.Permanent(err)
	}
	path := fmt.Sprintf("media/%s/%s/composition.json", docID, id)
	if err := p.objects.Put(ctx, path, manifest, "application/json"); err != nil {
		return nil, fmt.Errorf("upload composition: %w", err)
	}
	url := p.objects.URL(path)

	existing, err := p.db.Select(ctx, domain.TableGeneratedMedia, adapters.Query{Where: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if _, err := p.db.Insert(ctx, domain.TableGeneratedMedia, []adapters.Row{{
			"id":          id,
			"document_id": docID,
			"type":        mediaType,
			"url":         url,
			"metadata":    meta,
		}}); err != nil {
			return nil, fmt.Errorf("store composition: %w", err)
		}
	}
	return Result{Success: true, MediaID: id, CompositionURL: url, Script: script, Segments: frames}, nil
}
