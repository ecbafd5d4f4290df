package grade_handwriting

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const gradingSystem = "You are a strict academic grader. Analyze the student's work step-by-step for logical errors."

type Grade struct {
	Score    int      `json:"score"`
	Feedback string   `json:"feedback"`
	Errors   []string `json:"errors"`
}

type Transcription struct {
	Text string `json:"text"`
}

func fallbackGrade() Grade {
	return Grade{Score: 0, Feedback: "Failed to parse grading response", Errors: []string{}}
}

// image resolves the payload to raw bytes. imageBase64 wins over imageUrl;
// data: URLs are decoded in place.
func (p *Pipeline) image(ctx context.Context, in jobrt.StepInput) (adapters.Blob, error) {
	if raw := in.Event.String("imageBase64"); raw != "" {
		return decodeBase64(raw, "image/png")
	}
	url, err := in.Event.Require("imageUrl")
	if err != nil {
		return adapters.Blob{}, jobrt.Permanentf("imageBase64 or imageUrl is required")
	}
	if strings.HasPrefix(url, "data:") {
		head, body, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
		if !ok || !strings.HasSuffix(head, ";base64") {
			return adapters.Blob{}, jobrt.Permanentf("unsupported data url")
		}
		return decodeBase64(body, strings.TrimSuffix(head, ";base64"))
	}
	if p.fetch == nil {
		return adapters.Blob{}, adapters.Missing("fetcher")
	}
	return p.fetch.Fetch(ctx, url)
}

func decodeBase64(raw, contentType string) (adapters.Blob, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return adapters.Blob{}, jobrt.Permanent(fmt.Errorf("decode image: %w", err))
	}
	return adapters.Blob{Data: data, ContentType: contentType}, nil
}

func (p *Pipeline) readHandwriting(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.ocr == nil {
		return nil, adapters.Missing("ocr")
	}
	blob, err := p.image(ctx, in)
	if err != nil {
		return nil, err
	}
	text, err := p.ocr.ReadImage(ctx, blob)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	p.log.Debug("handwriting read", "document_id", in.Event.String("documentId"), "chars", len(text))
	return Transcription{Text: text}, nil
}

func (p *Pipeline) grade(ctx context.Context, in jobrt.StepInput) (any, error) {
	var tr Transcription
	if err := in.Prior.Decode("read-handwriting", &tr); err != nil {
		return nil, err
	}
	problem := in.Event.String("context")
	if problem == "" {
		problem = "General Math/Physics"
	}
	answer := in.Event.String("correctAnswer")
	if answer == "" {
		answer = "Not provided - judge based on logic."
	}
	user := fmt.Sprintf(`Problem Context: %s

Correct Answer: %s

Student Work (Transcribed): %s

Grade this. Return JSON only:
{
  "score": 0-100,
  "feedback": "constructive feedback string",
  "errors": ["list of specific logical errors found"]
}`, problem, answer, tr.Text)

	reply, err := steps.Ask(ctx, p.ai, adapters.HintReasoning, gradingSystem, user, adapters.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	g, ok := llmjson.Object(reply, fallbackGrade())
	if !ok {
		p.log.Warn("grading reply not parseable", "document_id", in.Event.String("documentId"))
		return fallbackGrade(), nil
	}
	if g.Errors == nil {
		g.Errors = []string{}
	}
	g.Score = min(max(g.Score, 0), 100)
	return g, nil
}
