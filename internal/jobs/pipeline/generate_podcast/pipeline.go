package generate_podcast

import (
	"context"
	"fmt"
	"math"
	"strings"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	defaultDuration = 180
	contentLimit    = 10000
	sourceChunks    = 10
	mediaType       = "podcast"
)

const hostsPrompt = `You are a professional podcast script writer. Create realistic, conversational scripts for a two-host educational podcast.
Host A (Alex) is curious and asks clarifying questions.
Host B (Jordan) provides deep insights and examples.
Make it feel natural: include brief pauses and build on each other's points. Do NOT use buzzwords, emojis, or exaggerated enthusiasm.`

type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type Result struct {
	DocumentID        string    `json:"documentId"`
	UserID            string    `json:"userId"`
	PodcastID         string    `json:"podcastId"`
	Script            string    `json:"script"`
	Segments          []Segment `json:"segments"`
	SegmentCount      int       `json:"segmentCount"`
	EstimatedDuration int       `json:"estimatedDuration"`
}

func duration(in jobrt.StepInput) int {
	d := in.Event.Int("duration", defaultDuration)
	if d <= 0 {
		return defaultDuration
	}
	return d
}

// content is the payload text, or the stored chunks of the document when the
// caller sent only an id.
func (p *Pipeline) content(ctx context.Context, in jobrt.StepInput) (string, error) {
	if c := in.Event.String("content"); c != "" {
		return c, nil
	}
	docID := in.Event.String("documentId")
	if docID == "" {
		return "", jobrt.Permanentf("%s payload has neither content nor documentId", in.Event.Name)
	}
	c, err := steps.DocumentContent(ctx, p.db, docID, sourceChunks)
	if err != nil {
		return "", err
	}
	if c == "" {
		return "", jobrt.Permanentf("document %s has no content", docID)
	}
	return c, nil
}

func (p *Pipeline) generateScript(ctx context.Context, in jobrt.StepInput) (any, error) {
	content, err := p.content(ctx, in)
	if err != nil {
		return nil, err
	}
	d := duration(in)
	targetWords := int(math.Round(float64(d) * 2.5))
	prompt := fmt.Sprintf(`Create a %d-minute podcast script (~%d words) discussing this content:

%s

Format:
ALEX: [dialogue]
JORDAN: [dialogue]
...

Include:
- An engaging intro hook
- Main discussion points
- Real-world examples
- A memorable conclusion`, int(math.Round(float64(d)/60)), targetWords, steps.Truncate(content, contentLimit))

	return steps.Ask(ctx, p.ai, adapters.HintRoleplay, hostsPrompt, prompt, adapters.CompletionOptions{MaxTokens: 6000})
}

// ParseScript keeps only lines spoken by one of the two hosts.
func ParseScript(script string) []Segment {
	out := []Segment{}
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ALEX:"):
			out = append(out, Segment{Speaker: "alex", Text: strings.TrimSpace(strings.TrimPrefix(line, "ALEX:"))})
		case strings.HasPrefix(line, "JORDAN:"):
			out = append(out, Segment{Speaker: "jordan", Text: strings.TrimSpace(strings.TrimPrefix(line, "JORDAN:"))})
		}
	}
	return out
}

func (p *Pipeline) parseScript(ctx context.Context, in jobrt.StepInput) (any, error) {
	var script string
	if err := in.Prior.Decode("generate-script", &script); err != nil {
		return nil, err
	}
	segs := ParseScript(script)
	if len(segs) == 0 {
		p.log.Warn("podcast script has no host lines", "run_id", in.RunID.String())
	}
	return segs, nil
}

func (p *Pipeline) storePodcast(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.db == nil {
		return nil, adapters.Missing("relational-store")
	}
	var (
		script string
		segs   []Segment
	)
	if err := in.Prior.Decode("generate-script", &script); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("parse-script", &segs); err != nil {
		return nil, err
	}
	docID := in.Event.String("documentId")
	d := duration(in)

	// The run id doubles as the media id so a retried insert finds its row.
	id := in.RunID.String()
	existing, err := p.db.Select(ctx, domain.TableGeneratedMedia, adapters.Query{Where: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		_, err = p.db.Insert(ctx, domain.TableGeneratedMedia, []adapters.Row{{
			"id":          id,
			"document_id": docID,
			"type":        mediaType,
			"url":         "",
			"metadata": map[string]any{
				"script":      script,
				"segments":    segs,
				"duration":    d,
				"generatedAt": p.now().Format("2006-01-02T15:04:05.000Z07:00"),
			},
		}})
		if err != nil {
			return nil, fmt.Errorf("store podcast: %w", err)
		}
	}
	return Result{
		DocumentID:        docID,
		UserID:            in.Event.String("userId"),
		PodcastID:         id,
		Script:            script,
		Segments:          segs,
		SegmentCount:      len(segs),
		EstimatedDuration: d,
	}, nil
}
