package generate_quiz_batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	chunkLimit   = 10
	contentLimit = 12000
	defaultCount = 5
	maxCount     = 50
)

var difficultyInstructions = map[string]string{
	"easy":   "Create straightforward questions testing basic recall and understanding.",
	"medium": "Create questions that require application and analysis of concepts.",
	"hard":   "Create challenging questions that require synthesis and evaluation. Include edge cases and nuanced scenarios.",
}

type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Correct     string   `json:"correct"`
	Explanation string   `json:"explanation"`
	Difficulty  string   `json:"difficulty"`
}

type Result struct {
	SessionID  string     `json:"sessionId"`
	DocumentID string     `json:"documentId"`
	Difficulty string     `json:"difficulty"`
	Questions  []Question `json:"questions"`
	Count      int        `json:"count"`
}

func difficulty(in jobrt.StepInput) string {
	d := strings.ToLower(in.Event.String("difficulty"))
	if _, ok := difficultyInstructions[d]; !ok {
		return "medium"
	}
	return d
}

func (p *Pipeline) fetchContent(ctx context.Context, in jobrt.StepInput) (any, error) {
	docID, err := in.Event.Require("documentId")
	if err != nil {
		return nil, err
	}
	content, err := steps.DocumentContent(ctx, p.db, docID, chunkLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	return content, nil
}

func (p *Pipeline) generateQuestions(ctx context.Context, in jobrt.StepInput) (any, error) {
	var content string
	if err := in.Prior.Decode("fetch-content", &content); err != nil {
		return nil, err
	}
	diff := difficulty(in)
	count := in.Event.Int("count", defaultCount)
	if count <= 0 {
		count = defaultCount
	}
	if count > maxCount {
		count = maxCount
	}
	prompt := fmt.Sprintf(`Generate exactly %d %s quiz questions based on this content.

%s

Content:
%s

Return a JSON array of questions:
[
  {
    "question": "...",
    "options": ["A: ...", "B: ...", "C: ...", "D: ..."],
    "correct": "A",
    "explanation": "...",
    "difficulty": "%s"
  }
]`, count, diff, difficultyInstructions[diff], steps.Truncate(content, contentLimit), diff)

	reply, err := steps.Ask(ctx, p.ai, adapters.HintSpeed, steps.PromptQuizMaster, prompt, adapters.CompletionOptions{MaxTokens: 4000})
	if err != nil {
		return nil, err
	}
	questions, ok := llmjson.Array(reply, []Question{})
	if !ok {
		p.log.Warn("quiz reply did not parse", "document_id", in.Event.String("documentId"))
	}
	if questions == nil {
		questions = []Question{}
	}
	return Result{
		SessionID:  in.Event.String("sessionId"),
		DocumentID: in.Event.String("documentId"),
		Difficulty: diff,
		Questions:  questions,
		Count:      len(questions),
	}, nil
}
