package predict_exam

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	sampleChunks = 5
	sampleLimit  = 5000
	confidence   = 89
)

var fallbackTopics = []string{"General Knowledge"}

type TopicProbability struct {
	Topic       string `json:"topic"`
	Probability int    `json:"probability"`
}

type Prediction struct {
	DocumentID         string             `json:"documentId"`
	Subject            string             `json:"subject,omitempty"`
	ExamDate           string             `json:"examDate,omitempty"`
	ProbableTopics     []TopicProbability `json:"probableTopics"`
	PredictedQuestions []string           `json:"predictedQuestions"`
	ConfidenceScore    int                `json:"confidenceScore"`
}

func (p *Pipeline) extractTopics(ctx context.Context, in jobrt.StepInput) (any, error) {
	docID, err := in.Event.Require("documentId")
	if err != nil {
		return nil, err
	}
	content, err := steps.DocumentContent(ctx, p.db, docID, sampleChunks)
	if err != nil {
		return nil, err
	}
	reply, err := steps.Ask(ctx, p.ai, adapters.HintContext,
		"Extract the top 5 most likely exam topics from this text. Return as JSON array of strings.",
		steps.Truncate(content, sampleLimit), adapters.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	topics, _ := llmjson.Array(reply, fallbackTopics)
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		clean = fallbackTopics
	}
	return clean, nil
}

// runSimulation scores each topic at 60-100%. The draw is stored with the
// step output, so a replayed run reports the same numbers.
func (p *Pipeline) runSimulation(ctx context.Context, in jobrt.StepInput) (any, error) {
	var topics []string
	if err := in.Prior.Decode("extract-topics", &topics); err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		topics = fallbackTopics
	}
	probable := make([]TopicProbability, len(topics))
	for i, t := range topics {
		probable[i] = TopicProbability{Topic: t, Probability: 60 + p.intn(41)}
	}
	sort.SliceStable(probable, func(i, j int) bool { return probable[i].Probability > probable[j].Probability })

	at := func(i int, def string) string {
		if i < len(topics) {
			return topics[i]
		}
		return def
	}
	return Prediction{
		DocumentID:     in.Event.String("documentId"),
		Subject:        in.Event.String("subject"),
		ExamDate:       in.Event.String("examDate"),
		ProbableTopics: probable,
		PredictedQuestions: []string{
			fmt.Sprintf("Explain the significance of %s in modern contexts.", at(0, "the core material")),
			fmt.Sprintf("Compare and contrast %s with %s.", at(1, at(0, "the core material")), at(2, "traditional methods")),
			fmt.Sprintf("Solve for X given the constraints of %s.", at(0, "the core material")),
		},
		ConfidenceScore: confidence,
	}, nil
}
