package run_medisim

import (
	"context"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	attendingSystem = "You are a Senior Attending Physician. Grade the student diagnosis."
	silentPatient   = "..."
	patientTemp     = 0.7
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type payload struct {
	DocumentID string `json:"documentId"`
	History    []Turn `json:"history"`
	Action     string `json:"action"`
}

type Reply struct {
	Response string `json:"response"`
}

// Result is the run output. Assessment is set only when the action closed
// the case.
type Result struct {
	Response   string `json:"response"`
	Graded     bool   `json:"graded"`
	Assessment string `json:"assessment,omitempty"`
}

func decode(in jobrt.StepInput) (payload, error) {
	var pl payload
	if err := in.Event.Decode(&pl); err != nil {
		return pl, err
	}
	if strings.TrimSpace(pl.Action) == "" {
		return pl, jobrt.Permanentf("action is required")
	}
	return pl, nil
}

// conversation replays the prior turns under system and appends action.
// Only user and assistant turns are carried over.
func conversation(system string, history []Turn, action string) []adapters.Message {
	msgs := make([]adapters.Message, 0, len(history)+2)
	msgs = append(msgs, adapters.System(system))
	for _, t := range history {
		switch t.Role {
		case "user", "assistant":
			msgs = append(msgs, adapters.Message{Role: t.Role, Content: t.Content})
		}
	}
	return append(msgs, adapters.User(action))
}

// ClosesCase reports whether the student committed to a diagnosis or ended
// the encounter.
func ClosesCase(action string) bool {
	return strings.Contains(action, "DIAGNOSIS:") || strings.Contains(action, "FINISH_CASE")
}

func (p *Pipeline) simulatePatient(ctx context.Context, in jobrt.StepInput) (any, error) {
	pl, err := decode(in)
	if err != nil {
		return nil, err
	}
	if p.ai == nil {
		return nil, adapters.Missing("completion")
	}
	out, err := p.ai.Complete(ctx, conversation(steps.PromptMediSim, pl.History, pl.Action), adapters.HintRoleplay,
		adapters.CompletionOptions{Temperature: steps.Temperature(patientTemp)})
	if err != nil {
		return nil, err
	}
	if out = strings.TrimSpace(out); out == "" {
		out = silentPatient
	}
	return Reply{Response: out}, nil
}

func (p *Pipeline) gradePerformance(ctx context.Context, in jobrt.StepInput) (any, error) {
	var r Reply
	if err := in.Prior.Decode("simulate-patient", &r); err != nil {
		return nil, err
	}
	pl, err := decode(in)
	if err != nil {
		return nil, err
	}
	if !ClosesCase(pl.Action) {
		return Result{Response: r.Response}, nil
	}
	assessment, err := p.ai.Complete(ctx, conversation(attendingSystem, pl.History, pl.Action), adapters.HintReasoning, adapters.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	p.log.Info("case graded", "document_id", pl.DocumentID, "turns", len(pl.History))
	return Result{Response: r.Response, Graded: true, Assessment: strings.TrimSpace(assessment)}, nil
}
