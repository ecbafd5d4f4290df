package generate_system_architecture

import (
	"context"
	"fmt"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const architectSystem = "You are a Senior Principal Software Architect. Return valid JSON only."

type Component struct {
	Component string `json:"component"`
	Tech      string `json:"tech"`
	Reason    string `json:"reason"`
}

// Architecture is the parsed design. When the reply does not parse, only
// Error and Raw are set.
type Architecture struct {
	Diagram       string      `json:"diagram,omitempty"`
	Stack         []Component `json:"stack,omitempty"`
	Analysis      string      `json:"analysis,omitempty"`
	ChaosScenario string      `json:"chaosScenario,omitempty"`

	Error string `json:"error,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

func (p *Pipeline) generateArchitecture(ctx context.Context, in jobrt.StepInput) (any, error) {
	requirements, err := in.Event.Require("requirements")
	if err != nil {
		return nil, err
	}
	constraints := in.Event.String("constraints")
	if constraints == "" {
		constraints = "None"
	}
	prompt := fmt.Sprintf(`Design a robust system architecture for: %q.

Constraints: %q

Focus on scalability, fault tolerance, and modern best practices (Microservices vs Monolith).

Output JSON format:
{
  "diagram": "MERMAID_CODE_HERE",
  "stack": [
    { "component": "Frontend", "tech": "React", "reason": "..." },
    { "component": "DB", "tech": "Postgres", "reason": "..." }
  ],
  "analysis": "Brief trade-off analysis...",
  "chaosScenario": "Describe a failure mode and mitigation..."
}`, requirements, constraints)

	reply, err := steps.Ask(ctx, p.ai, adapters.HintReasoning, architectSystem, prompt, adapters.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	arch, ok := llmjson.Object(reply, Architecture{})
	if !ok || (arch.Diagram == "" && len(arch.Stack) == 0 && arch.Analysis == "") {
		p.log.Warn("architecture reply not parseable", "chars", len(reply))
		return Architecture{Error: "Failed to parse architecture JSON", Raw: reply}, nil
	}
	arch.Error, arch.Raw = "", ""
	return arch, nil
}
