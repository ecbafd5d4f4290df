package run_lexmind

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	ModeBrief = "brief"
	ModeArgue = "argue"
	ModeCite  = "cite"

	maxSources = 5
	silence    = "Counsel is silent."
)

type Sources struct {
	Query   string                  `json:"query,omitempty"`
	Results []adapters.SearchResult `json:"results"`
}

type Result struct {
	Mode    string                  `json:"mode"`
	Result  string                  `json:"result"`
	Sources []adapters.SearchResult `json:"sources,omitempty"`
}

func mode(in jobrt.StepInput) string { return strings.ToLower(strings.TrimSpace(in.Event.String("mode"))) }

// gatherSources only searches in cite mode; other modes reason from the
// input alone.
func (p *Pipeline) gatherSources(ctx context.Context, in jobrt.StepInput) (any, error) {
	input, err := in.Event.Require("input")
	if err != nil {
		return nil, err
	}
	if mode(in) != ModeCite {
		return Sources{Results: []adapters.SearchResult{}}, nil
	}
	if p.web == nil {
		return nil, adapters.Missing("web-search")
	}
	q := "case law " + steps.Truncate(input, 300)
	res, err := p.web.Search(ctx, q, maxSources)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []adapters.SearchResult{}
	}
	return Sources{Query: q, Results: res}, nil
}

func prompt(m, input string, sources []adapters.SearchResult) string {
	switch m {
	case ModeBrief:
		return "Generate a comprehensive Case Brief for this text:\n\n" + input
	case ModeArgue:
		return fmt.Sprintf("Here is my legal argument:\n%q\n\nCounter this argument aggressively as Opposing Counsel. Focus on weak points in my chain of custody or causation.", input)
	case ModeCite:
		var b strings.Builder
		fmt.Fprintf(&b, "Find and cite authority relevant to this text:\n\n%s\n\n", input)
		if len(sources) == 0 {
			b.WriteString("No search results were found. Say so rather than inventing citations.")
			return b.String()
		}
		b.WriteString("Search results:\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n", i+1, s.Title, s.URL, s.Snippet)
		}
		b.WriteString("\nCite only from these results, by number.")
		return b.String()
	default:
		return input
	}
}

func (p *Pipeline) legalAnalysis(ctx context.Context, in jobrt.StepInput) (any, error) {
	var src Sources
	if err := in.Prior.Decode("gather-sources", &src); err != nil {
		return nil, err
	}
	input, err := in.Event.Require("input")
	if err != nil {
		return nil, err
	}
	m := mode(in)
	user := prompt(m, input, src.Results)
	if c := in.Event.String("context"); c != "" {
		user = "Context: " + c + "\n\n" + user
	}
	out, err := steps.Ask(ctx, p.ai, adapters.HintReasoning, steps.PromptLexMind, user,
		adapters.CompletionOptions{Temperature: steps.Temperature(0.3)})
	if err != nil {
		return nil, err
	}
	if out == "" {
		out = silence
	}
	return Result{Mode: m, Result: out, Sources: src.Results}, nil
}
