package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
)

// Overrides tune pipelines without a rebuild. Example:
//
//	pipelines:
//	  ingest-document:
//	    concurrency: 8
//	    steps:
//	      summarize: {retries: 5, timeout_seconds: 120}
type Overrides struct {
	Pipelines map[string]PipelineOverride `yaml:"pipelines"`
}

type PipelineOverride struct {
	Concurrency *int                    `yaml:"concurrency"`
	Steps       map[string]StepOverride `yaml:"steps"`
}

type StepOverride struct {
	Retries        *int `yaml:"retries"`
	TimeoutSeconds *int `yaml:"timeout_seconds"`
}

func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines config: %w", err)
	}
	return ParseOverrides(raw)
}

func ParseOverrides(raw []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("parse pipelines config: %w", err)
	}
	return &o, nil
}

// Apply returns def with any override for its id applied. Unknown step names
// are an error so typos do not pass silently.
func (o *Overrides) Apply(def jobrt.Definition) (jobrt.Definition, error) {
	if o == nil {
		return def, nil
	}
	po, ok := o.Pipelines[def.ID]
	if !ok {
		return def, nil
	}
	if po.Concurrency != nil {
		if *po.Concurrency < 0 {
			return def, fmt.Errorf("pipeline %s: negative concurrency override", def.ID)
		}
		def.Concurrency = *po.Concurrency
	}
	if len(po.Steps) == 0 {
		return def, nil
	}
	steps := make([]jobrt.Step, len(def.Steps))
	copy(steps, def.Steps)
	for name, so := range po.Steps {
		idx := def.StepIndex(name)
		if idx < 0 {
			return def, fmt.Errorf("pipeline %s: override for unknown step %s", def.ID, name)
		}
		if so.Retries != nil {
			retry := jobrt.Retries(*so.Retries)
			retry.MinBackoff = steps[idx].Retry.MinBackoff
			retry.MaxBackoff = steps[idx].Retry.MaxBackoff
			retry.JitterFrac = steps[idx].Retry.JitterFrac
			steps[idx].Retry = retry
		}
		if so.TimeoutSeconds != nil {
			steps[idx].Timeout = time.Duration(*so.TimeoutSeconds) * time.Second
		}
	}
	def.Steps = steps
	return def, nil
}

// RegisterAll applies overrides and registers every definition.
func (r *Registry) RegisterAll(o *Overrides, defs ...jobrt.Definition) error {
	for _, d := range defs {
		tuned, err := o.Apply(d)
		if err != nil {
			return err
		}
		if err := r.Register(tuned); err != nil {
			return err
		}
	}
	return nil
}
