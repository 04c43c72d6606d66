// Package config loads workflow definitions from YAML files. A definition
// carries the ordered steps plus, for the CLI's built-in simulation mode,
// per-executor scripted outcomes.
package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/adyngom/nano-agent/pkg/engine"
	"github.com/adyngom/nano-agent/pkg/models"
)

// ExecutorSpec scripts a simulated executor: it fails its first FailTimes
// invocations with Error, then succeeds with the declared outputs.
type ExecutorSpec struct {
	Result    string         `yaml:"result"`
	Artifacts []string       `yaml:"artifacts"`
	Context   map[string]any `yaml:"context"`
	Cost      float64        `yaml:"cost"`
	Tokens    int            `yaml:"tokens"`
	FailTimes int            `yaml:"fail_times"`
	Error     string         `yaml:"error"`
}

// Definition is the on-disk shape of a workflow file.
type Definition struct {
	ID        string                  `yaml:"id"`
	Name      string                  `yaml:"name"`
	Context   map[string]any          `yaml:"context"`
	Steps     []models.Step           `yaml:"steps"`
	Executors map[string]ExecutorSpec `yaml:"executors"`
	Fallbacks map[string]string       `yaml:"fallbacks"`
}

// Load reads and validates a workflow definition file.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read workflow definition %s", path)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, errors.Wrapf(err, "parse workflow definition %s", path)
	}
	if def.ID == "" {
		return nil, errors.Errorf("workflow definition %s: missing id", path)
	}
	if len(def.Steps) == 0 {
		return nil, errors.Errorf("workflow definition %s: no steps", path)
	}
	prev := 0
	for _, step := range def.Steps {
		if step.Index <= prev {
			return nil, errors.Errorf("workflow definition %s: step indices must be positive and strictly increasing", path)
		}
		prev = step.Index
		if step.ExecutorRef == "" {
			return nil, errors.Errorf("workflow definition %s: step %d has no executor", path, step.Index)
		}
	}
	return &def, nil
}

// Workflow builds the runnable workflow from the definition.
func (d *Definition) Workflow() *models.Workflow {
	steps := make([]models.Step, len(d.Steps))
	copy(steps, d.Steps)
	for i := range steps {
		steps[i].Status = models.PendingStepStatus
	}
	ctx := make(models.Context, len(d.Context))
	for k, v := range d.Context {
		ctx[k] = v
	}
	return &models.Workflow{
		ID:      d.ID,
		Name:    d.Name,
		Status:  models.PendingWorkflowStatus,
		Steps:   steps,
		Context: ctx,
	}
}

// SimulatedExecutor builds an engine executor from a scripted spec.
func SimulatedExecutor(name string, spec ExecutorSpec) engine.Executor {
	var mu sync.Mutex
	calls := 0
	return func(_ context.Context, _ map[string]any, _ models.Context) (engine.Output, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n <= spec.FailTimes {
			msg := spec.Error
			if msg == "" {
				msg = fmt.Sprintf("simulated failure from executor '%s'", name)
			}
			return engine.Output{}, errors.New(msg)
		}
		return engine.Output{
			Result:     spec.Result,
			Context:    spec.Context,
			Artifacts:  spec.Artifacts,
			Cost:       spec.Cost,
			TokensUsed: spec.Tokens,
		}, nil
	}
}
