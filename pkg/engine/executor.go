package engine

import (
	"context"
	"fmt"

	"github.com/adyngom/nano-agent/pkg/models"
)

// Output is what an executor hands back on success. Context and Artifacts
// are merged additively into the workflow's shared state; Cost and
// TokensUsed accumulate on the step and the workflow totals.
type Output struct {
	Result     string         // Human-readable summary of the produced work
	Context    map[string]any // Keys merged into shared context, last-writer-wins
	Artifacts  []string       // Artifact identifiers, appended in order
	Cost       float64
	TokensUsed int
}

// Executor performs the actual work of a step. The engine is agnostic to the
// implementation (local function, RPC, subprocess) as long as the call is
// synchronous and returns a classifiable error on failure. The shared
// context is a read-only view; state flows back through Output.
type Executor func(ctx context.Context, input map[string]any, shared models.Context) (Output, error)

// RegisterExecutor makes an executor available under the given name. Steps
// reference executors by this name. Re-registering a name replaces the
// previous executor.
func (e *Engine) RegisterExecutor(name string, fn Executor) error {
	if len(name) == 0 {
		return fmt.Errorf("empty executor name")
	}
	if fn == nil {
		return fmt.Errorf("nil executor function for '%s'", name)
	}
	e.mu.Lock()
	e.executors[name] = fn
	e.mu.Unlock()
	e.logger.Infof("Registered executor '%s'", name)
	return nil
}
