package models

import "time"

type WorkflowStatus string

const (
	PendingWorkflowStatus   WorkflowStatus = "PENDING"
	RunningWorkflowStatus   WorkflowStatus = "RUNNING"
	CompletedWorkflowStatus WorkflowStatus = "COMPLETED"
	FailedWorkflowStatus    WorkflowStatus = "FAILED"
)

// Context is the shared mutable key-value state visible to all steps of one
// workflow. Keys accumulate across steps; the engine is the sole mutator.
type Context map[string]any

// Clone returns a shallow copy. Values are treated as immutable once written.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge applies updates additively, last-writer-wins on key collisions.
func (c Context) Merge(updates map[string]any) {
	for k, v := range updates {
		c[k] = v
	}
}

// Workflow is an ordered sequence of steps plus the shared state they
// accumulate. CurrentStep is a position in Steps (0-based), allowing a
// partially-run workflow to be resumed after its state was reloaded from
// the latest checkpoint.
type Workflow struct {
	ID          string         `json:"workflow_id" yaml:"id"`  // Unique identifier, namespaces checkpoints
	Name        string         `json:"name" yaml:"name"`       // Descriptive name (e.g., "csv-export-tdd")
	Status      WorkflowStatus `json:"status" yaml:"-"`
	CurrentStep int            `json:"current_step" yaml:"-"`  // Position in Steps where Run picks up
	Steps       []Step         `json:"steps" yaml:"steps"`     // Ordered by Index, ties forbidden
	Context     Context        `json:"context" yaml:"context"` // Shared mutable state
	Artifacts   []string       `json:"artifacts" yaml:"-"`     // Append-only, creation order, no duplicates
	TotalCost   float64        `json:"total_cost" yaml:"-"`
	TotalTokens int            `json:"total_tokens" yaml:"-"`
	StartedAt   *time.Time     `json:"started_at,omitempty" yaml:"-"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty" yaml:"-"`
}

// StepAt returns a pointer to the step at the given position in Steps.
func (w *Workflow) StepAt(pos int) *Step {
	return &w.Steps[pos]
}

// CompletedIndices returns the indices of steps currently considered durably
// complete, in ascending order. Failed and pending steps are never included.
func (w *Workflow) CompletedIndices() []int {
	var out []int
	for i := range w.Steps {
		if w.Steps[i].Status.Succeeded() {
			out = append(out, w.Steps[i].Index)
		}
	}
	return out
}

// HasArtifact reports whether the artifact identifier was already recorded.
func (w *Workflow) HasArtifact(id string) bool {
	for _, a := range w.Artifacts {
		if a == id {
			return true
		}
	}
	return false
}
