package models

import "time"

type StepStatus string

const (
	PendingStepStatus    StepStatus = "PENDING"
	InProgressStepStatus StepStatus = "IN_PROGRESS"
	CompletedStepStatus  StepStatus = "COMPLETED"
	FailedStepStatus     StepStatus = "FAILED"
	RecoveredStepStatus  StepStatus = "RECOVERED"
)

// Terminal reports whether the status is a per-step end state.
func (s StepStatus) Terminal() bool {
	return s == CompletedStepStatus || s == RecoveredStepStatus || s == FailedStepStatus
}

// Succeeded reports whether the step finished successfully, on the first
// attempt or after recovery.
func (s StepStatus) Succeeded() bool {
	return s == CompletedStepStatus || s == RecoveredStepStatus
}

// Step represents one ordered unit of work in a workflow, dispatched to a
// named executor. Index is the identity within a workflow; Name is a label.
type Step struct {
	Index        int            `json:"index" yaml:"index"`              // Execution order, unique and positive
	Name         string         `json:"name" yaml:"name"`                // Descriptive label (e.g., "Test Planning")
	ExecutorRef  string         `json:"executor_ref" yaml:"executor"`    // Registered executor performing the work
	Input        map[string]any `json:"input" yaml:"input"`              // Immutable once the step starts
	Status       StepStatus     `json:"status" yaml:"-"`                 // See state machine in engine
	Output       map[string]any `json:"output,omitempty" yaml:"-"`       // Set only on success
	ErrorClass   ErrorClass     `json:"error_class,omitempty" yaml:"-"`  // Set only when Status is FAILED
	ErrorDetail  string         `json:"error_detail,omitempty" yaml:"-"` // Raw executor error message
	Attempt      int            `json:"attempt" yaml:"-"`                // Dispatch count, starts at 0
	Checkpointed bool           `json:"checkpointed" yaml:"-"`           // True once a checkpoint was durably written
	StartedAt    *time.Time     `json:"started_at,omitempty" yaml:"-"`   // Nullable dispatch time
	FinishedAt   *time.Time     `json:"finished_at,omitempty" yaml:"-"`  // Nullable end time
	DurationMs   int64          `json:"duration_ms" yaml:"-"`            // Wall-clock time of the last attempt
	Cost         float64        `json:"cost" yaml:"-"`                   // Accumulated executor cost
	TokensUsed   int            `json:"tokens_used" yaml:"-"`            // Accumulated executor token usage
}
