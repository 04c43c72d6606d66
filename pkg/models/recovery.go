package models

import "time"

// ErrorClass is the closed classification of step failures.
type ErrorClass string

const (
	ValidationError ErrorClass = "VALIDATION"
	TimeoutError    ErrorClass = "TIMEOUT"
	DependencyError ErrorClass = "DEPENDENCY"
	UnknownError    ErrorClass = "UNKNOWN"
)

// RecoveryStrategy names the policy chosen in response to a classified
// failure.
type RecoveryStrategy string

const (
	CheckpointRecovery RecoveryStrategy = "CHECKPOINT_RECOVERY"
	RetryWithFallback  RecoveryStrategy = "RETRY_WITH_FALLBACK"
	CompensatingAction RecoveryStrategy = "COMPENSATING_ACTION"
	// SkipAndContinue is declared for completeness; no policy currently
	// plans it.
	SkipAndContinue RecoveryStrategy = "SKIP_AND_CONTINUE"
)

// Action is a named compensating action applied to shared state before a
// retried dispatch.
type Action string

const (
	RevalidateInputAction       Action = "input_format_validation"
	NormalizeInputAction        Action = "specification_format_correction"
	SwitchFallbackAction        Action = "switch_to_fallback_agent"
	ReduceScopeAction           Action = "reduce_complexity"
	RegenerateDependencyAction  Action = "regenerate_dependencies"
	ValidatePrerequisitesAction Action = "validate_prerequisites"
)

// RecoveryEvent records one failure-then-retry cycle. It is created once a
// restore point has been located and finalized when the retried step either
// succeeds or exhausts its retries; immutable afterwards.
type RecoveryEvent struct {
	ID                    string           `json:"event_id"`
	Timestamp             time.Time        `json:"timestamp"`
	TriggeringError       string           `json:"trigger"`
	Strategy              RecoveryStrategy `json:"strategy"`
	SourceCheckpointIndex int              `json:"source_checkpoint"`
	DurationMs            int64            `json:"duration_ms"`
	Success               bool             `json:"success"`
	RecoveredArtifacts    []string         `json:"artifacts_recovered"`
	CompensatingActions   []Action         `json:"compensating_actions"`
}
