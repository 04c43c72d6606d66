package storage

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/adyngom/nano-agent/pkg/models"
)

var (
	// ErrNotFound is returned by Load when no checkpoint exists at the
	// requested (workflowID, stepIndex) key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrNoValidCheckpoint is returned by FindLatestBefore when no
	// checkpoint exists at any index below the requested one.
	ErrNoValidCheckpoint = errors.New("no valid checkpoint found")
)

// PersistenceError wraps an I/O failure of the durable medium. Callers on
// the happy path treat it as non-fatal to the in-memory step result but must
// surface a warning.
type PersistenceError struct {
	Op    string // "save" or "load"
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s failed: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// Store defines durable checkpoint persistence keyed by
// (workflowID, stepIndex). Implementations must namespace records by
// workflow ID so concurrent workflows never cross-contaminate, and per-key
// writes must be atomic: a reader never observes a half-written checkpoint.
type Store interface {
	// Save computes the integrity digest over the payload and writes the
	// full checkpoint record, overwriting any prior record at the same key.
	Save(workflowID string, stepIndex int, completedIndices []int, ctx models.Context, artifacts []string) (models.Checkpoint, error)

	// Load retrieves the checkpoint at the exact key. On digest mismatch the
	// checkpoint is returned anyway with IntegrityWarning set.
	Load(workflowID string, stepIndex int) (models.Checkpoint, error)

	// FindLatestBefore scans downward from stepIndex-1 and returns the most
	// recent existing checkpoint, or ErrNoValidCheckpoint.
	FindLatestBefore(workflowID string, stepIndex int) (models.Checkpoint, error)

	// List returns the step indices with a stored checkpoint, ascending.
	List(workflowID string) ([]int, error)

	Close() error
}
