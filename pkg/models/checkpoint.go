package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Checkpoint is a durable snapshot of shared workflow state taken immediately
// after a step completes. One checkpoint exists per (WorkflowID, StepIndex),
// last-write-wins.
type Checkpoint struct {
	WorkflowID       string    `json:"workflow_id"`
	StepIndex        int       `json:"step_index"`
	Timestamp        time.Time `json:"timestamp"`
	CompletedIndices []int     `json:"completed_indices"` // Steps durably complete as of this snapshot
	Context          Context   `json:"context"`
	Artifacts        []string  `json:"artifacts"`
	IntegrityDigest  string    `json:"integrity_digest"` // Hex digest over {workflow_id, context, artifacts}

	// IntegrityWarning is set by Load when the stored digest does not match a
	// digest recomputed from the record itself. Corrupted-but-readable state
	// is still returned; the caller must log the discrepancy. Never persisted.
	IntegrityWarning bool `json:"-"`
}

// Verify recomputes the digest from the checkpoint's own context and
// artifacts and compares it against the stored one.
func (c *Checkpoint) Verify() bool {
	return IntegrityDigest(c.WorkflowID, c.Context, c.Artifacts) == c.IntegrityDigest
}

// IntegrityDigest computes a deterministic fingerprint over the checkpoint
// payload. Artifacts are sorted lexically before digesting so the digest is
// stable regardless of insertion order; map keys are sorted by the JSON
// encoder. The digest is the first 16 hex characters of a SHA-256 sum.
func IntegrityDigest(workflowID string, ctx Context, artifacts []string) string {
	sorted := make([]string, len(artifacts))
	copy(sorted, artifacts)
	sort.Strings(sorted)

	payload := struct {
		WorkflowID string   `json:"workflow_id"`
		Context    Context  `json:"context"`
		Artifacts  []string `json:"artifacts"`
	}{workflowID, ctx, sorted}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Context values come from JSON/YAML decoding, unmarshalable values
		// cannot appear here.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
