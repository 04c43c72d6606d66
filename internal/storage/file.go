package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adyngom/nano-agent/pkg/models"
	"github.com/adyngom/nano-agent/pkg/storage"
)

// FileStore persists checkpoints as human-readable JSON files, one file per
// (workflowID, stepIndex), under <root>/<workflowID>/step_<N>_state.json.
// Writes go to a temp file in the same directory followed by a rename, so a
// reader never observes a half-written checkpoint.
type FileStore struct {
	root string
}

// NewFileStore creates the storage root if needed. The root is scoped to one
// engine instance; distinct workflows get their own subdirectory, so
// concurrent saves across workflow IDs never cross-contaminate.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("checkpoint root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &storage.PersistenceError{Op: "save", Cause: err}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) checkpointPath(workflowID string, stepIndex int) string {
	return filepath.Join(s.root, workflowID, fmt.Sprintf("step_%d_state.json", stepIndex))
}

func (s *FileStore) Save(workflowID string, stepIndex int, completedIndices []int, ctx models.Context, artifacts []string) (models.Checkpoint, error) {
	cp := models.Checkpoint{
		WorkflowID:       workflowID,
		StepIndex:        stepIndex,
		Timestamp:        time.Now(),
		CompletedIndices: append([]int(nil), completedIndices...),
		Context:          ctx.Clone(),
		Artifacts:        append([]string(nil), artifacts...),
		IntegrityDigest:  models.IntegrityDigest(workflowID, ctx, artifacts),
	}

	dir := filepath.Join(s.root, workflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".step_%d_*", stepIndex))
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	if err := os.Rename(tmpName, s.checkpointPath(workflowID, stepIndex)); err != nil {
		os.Remove(tmpName)
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	return cp, nil
}

func (s *FileStore) Load(workflowID string, stepIndex int) (models.Checkpoint, error) {
	raw, err := os.ReadFile(s.checkpointPath(workflowID, stepIndex))
	if os.IsNotExist(err) {
		return models.Checkpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}
	cp.IntegrityWarning = !cp.Verify()
	return cp, nil
}

func (s *FileStore) FindLatestBefore(workflowID string, stepIndex int) (models.Checkpoint, error) {
	for idx := stepIndex - 1; idx >= 1; idx-- {
		cp, err := s.Load(workflowID, idx)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			// Unreadable records are skipped, they cannot serve as a
			// recovery source.
			continue
		}
		return cp, nil
	}
	return models.Checkpoint{}, storage.ErrNoValidCheckpoint
}

func (s *FileStore) List(workflowID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "load", Cause: err}
	}

	var indices []int
	for _, entry := range entries {
		var idx int
		if _, err := fmt.Sscanf(entry.Name(), "step_%d_state.json", &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

func (s *FileStore) Close() error {
	return nil
}
