package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/adyngom/nano-agent/pkg/models"
)

// MockStore implements Store with in-memory storage. It is safe for
// concurrent use across workflow IDs and is intended for tests and examples.
type MockStore struct {
	mu          sync.RWMutex
	checkpoints map[string]map[int]models.Checkpoint // workflowID -> stepIndex -> record

	// FailSaves makes every Save return a PersistenceError without writing,
	// to exercise degraded-durability paths.
	FailSaves bool

	// CorruptDigests makes Save store a bogus digest so that Load flags an
	// integrity warning.
	CorruptDigests bool
}

func NewMockStore() *MockStore {
	return &MockStore{checkpoints: make(map[string]map[int]models.Checkpoint)}
}

func (m *MockStore) Save(workflowID string, stepIndex int, completedIndices []int, ctx models.Context, artifacts []string) (models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves {
		return models.Checkpoint{}, &PersistenceError{Op: "save", Cause: errors.New("mock store save disabled")}
	}

	cp := models.Checkpoint{
		WorkflowID:       workflowID,
		StepIndex:        stepIndex,
		Timestamp:        time.Now(),
		CompletedIndices: append([]int(nil), completedIndices...),
		Context:          ctx.Clone(),
		Artifacts:        append([]string(nil), artifacts...),
		IntegrityDigest:  models.IntegrityDigest(workflowID, ctx, artifacts),
	}
	if m.CorruptDigests {
		cp.IntegrityDigest = "0000000000000000"
	}

	if m.checkpoints[workflowID] == nil {
		m.checkpoints[workflowID] = make(map[int]models.Checkpoint)
	}
	m.checkpoints[workflowID][stepIndex] = cp
	return cp, nil
}

func (m *MockStore) Load(workflowID string, stepIndex int) (models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[workflowID][stepIndex]
	if !ok {
		return models.Checkpoint{}, ErrNotFound
	}
	cp.IntegrityWarning = !cp.Verify()
	return cp, nil
}

func (m *MockStore) FindLatestBefore(workflowID string, stepIndex int) (models.Checkpoint, error) {
	for idx := stepIndex - 1; idx >= 1; idx-- {
		cp, err := m.Load(workflowID, idx)
		if err == nil {
			return cp, nil
		}
	}
	return models.Checkpoint{}, ErrNoValidCheckpoint
}

func (m *MockStore) List(workflowID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var indices []int
	for idx := range m.checkpoints[workflowID] {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

func (m *MockStore) Close() error {
	return nil
}
