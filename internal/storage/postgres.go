package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/adyngom/nano-agent/pkg/models"
	"github.com/adyngom/nano-agent/pkg/storage"
)

// PostgresStore persists checkpoints in a single table with a composite
// (workflow_id, step_index) primary key. Saves upsert, so the row-level
// last-write-wins semantics match the file store. Context and artifacts are
// stored as jsonb.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// checkpointRow mirrors the checkpoints table.
type checkpointRow struct {
	WorkflowID       string          `db:"workflow_id"`
	StepIndex        int             `db:"step_index"`
	CreatedAt        time.Time       `db:"created_at"`
	CompletedIndices json.RawMessage `db:"completed_indices"`
	Context          json.RawMessage `db:"context"`
	Artifacts        json.RawMessage `db:"artifacts"`
	IntegrityDigest  string          `db:"integrity_digest"`
}

func (r checkpointRow) toCheckpoint() (models.Checkpoint, error) {
	cp := models.Checkpoint{
		WorkflowID:      r.WorkflowID,
		StepIndex:       r.StepIndex,
		Timestamp:       r.CreatedAt,
		IntegrityDigest: r.IntegrityDigest,
	}
	if err := json.Unmarshal(r.CompletedIndices, &cp.CompletedIndices); err != nil {
		return models.Checkpoint{}, err
	}
	if err := json.Unmarshal(r.Context, &cp.Context); err != nil {
		return models.Checkpoint{}, err
	}
	if err := json.Unmarshal(r.Artifacts, &cp.Artifacts); err != nil {
		return models.Checkpoint{}, err
	}
	cp.IntegrityWarning = !cp.Verify()
	return cp, nil
}

func (s *PostgresStore) Save(workflowID string, stepIndex int, completedIndices []int, ctx models.Context, artifacts []string) (models.Checkpoint, error) {
	cp := models.Checkpoint{
		WorkflowID:       workflowID,
		StepIndex:        stepIndex,
		Timestamp:        time.Now(),
		CompletedIndices: append([]int(nil), completedIndices...),
		Context:          ctx.Clone(),
		Artifacts:        append([]string(nil), artifacts...),
		IntegrityDigest:  models.IntegrityDigest(workflowID, ctx, artifacts),
	}
	if cp.CompletedIndices == nil {
		cp.CompletedIndices = []int{}
	}
	if cp.Artifacts == nil {
		cp.Artifacts = []string{}
	}

	completedJSON, err := json.Marshal(cp.CompletedIndices)
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	contextJSON, err := json.Marshal(cp.Context)
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	artifactsJSON, err := json.Marshal(cp.Artifacts)
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (workflow_id, step_index, created_at, completed_indices, context, artifacts, integrity_digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workflow_id, step_index) DO UPDATE
		SET created_at = EXCLUDED.created_at,
		    completed_indices = EXCLUDED.completed_indices,
		    context = EXCLUDED.context,
		    artifacts = EXCLUDED.artifacts,
		    integrity_digest = EXCLUDED.integrity_digest`,
		cp.WorkflowID, cp.StepIndex, cp.Timestamp, completedJSON, contextJSON, artifactsJSON, cp.IntegrityDigest)
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "save", Cause: err}
	}
	return cp, nil
}

func (s *PostgresStore) Load(workflowID string, stepIndex int) (models.Checkpoint, error) {
	var row checkpointRow
	err := s.db.Get(&row, "SELECT * FROM checkpoints WHERE workflow_id = $1 AND step_index = $2", workflowID, stepIndex)
	if err == sql.ErrNoRows {
		return models.Checkpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}
	cp, err := row.toCheckpoint()
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}
	return cp, nil
}

func (s *PostgresStore) FindLatestBefore(workflowID string, stepIndex int) (models.Checkpoint, error) {
	var row checkpointRow
	err := s.db.Get(&row, `
		SELECT * FROM checkpoints
		WHERE workflow_id = $1 AND step_index < $2 AND step_index >= 1
		ORDER BY step_index DESC LIMIT 1`, workflowID, stepIndex)
	if err == sql.ErrNoRows {
		return models.Checkpoint{}, storage.ErrNoValidCheckpoint
	}
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}
	cp, err := row.toCheckpoint()
	if err != nil {
		return models.Checkpoint{}, &storage.PersistenceError{Op: "load", Cause: err}
	}
	return cp, nil
}

func (s *PostgresStore) List(workflowID string) ([]int, error) {
	indices := []int{}
	err := s.db.Select(&indices, "SELECT step_index FROM checkpoints WHERE workflow_id = $1 ORDER BY step_index", workflowID)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "load", Cause: err}
	}
	return indices, nil
}
