package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_storage "github.com/adyngom/nano-agent/internal/storage"
	"github.com/adyngom/nano-agent/internal/testutil"
	"github.com/adyngom/nano-agent/pkg/models"
	"github.com/adyngom/nano-agent/pkg/storage"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}

	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
	require.NoError(t, err)
	defer store.Close()

	ctx := models.Context{"feature": "csv_export", "tests_passed": true}
	artifacts := []string{"CG_TDD_42.md", "implementation_code"}

	t.Run("RoundTrip", func(t *testing.T) {
		saved, err := store.Save("wf-pg", 2, []int{1, 2}, ctx, artifacts)
		assert.NoError(t, err)

		loaded, err := store.Load("wf-pg", 2)
		assert.NoError(t, err)
		assert.Equal(t, "wf-pg", loaded.WorkflowID)
		assert.Equal(t, []int{1, 2}, loaded.CompletedIndices)
		assert.Equal(t, ctx, loaded.Context)
		assert.Equal(t, artifacts, loaded.Artifacts)
		assert.Equal(t, saved.IntegrityDigest, loaded.IntegrityDigest)
		assert.False(t, loaded.IntegrityWarning)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Load("wf-pg", 99)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpsertLastWriteWins", func(t *testing.T) {
		_, err := store.Save("wf-pg", 5, []int{5}, models.Context{"v": "first"}, nil)
		assert.NoError(t, err)
		_, err = store.Save("wf-pg", 5, []int{5}, models.Context{"v": "second"}, nil)
		assert.NoError(t, err)

		loaded, err := store.Load("wf-pg", 5)
		assert.NoError(t, err)
		assert.Equal(t, "second", loaded.Context["v"])
	})

	t.Run("FindLatestBefore", func(t *testing.T) {
		_, err := store.Save("wf-scan", 1, []int{1}, models.Context{}, nil)
		require.NoError(t, err)
		_, err = store.Save("wf-scan", 4, []int{1, 4}, models.Context{}, nil)
		require.NoError(t, err)

		cp, err := store.FindLatestBefore("wf-scan", 6)
		assert.NoError(t, err)
		assert.Equal(t, 4, cp.StepIndex)

		cp, err = store.FindLatestBefore("wf-scan", 4)
		assert.NoError(t, err)
		assert.Equal(t, 1, cp.StepIndex)

		_, err = store.FindLatestBefore("wf-scan", 1)
		assert.ErrorIs(t, err, storage.ErrNoValidCheckpoint)
	})

	t.Run("WorkflowNamespacing", func(t *testing.T) {
		_, err := store.Save("wf-x", 1, []int{1}, models.Context{"owner": "x"}, nil)
		require.NoError(t, err)
		_, err = store.Save("wf-y", 1, []int{1}, models.Context{"owner": "y"}, nil)
		require.NoError(t, err)

		indices, err := store.List("wf-x")
		assert.NoError(t, err)
		assert.Equal(t, []int{1}, indices)

		cp, err := store.Load("wf-y", 1)
		assert.NoError(t, err)
		assert.Equal(t, "y", cp.Context["owner"])
	})
}
