package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_http "github.com/adyngom/nano-agent/internal/http"
	"github.com/adyngom/nano-agent/pkg/models"
	"github.com/adyngom/nano-agent/pkg/storage"
)

func newServer(store storage.Store) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", internal_http.HealthHandler)
	mux.HandleFunc("/checkpoints", internal_http.CheckpointsHandler(store))
	return httptest.NewServer(mux)
}

func seedStore(t *testing.T) *storage.MockStore {
	t.Helper()
	store := storage.NewMockStore()
	ctx := models.Context{"feature": "csv_export"}
	_, err := store.Save("wf-1", 1, []int{1}, ctx, []string{"a.md"})
	require.NoError(t, err)
	_, err = store.Save("wf-1", 2, []int{1, 2}, ctx, []string{"a.md", "b.md"})
	require.NoError(t, err)
	return store
}

func TestHealthEndpoint(t *testing.T) {
	server := newServer(storage.NewMockStore())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Checkpoint server is running", string(body))
}

func TestCheckpointsEndpoint(t *testing.T) {
	server := newServer(seedStore(t))
	defer server.Close()

	t.Run("ListsCheckpointIndices", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints?workflow=wf-1")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "workflow wf-1 step 1")
		assert.Contains(t, string(body), "workflow wf-1 step 2")
	})

	t.Run("ReturnsSingleCheckpointAsJSON", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints?workflow=wf-1&step=2")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var cp models.Checkpoint
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cp))
		assert.Equal(t, "wf-1", cp.WorkflowID)
		assert.Equal(t, 2, cp.StepIndex)
		assert.Equal(t, []int{1, 2}, cp.CompletedIndices)
		assert.Equal(t, []string{"a.md", "b.md"}, cp.Artifacts)
	})

	t.Run("UnknownStepReturns404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints?workflow=wf-1&step=9")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("MissingWorkflowParamReturns400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidStepParamReturns400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints?workflow=wf-1&step=abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownWorkflowListsNothing", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/checkpoints?workflow=ghost")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "No checkpoints found")
	})

	t.Run("RejectsNonGET", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/checkpoints?workflow=wf-1", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
