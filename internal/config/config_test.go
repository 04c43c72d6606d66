package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adyngom/nano-agent/internal/config"
	"github.com/adyngom/nano-agent/pkg/models"
)

const validDefinition = `
id: wf-csv-export
name: CSV export feature
context:
  issue: "42"
steps:
  - index: 1
    name: analysis
    executor: analyzer
    input:
      issue: "42"
  - index: 2
    name: planning
    executor: planner
executors:
  analyzer:
    result: CG_TDD_42.md
    artifacts: [CG_TDD_42.md]
    cost: 0.01
    tokens: 150
  planner:
    result: tests planned
    fail_times: 1
    error: "VALIDATION_ERROR: invalid specification format"
fallbacks:
  planner: planner-mini
`

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	def, err := config.Load(writeDefinition(t, validDefinition))
	require.NoError(t, err)

	assert.Equal(t, "wf-csv-export", def.ID)
	assert.Equal(t, "CSV export feature", def.Name)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "analyzer", def.Steps[0].ExecutorRef)
	assert.Equal(t, "42", def.Steps[0].Input["issue"])
	assert.Equal(t, 1, def.Executors["planner"].FailTimes)
	assert.Equal(t, "planner-mini", def.Fallbacks["planner"])
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"missing id", "name: x\nsteps:\n  - index: 1\n    executor: e\n", "missing id"},
		{"no steps", "id: wf\nname: x\n", "no steps"},
		{"duplicate index", "id: wf\nsteps:\n  - index: 1\n    executor: e\n  - index: 1\n    executor: e\n", "strictly increasing"},
		{"zero index", "id: wf\nsteps:\n  - index: 0\n    executor: e\n", "strictly increasing"},
		{"no executor", "id: wf\nsteps:\n  - index: 1\n    name: x\n", "no executor"},
		{"bad yaml", "id: [unclosed\n", "parse workflow definition"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeDefinition(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDefinitionWorkflow(t *testing.T) {
	def, err := config.Load(writeDefinition(t, validDefinition))
	require.NoError(t, err)

	wf := def.Workflow()
	assert.Equal(t, "wf-csv-export", wf.ID)
	assert.Equal(t, models.PendingWorkflowStatus, wf.Status)
	assert.Equal(t, "42", wf.Context["issue"])
	for _, step := range wf.Steps {
		assert.Equal(t, models.PendingStepStatus, step.Status)
		assert.Zero(t, step.Attempt)
	}

	// The definition is not aliased by the built workflow.
	wf.Steps[0].Name = "mutated"
	wf.Context["issue"] = "other"
	assert.Equal(t, "analysis", def.Steps[0].Name)
	assert.Equal(t, "42", def.Context["issue"])
}

func TestSimulatedExecutor(t *testing.T) {
	exec := config.SimulatedExecutor("planner", config.ExecutorSpec{
		Result:    "done",
		Artifacts: []string{"out.md"},
		Cost:      0.02,
		Tokens:    200,
		FailTimes: 2,
		Error:     "TIMEOUT: agent took too long",
	})

	for i := 0; i < 2; i++ {
		_, err := exec(context.Background(), nil, nil)
		require.Error(t, err)
		assert.Equal(t, "TIMEOUT: agent took too long", err.Error())
	}

	out, err := exec(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Result)
	assert.Equal(t, []string{"out.md"}, out.Artifacts)
	assert.Equal(t, 200, out.TokensUsed)
}

func TestSimulatedExecutorDefaultError(t *testing.T) {
	exec := config.SimulatedExecutor("analyzer", config.ExecutorSpec{FailTimes: 1})
	_, err := exec(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzer")
}
