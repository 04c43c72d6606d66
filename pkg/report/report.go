// Package report renders final engine state into human-readable summaries.
// It is a read-only consumer of the engine's public accessors; no engine
// behavior depends on it.
package report

import (
	"fmt"
	"strings"

	"github.com/adyngom/nano-agent/pkg/models"
)

// StepSummary is one row of the per-step table.
type StepSummary struct {
	Index        int
	Name         string
	Status       models.StepStatus
	DurationMs   int64
	Cost         float64
	TokensUsed   int
	Attempts     int
	ErrorMessage string
}

// Report is the summarized outcome of a workflow run.
type Report struct {
	WorkflowID     string
	WorkflowName   string
	Status         models.WorkflowStatus
	TotalSteps     int
	CompletedSteps int // Includes recovered steps
	FailedSteps    int
	RecoveredSteps int
	SuccessRate    float64 // 0..100
	TotalCost      float64
	TotalTokens    int
	ExecutionMs    int64 // Sum of step durations
	RecoveryMs     int64 // Sum of recovery event durations
	Steps          []StepSummary
	RecoveryEvents []models.RecoveryEvent
	Artifacts      []string
}

// Generate builds a report from a workflow snapshot and its recovery log.
func Generate(wf models.Workflow, events []models.RecoveryEvent) Report {
	r := Report{
		WorkflowID:     wf.ID,
		WorkflowName:   wf.Name,
		Status:         wf.Status,
		TotalSteps:     len(wf.Steps),
		TotalCost:      wf.TotalCost,
		TotalTokens:    wf.TotalTokens,
		RecoveryEvents: events,
		Artifacts:      wf.Artifacts,
	}

	for _, step := range wf.Steps {
		r.Steps = append(r.Steps, StepSummary{
			Index:        step.Index,
			Name:         step.Name,
			Status:       step.Status,
			DurationMs:   step.DurationMs,
			Cost:         step.Cost,
			TokensUsed:   step.TokensUsed,
			Attempts:     step.Attempt,
			ErrorMessage: step.ErrorDetail,
		})
		r.ExecutionMs += step.DurationMs
		switch step.Status {
		case models.RecoveredStepStatus:
			r.RecoveredSteps++
			r.CompletedSteps++
		case models.CompletedStepStatus:
			r.CompletedSteps++
		case models.FailedStepStatus:
			r.FailedSteps++
		}
	}
	if r.TotalSteps > 0 {
		r.SuccessRate = float64(r.CompletedSteps) / float64(r.TotalSteps) * 100
	}
	for _, event := range events {
		r.RecoveryMs += event.DurationMs
	}
	return r
}

// RenderText formats the report as plain text.
func (r Report) RenderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s (%s)\n", r.WorkflowName, r.WorkflowID)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Steps: %d total, %d completed, %d recovered, %d failed (%.1f%% success)\n",
		r.TotalSteps, r.CompletedSteps, r.RecoveredSteps, r.FailedSteps, r.SuccessRate)
	fmt.Fprintf(&b, "Execution: %dms (recovery overhead %dms)\n", r.ExecutionMs, r.RecoveryMs)
	fmt.Fprintf(&b, "Cost: $%.4f, Tokens: %d\n", r.TotalCost, r.TotalTokens)

	b.WriteString("\nSteps:\n")
	for _, step := range r.Steps {
		fmt.Fprintf(&b, "- [%d] %s: %s (%dms, %d attempt(s))", step.Index, step.Name, step.Status, step.DurationMs, step.Attempts)
		if step.ErrorMessage != "" {
			fmt.Fprintf(&b, " error: %s", step.ErrorMessage)
		}
		b.WriteString("\n")
	}

	if len(r.RecoveryEvents) > 0 {
		b.WriteString("\nRecovery events:\n")
		for _, event := range r.RecoveryEvents {
			fmt.Fprintf(&b, "- %s: %s from checkpoint %d, success=%t, actions=[%s]\n",
				event.ID, event.Strategy, event.SourceCheckpointIndex, event.Success, joinActions(event.CompensatingActions))
		}
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("\nArtifacts:\n")
		for _, artifact := range r.Artifacts {
			fmt.Fprintf(&b, "- %s\n", artifact)
		}
	}
	return b.String()
}

// RenderMarkdown formats the report as markdown with a step table.
func (r Report) RenderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow Report: %s\n\n", r.WorkflowName)
	fmt.Fprintf(&b, "**ID:** `%s`  \n**Status:** %s  \n**Success rate:** %.1f%%  \n**Cost:** $%.4f (%d tokens)\n\n",
		r.WorkflowID, r.Status, r.SuccessRate, r.TotalCost, r.TotalTokens)

	b.WriteString("| Step | Name | Status | Duration | Attempts | Error |\n")
	b.WriteString("|------|------|--------|----------|----------|-------|\n")
	for _, step := range r.Steps {
		fmt.Fprintf(&b, "| %d | %s | %s | %dms | %d | %s |\n",
			step.Index, step.Name, step.Status, step.DurationMs, step.Attempts, step.ErrorMessage)
	}

	if len(r.RecoveryEvents) > 0 {
		b.WriteString("\n## Recovery Events\n\n")
		for _, event := range r.RecoveryEvents {
			fmt.Fprintf(&b, "- **%s**: strategy %s, source checkpoint %d, success %t, duration %dms\n",
				event.ID, event.Strategy, event.SourceCheckpointIndex, event.Success, event.DurationMs)
			if len(event.CompensatingActions) > 0 {
				fmt.Fprintf(&b, "  - actions: %s\n", joinActions(event.CompensatingActions))
			}
		}
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n\n")
		for _, artifact := range r.Artifacts {
			fmt.Fprintf(&b, "- `%s`\n", artifact)
		}
	}
	return b.String()
}

func joinActions(actions []models.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
