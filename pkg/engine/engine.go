// Package engine implements checkpointed workflow execution: steps run
// strictly in order, shared state is snapshotted after every successful
// step, and failures are recovered by restoring the nearest prior
// checkpoint, applying compensating actions and retrying up to a bounded
// count.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/adyngom/nano-agent/pkg/models"
	"github.com/adyngom/nano-agent/pkg/recovery"
	"github.com/adyngom/nano-agent/pkg/storage"
)

const DefaultMaxRetries = 3

// Logger defines the logging interface for the engine.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RunError is the terminal failure of a workflow run. It carries the index
// and detail of the step that brought the run down.
type RunError struct {
	StepIndex int
	StepName  string
	Class     models.ErrorClass
	Detail    string
	Cause     error
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workflow failed at step %d (%s): %v", e.StepIndex, e.StepName, e.Cause)
	}
	return fmt.Sprintf("workflow failed at step %d (%s): %s: %s", e.StepIndex, e.StepName, e.Class, e.Detail)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries bounds the per-step retry count.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithFallbackExecutors declares lower-cost alternates, keyed by the primary
// executor name. The RetryWithFallback strategy redirects the retried
// dispatch to the alternate when one is configured.
func WithFallbackExecutors(fallbacks map[string]string) Option {
	return func(e *Engine) {
		for k, v := range fallbacks {
			e.fallbacks[k] = v
		}
	}
}

// Engine executes one workflow. It exclusively owns the step list, the
// shared context and the artifact list; the checkpoint store owns only the
// serialized snapshots. Independent workflows run on independent engine
// instances, which may share a store.
type Engine struct {
	wf         *models.Workflow
	store      storage.Store
	logger     Logger
	executors  map[string]Executor
	fallbacks  map[string]string
	maxRetries int

	mu        sync.RWMutex
	events    []models.RecoveryEvent
	openEvent bool // last event in events awaits its retry outcome
}

func NewEngine(wf *models.Workflow, store storage.Store, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		wf:         wf,
		store:      store,
		logger:     logger,
		executors:  make(map[string]Executor),
		fallbacks:  make(map[string]string),
		maxRetries: DefaultMaxRetries,
	}
	if wf.Context == nil {
		wf.Context = make(models.Context)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// validate checks step ordering and executor wiring before any dispatch.
func (e *Engine) validate() error {
	prev := 0
	for i := range e.wf.Steps {
		step := &e.wf.Steps[i]
		if step.Index <= prev {
			return errors.Errorf("step indices must be positive and strictly increasing, got %d after %d", step.Index, prev)
		}
		prev = step.Index
		e.mu.RLock()
		_, ok := e.executors[step.ExecutorRef]
		e.mu.RUnlock()
		if !ok {
			return errors.Errorf("executor '%s' for step %d is not registered", step.ExecutorRef, step.Index)
		}
	}
	return nil
}

// Run executes the workflow as a single ordered pass over the steps,
// starting at CurrentStep. Returns the final workflow status; a non-nil
// error is always a *RunError describing the terminal failure.
func (e *Engine) Run(ctx context.Context) (models.WorkflowStatus, error) {
	if err := e.validate(); err != nil {
		return e.wf.Status, &RunError{StepIndex: 0, Detail: err.Error(), Cause: err}
	}

	e.mu.Lock()
	e.wf.Status = models.RunningWorkflowStatus
	if e.wf.StartedAt == nil {
		now := time.Now()
		e.wf.StartedAt = &now
	}
	e.mu.Unlock()

	e.logger.Infof("Starting workflow '%s' (%d steps, resuming at position %d)",
		e.wf.ID, len(e.wf.Steps), e.wf.CurrentStep)

	for pos := e.wf.CurrentStep; pos < len(e.wf.Steps); {
		step := e.wf.StepAt(pos)

		out, err := e.dispatch(ctx, step)
		if err == nil {
			e.completeStep(step, out)
			e.mu.Lock()
			pos++
			e.wf.CurrentStep = pos
			e.mu.Unlock()
			continue
		}

		if runErr := e.handleFailure(step, err); runErr != nil {
			e.finish(models.FailedWorkflowStatus)
			return models.FailedWorkflowStatus, runErr
		}
		// State restored and compensations applied; loop back to the same
		// position to re-dispatch the step.
	}

	e.finish(models.CompletedWorkflowStatus)
	e.logger.Infof("Workflow '%s' completed", e.wf.ID)
	return models.CompletedWorkflowStatus, nil
}

// dispatch transitions the step to IN_PROGRESS and invokes its executor
// synchronously. This is the only point where the engine blocks on external
// work.
func (e *Engine) dispatch(ctx context.Context, step *models.Step) (Output, error) {
	e.mu.Lock()
	step.Status = models.InProgressStepStatus
	step.Attempt++
	now := time.Now()
	step.StartedAt = &now
	fn := e.executors[step.ExecutorRef]
	e.mu.Unlock()

	e.logger.Infof("Dispatching step %d '%s' to '%s' (attempt %d)",
		step.Index, step.Name, step.ExecutorRef, step.Attempt)

	start := time.Now()
	out, err := fn(ctx, step.Input, e.wf.Context)
	elapsed := time.Since(start)

	e.mu.Lock()
	finished := time.Now()
	step.FinishedAt = &finished
	step.DurationMs = elapsed.Milliseconds()
	step.Cost += out.Cost
	step.TokensUsed += out.TokensUsed
	e.wf.TotalCost += out.Cost
	e.wf.TotalTokens += out.TokensUsed
	e.mu.Unlock()

	return out, err
}

// completeStep merges the executor output into shared state, marks the step
// done and persists a checkpoint. Steps that succeed after a failure are
// marked RECOVERED instead of COMPLETED; the retried dispatch is the only
// way Attempt exceeds 1. A checkpoint is written after the step, never
// before, so every checkpoint represents a fully-completed unit of work.
func (e *Engine) completeStep(step *models.Step, out Output) {
	e.mu.Lock()
	e.wf.Context.Merge(out.Context)
	for _, artifact := range out.Artifacts {
		if !e.wf.HasArtifact(artifact) {
			e.wf.Artifacts = append(e.wf.Artifacts, artifact)
		}
	}
	if out.Result != "" {
		if step.Output == nil {
			step.Output = make(map[string]any)
		}
		step.Output["result"] = out.Result
	} else if step.Output == nil {
		step.Output = map[string]any{}
	}
	recovered := step.Attempt > 1
	if recovered {
		step.Status = models.RecoveredStepStatus
	} else {
		step.Status = models.CompletedStepStatus
	}
	step.ErrorClass = ""
	step.ErrorDetail = ""
	e.mu.Unlock()

	if recovered {
		e.finalizeRecovery(true)
		e.logger.Infof("Step %d '%s' recovered", step.Index, step.Name)
	} else {
		e.logger.Infof("Step %d '%s' completed", step.Index, step.Name)
	}

	e.persistCheckpoint(step)
}

// persistCheckpoint writes the post-step snapshot. A persistence failure
// degrades to a warning: the step stays completed in memory, but it cannot
// later serve as a recovery source.
func (e *Engine) persistCheckpoint(step *models.Step) {
	e.mu.RLock()
	completed := e.wf.CompletedIndices()
	ctx := e.wf.Context
	artifacts := e.wf.Artifacts
	e.mu.RUnlock()

	if _, err := e.store.Save(e.wf.ID, step.Index, completed, ctx, artifacts); err != nil {
		e.logger.Warnf("Failed to persist checkpoint for step %d: %v", step.Index, err)
		return
	}
	e.mu.Lock()
	step.Checkpointed = true
	e.mu.Unlock()
	e.logger.Infof("Checkpoint saved for step %d", step.Index)
}

// handleFailure classifies the error and either prepares a retry (restore
// from checkpoint, apply compensating actions, open a recovery event) or
// returns the terminal RunError ending the run.
func (e *Engine) handleFailure(step *models.Step, dispatchErr error) *RunError {
	class := recovery.Classify(dispatchErr.Error())

	e.mu.Lock()
	step.Status = models.FailedStepStatus
	step.ErrorClass = class
	step.ErrorDetail = dispatchErr.Error()
	attempt := step.Attempt
	e.mu.Unlock()

	e.logger.Errorf("Step %d '%s' failed (attempt %d, class %s): %v",
		step.Index, step.Name, attempt, class, dispatchErr)

	if attempt > e.maxRetries {
		e.finalizeRecovery(false)
		return &RunError{StepIndex: step.Index, StepName: step.Name, Class: class, Detail: step.ErrorDetail}
	}

	// A failed retry closes the previous cycle's event before a new cycle
	// opens.
	e.finalizeRecovery(false)

	cp, err := e.store.FindLatestBefore(e.wf.ID, step.Index)
	if err != nil {
		e.logger.Errorf("No recovery point for step %d: %v", step.Index, err)
		return &RunError{StepIndex: step.Index, StepName: step.Name, Class: class, Detail: step.ErrorDetail, Cause: err}
	}
	if cp.IntegrityWarning {
		e.logger.Warnf("Checkpoint %d for workflow '%s' failed integrity verification, restoring anyway",
			cp.StepIndex, e.wf.ID)
	}

	plan := recovery.PlanFor(class)
	e.restore(cp)
	e.applyCompensations(step, plan)
	e.openRecovery(step, cp, plan)
	return nil
}

// restore resets shared state to the checkpoint snapshot. Only steps behind
// the restore point are trusted as done: any step past the checkpoint's own
// index is reset to PENDING regardless of its recorded status, except the
// failed step awaiting its retry.
func (e *Engine) restore(cp models.Checkpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wf.Context = cp.Context.Clone()
	e.wf.Artifacts = append([]string(nil), cp.Artifacts...)

	completed := make(map[int]bool, len(cp.CompletedIndices))
	for _, idx := range cp.CompletedIndices {
		completed[idx] = true
	}
	for i := range e.wf.Steps {
		step := &e.wf.Steps[i]
		switch {
		case step.Index <= cp.StepIndex && completed[step.Index]:
			if !step.Status.Succeeded() {
				step.Status = models.CompletedStepStatus
			}
		case step.Index > cp.StepIndex && step.Status != models.FailedStepStatus:
			step.Status = models.PendingStepStatus
		}
	}
	e.logger.Infof("State restored from checkpoint %d for workflow '%s'", cp.StepIndex, e.wf.ID)
}

// applyCompensations mutates shared context (never the step input) according
// to the plan. The fallback switch redirects the retried dispatch when an
// alternate executor is configured.
func (e *Engine) applyCompensations(step *models.Step, plan recovery.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, action := range plan.Actions {
		switch action {
		case models.RevalidateInputAction:
			e.wf.Context["input_revalidated"] = true
		case models.NormalizeInputAction:
			e.wf.Context["input_normalized"] = true
		case models.SwitchFallbackAction:
			if fb, ok := e.fallbacks[step.ExecutorRef]; ok {
				e.logger.Infof("Switching step %d executor '%s' -> fallback '%s'", step.Index, step.ExecutorRef, fb)
				e.wf.Context["fallback_executor"] = fb
				step.ExecutorRef = fb
			}
		case models.ReduceScopeAction:
			e.wf.Context["reduced_scope"] = true
		case models.RegenerateDependencyAction:
			e.wf.Context["dependencies_regenerated"] = true
		case models.ValidatePrerequisitesAction:
			e.wf.Context["prerequisites_validated"] = true
		}
	}
	if len(plan.Actions) > 0 {
		e.logger.Infof("Applied %d compensating action(s) for step %d (%s)", len(plan.Actions), step.Index, plan.Strategy)
	}
}

// openRecovery appends a new recovery event for the failure-then-retry cycle
// that is about to run. The event stays open until the retried step reaches
// a terminal state.
func (e *Engine) openRecovery(step *models.Step, cp models.Checkpoint, plan recovery.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()

	event := models.RecoveryEvent{
		ID:                    fmt.Sprintf("recovery_%03d", len(e.events)+1),
		Timestamp:             time.Now(),
		TriggeringError:       fmt.Sprintf("%s at step %d", step.ErrorDetail, step.Index),
		Strategy:              plan.Strategy,
		SourceCheckpointIndex: cp.StepIndex,
		RecoveredArtifacts:    append([]string(nil), cp.Artifacts...),
		CompensatingActions:   append([]models.Action(nil), plan.Actions...),
	}
	e.events = append(e.events, event)
	e.openEvent = true
}

// finalizeRecovery closes the open recovery event, if any, with the outcome
// of its retry cycle. Events are immutable once finalized.
func (e *Engine) finalizeRecovery(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.openEvent {
		return
	}
	last := &e.events[len(e.events)-1]
	last.Success = success
	last.DurationMs = time.Since(last.Timestamp).Milliseconds()
	e.openEvent = false
}

func (e *Engine) finish(status models.WorkflowStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wf.Status = status
	now := time.Now()
	e.wf.FinishedAt = &now
}

// RestoreFromLatest rebuilds in-memory workflow state from the most recent
// checkpoint so a later Run picks up after it. Intended for resuming after a
// process restart.
func (e *Engine) RestoreFromLatest() (models.Checkpoint, error) {
	maxIndex := 0
	for i := range e.wf.Steps {
		if e.wf.Steps[i].Index > maxIndex {
			maxIndex = e.wf.Steps[i].Index
		}
	}
	cp, err := e.store.FindLatestBefore(e.wf.ID, maxIndex+1)
	if err != nil {
		return models.Checkpoint{}, err
	}
	if cp.IntegrityWarning {
		e.logger.Warnf("Latest checkpoint %d for workflow '%s' failed integrity verification", cp.StepIndex, e.wf.ID)
	}
	e.restore(cp)

	e.mu.Lock()
	for i := range e.wf.Steps {
		if e.wf.Steps[i].Index == cp.StepIndex {
			e.wf.CurrentStep = i + 1
			break
		}
	}
	e.mu.Unlock()
	return cp, nil
}

// Status returns the workflow status.
func (e *Engine) Status() models.WorkflowStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wf.Status
}

// Steps returns a copy of the step list.
func (e *Engine) Steps() []models.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Step(nil), e.wf.Steps...)
}

// RecoveryEvents returns a copy of the append-only recovery log.
func (e *Engine) RecoveryEvents() []models.RecoveryEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.RecoveryEvent(nil), e.events...)
}

// Artifacts returns a copy of the artifact list in creation order.
func (e *Engine) Artifacts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.wf.Artifacts...)
}

// Context returns a copy of the shared context.
func (e *Engine) Context() models.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wf.Context.Clone()
}

// Snapshot returns a copy of the workflow, for report generation.
func (e *Engine) Snapshot() models.Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf := *e.wf
	wf.Steps = append([]models.Step(nil), e.wf.Steps...)
	wf.Artifacts = append([]string(nil), e.wf.Artifacts...)
	wf.Context = e.wf.Context.Clone()
	return wf
}
