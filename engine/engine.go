// Package engine orchestrates workflow execution: it plans the stage
// graph, launches ready stages concurrently, applies state transitions
// under a per-workflow lock, and persists a snapshot after every
// transition.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
	"github.com/meridianbio/pipeline/cache"
	"github.com/meridianbio/pipeline/health"
	"github.com/meridianbio/pipeline/resilience"
)

// Engine executes workflows over a registered pipeline
type Engine struct {
	pipeline *pipeline.Pipeline
	plan     []string
	store    pipeline.StateStore
	cache    *cache.Manager
	registry *resilience.Registry
	retrier  *resilience.Retrier
	monitor  *health.Monitor
	metrics  *health.Metrics
	sink     pipeline.ProgressSink
	logger   zerolog.Logger

	defaultTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*workflowHandle
}

// workflowHandle is the in-memory execution context of one workflow. Its
// mutex serializes state transitions and snapshot persistence, so the
// store always sees snapshots in transition order.
type workflowHandle struct {
	mu     sync.Mutex
	state  *pipeline.WorkflowState
	cancel context.CancelFunc
}

// Option configures the engine
type Option func(*Engine)

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCache enables the result cache
func WithCache(manager *cache.Manager) Option {
	return func(e *Engine) {
		e.cache = manager
	}
}

// WithProgressSink registers a stage transition listener
func WithProgressSink(sink pipeline.ProgressSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithMonitor sets the stage health monitor
func WithMonitor(monitor *health.Monitor) Option {
	return func(e *Engine) {
		e.monitor = monitor
	}
}

// WithMetrics enables workflow metrics export
func WithMetrics(metrics *health.Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithDefaultTimeout sets the per-invocation timeout used when a
// descriptor does not carry one
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.defaultTimeout = d
	}
}

// New creates an engine for the given pipeline and state store. The
// pipeline must validate; the topological plan is computed once here.
func New(p *pipeline.Pipeline, store pipeline.StateStore, opts ...Option) (*Engine, error) {
	plan, err := p.Graph().TopologicalOrder()
	if err != nil {
		return nil, err
	}

	defaultLogger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	e := &Engine{
		pipeline:       p,
		plan:           plan,
		store:          store,
		logger:         defaultLogger,
		defaultTimeout: pipeline.DefaultStageTimeout,
		handles:        make(map[string]*workflowHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = resilience.NewRegistry(e.logger)
	e.retrier = resilience.NewRetrier(e.logger)
	if e.monitor == nil {
		e.monitor = health.NewMonitor(e.metrics)
	}
	return e, nil
}

// Monitor exposes the stage health monitor for the status surface
func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}

// Registry exposes the breaker/bulkhead registry for the status surface
func (e *Engine) Registry() *resilience.Registry {
	return e.registry
}

// StartOption configures one workflow execution
type StartOption func(*StartOptions)

// StartOptions holds per-execution options
type StartOptions struct {
	// TTL sets the snapshot expiry for stores that support it
	TTL time.Duration

	// Synchronous runs the workflow inline instead of in the background
	Synchronous bool
}

// WithTTL sets the snapshot TTL
func WithTTL(ttl time.Duration) StartOption {
	return func(opts *StartOptions) {
		opts.TTL = ttl
	}
}

// WithSynchronous runs the workflow on the calling goroutine
func WithSynchronous(sync bool) StartOption {
	return func(opts *StartOptions) {
		opts.Synchronous = sync
	}
}

// StartWorkflow validates the input, persists the initial snapshot and
// launches execution. It returns the workflow id immediately unless the
// synchronous option is set.
func (e *Engine) StartWorkflow(ctx context.Context, input json.RawMessage, opts ...StartOption) (string, error) {
	options := &StartOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if err := validateInput(input); err != nil {
		return "", err
	}

	workflowID := uuid.New().String()
	now := time.Now()

	state := &pipeline.WorkflowState{
		WorkflowID: workflowID,
		Status:     pipeline.WorkflowInitiated,
		Stages:     make(map[string]*pipeline.StageResult, len(e.plan)),
		Input:      append(json.RawMessage(nil), input...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, stage := range e.plan {
		state.Stages[stage] = &pipeline.StageResult{
			Stage:  stage,
			Status: pipeline.StagePending,
		}
	}
	if options.TTL > 0 {
		state.TTL = now.Add(options.TTL).Unix()
	}

	if err := e.store.CreateWorkflow(ctx, state); err != nil {
		return "", fmt.Errorf("failed to create workflow: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &workflowHandle{state: state, cancel: cancel}

	e.mu.Lock()
	e.handles[workflowID] = handle
	e.mu.Unlock()

	pipeline.LogWorkflowStarted(e.logger, workflowID, len(e.plan))
	if e.metrics != nil {
		e.metrics.WorkflowStarted()
	}

	if options.Synchronous {
		e.run(runCtx, handle)
		return workflowID, nil
	}
	go e.run(runCtx, handle)
	return workflowID, nil
}

// GetState returns the latest snapshot for a workflow id. In-flight
// workflows are served from memory; finished or foreign ones fall back to
// the store.
func (e *Engine) GetState(ctx context.Context, workflowID string) (*pipeline.WorkflowState, error) {
	e.mu.Lock()
	handle, ok := e.handles[workflowID]
	e.mu.Unlock()

	if ok {
		handle.mu.Lock()
		defer handle.mu.Unlock()
		return handle.state.Clone(), nil
	}
	return e.store.GetWorkflow(ctx, workflowID)
}

// ListWorkflows passes the filter through to the store
func (e *Engine) ListWorkflows(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.WorkflowState, error) {
	return e.store.ListWorkflows(ctx, filter)
}

// Cancel stops a running workflow. In-flight stages see their context
// cancelled; stages not yet launched are marked Failed with a cancelled
// error. Terminal workflows cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, workflowID string) error {
	e.mu.Lock()
	handle, ok := e.handles[workflowID]
	e.mu.Unlock()

	if !ok {
		state, err := e.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		return fmt.Errorf("cannot cancel workflow in %s state", state.Status)
	}

	handle.mu.Lock()
	terminal := handle.state.Status.IsTerminal()
	handle.mu.Unlock()
	if terminal {
		return fmt.Errorf("cannot cancel workflow in %s state", handle.state.Status)
	}

	pipeline.LogWorkflowCancelled(e.logger, workflowID)
	handle.cancel()
	return nil
}

// stageOutcome carries one finished stage from its goroutine to the
// scheduling loop.
type stageOutcome struct {
	stage  string
	result *pipeline.StageResult
}

// run executes one workflow to a terminal status
func (e *Engine) run(ctx context.Context, handle *workflowHandle) {
	workflowID := handle.state.WorkflowID
	logger := pipeline.WorkflowLogger(e.logger, workflowID)
	startedAt := time.Now()

	e.transition(ctx, handle, func(state *pipeline.WorkflowState) {
		state.Status = pipeline.WorkflowRunning
		state.StartedAt = &startedAt
	})

	graph := e.pipeline.Graph()
	terminal := make(map[string]bool, len(e.plan))
	scheduled := make(map[string]bool, len(e.plan))
	outcomes := make(chan stageOutcome, len(e.plan))
	inflight := 0
	aborted := false

	for len(terminal) < len(e.plan) {
		if !aborted && ctx.Err() == nil {
			inflight += e.launchReady(ctx, handle, graph, terminal, scheduled, outcomes, logger)
		}

		if inflight == 0 {
			// Nothing running and nothing launchable: the remaining
			// stages are unreachable (abort path marks them below).
			break
		}

		outcome := <-outcomes
		inflight--
		terminal[outcome.stage] = true
		e.applyOutcome(ctx, handle, outcome, logger)

		if outcome.result.Status == pipeline.StageFailed && e.isRequired(outcome.stage) {
			aborted = true
			handle.cancel()
		}
	}

	if aborted || ctx.Err() != nil {
		// Drain whatever was still in flight so the snapshot is complete
		for inflight > 0 {
			outcome := <-outcomes
			inflight--
			terminal[outcome.stage] = true
			e.applyOutcome(ctx, handle, outcome, logger)
		}
		e.failPending(ctx, handle, terminal, logger)
	}

	e.finish(ctx, handle, startedAt, logger)
}

// launchReady starts every stage whose dependencies are terminal.
// Stages with a failed dependency cascade to Failed without launching;
// that can unlock further cascades, so the ready set is recomputed until
// it stabilizes. Returns the number of goroutines launched.
func (e *Engine) launchReady(
	ctx context.Context,
	handle *workflowHandle,
	graph *pipeline.Graph,
	terminal, scheduled map[string]bool,
	outcomes chan<- stageOutcome,
	logger zerolog.Logger,
) int {
	launched := 0
	for {
		ready := graph.Ready(e.plan, terminal, scheduled)
		if len(ready) == 0 {
			return launched
		}

		cascaded := false
		for _, stage := range ready {
			scheduled[stage] = true

			if failedDep := e.failedDependency(handle, graph, stage); failedDep != "" {
				terminal[stage] = true
				cascaded = true
				result := &pipeline.StageResult{
					Stage:  stage,
					Status: pipeline.StageFailed,
					Error: pipeline.NewStageError(
						pipeline.CategoryProcessing,
						stage,
						fmt.Sprintf("dependency %s failed", failedDep),
					),
				}
				e.applyOutcome(ctx, handle, stageOutcome{stage: stage, result: result}, logger)
				continue
			}

			desc, _ := e.pipeline.Descriptor(stage)
			input, degradedUpstream := e.mergeUpstream(handle, graph, stage)
			launched++
			go func(desc pipeline.StageDescriptor, input json.RawMessage, degraded bool) {
				result := e.invokeStage(ctx, handle.state.WorkflowID, desc, input, degraded, logger)
				outcomes <- stageOutcome{stage: desc.Name, result: result}
			}(desc, input, degradedUpstream)
		}

		if !cascaded {
			return launched
		}
	}
}

// failedDependency returns the name of a failed dependency, or empty
func (e *Engine) failedDependency(handle *workflowHandle, graph *pipeline.Graph, stage string) string {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	for _, dep := range graph.Dependencies(stage) {
		if res, ok := handle.state.Stages[dep]; ok && !res.Status.Usable() {
			return dep
		}
	}
	return ""
}

// mergeUpstream builds a stage's input from its dependencies. No
// dependencies means the workflow input; one dependency passes its
// payload through; several are merged into an object keyed by stage
// name. The second return reports whether any upstream was degraded.
func (e *Engine) mergeUpstream(handle *workflowHandle, graph *pipeline.Graph, stage string) (json.RawMessage, bool) {
	handle.mu.Lock()
	defer handle.mu.Unlock()

	deps := graph.Dependencies(stage)
	degraded := false
	for _, dep := range deps {
		if res, ok := handle.state.Stages[dep]; ok && res.Status == pipeline.StageDegraded {
			degraded = true
		}
	}

	switch len(deps) {
	case 0:
		return append(json.RawMessage(nil), handle.state.Input...), degraded
	case 1:
		res := handle.state.Stages[deps[0]]
		return append(json.RawMessage(nil), res.Payload...), degraded
	default:
		merged := make(map[string]json.RawMessage, len(deps))
		for _, dep := range deps {
			merged[dep] = handle.state.Stages[dep].Payload
		}
		input, err := json.Marshal(merged)
		if err != nil {
			// Payloads are raw JSON already; this cannot realistically fail
			return append(json.RawMessage(nil), handle.state.Input...), degraded
		}
		return input, degraded
	}
}

// applyOutcome commits one stage result under the workflow lock,
// recomputes progress, persists the snapshot and notifies listeners.
func (e *Engine) applyOutcome(ctx context.Context, handle *workflowHandle, outcome stageOutcome, logger zerolog.Logger) {
	e.transition(ctx, handle, func(state *pipeline.WorkflowState) {
		state.Stages[outcome.stage] = outcome.result
		if outcome.result.Error != nil {
			state.Errors = append(state.Errors, pipeline.WorkflowError{
				Stage:     outcome.stage,
				Category:  outcome.result.Error.Category,
				Message:   outcome.result.Error.Message,
				Timestamp: time.Now(),
			})
		}
		state.Progress = float64(state.TerminalStages()) / float64(len(e.plan))
	})

	workflowID := handle.state.WorkflowID
	result := outcome.result
	switch result.Status {
	case pipeline.StageSucceeded:
		pipeline.LogStageCompleted(logger, workflowID, outcome.stage, result.DurationMs, result.FromCache)
	case pipeline.StageDegraded:
		desc, _ := e.pipeline.Descriptor(outcome.stage)
		pipeline.LogStageDegraded(logger, workflowID, outcome.stage, desc.Fallback, result.Error)
	case pipeline.StageFailed:
		pipeline.LogStageFailed(logger, workflowID, outcome.stage, result.Error, result.Attempts)
	}

	if e.sink != nil {
		e.sink.Notify(workflowID, outcome.stage, result.Status)
	}
}

// failPending marks every stage that never reached a terminal status as
// Failed. Used on abort and cancellation.
func (e *Engine) failPending(ctx context.Context, handle *workflowHandle, terminal map[string]bool, logger zerolog.Logger) {
	category := pipeline.CategoryProcessing
	message := "workflow aborted before stage could run"
	if ctx.Err() != nil {
		category = pipeline.CategoryCancelled
		message = "workflow cancelled before stage could run"
	}

	for _, stage := range e.plan {
		if terminal[stage] {
			continue
		}
		terminal[stage] = true
		result := &pipeline.StageResult{
			Stage:  stage,
			Status: pipeline.StageFailed,
			Error:  pipeline.NewStageError(category, stage, message),
		}
		e.applyOutcome(ctx, handle, stageOutcome{stage: stage, result: result}, logger)
	}
}

// finish computes and persists the terminal workflow status
func (e *Engine) finish(ctx context.Context, handle *workflowHandle, startedAt time.Time, logger zerolog.Logger) {
	var final pipeline.WorkflowStatus

	e.transition(ctx, handle, func(state *pipeline.WorkflowState) {
		final = finalStatus(state, e.pipeline)
		now := time.Now()
		state.Status = final
		state.CompletedAt = &now
		state.Progress = 1.0
	})

	workflowID := handle.state.WorkflowID
	duration := time.Since(startedAt)
	if final == pipeline.WorkflowFailed {
		pipeline.LogWorkflowFailed(logger, workflowID, firstError(handle))
	} else {
		pipeline.LogWorkflowCompleted(logger, workflowID, final, duration)
	}
	if e.metrics != nil {
		e.metrics.WorkflowFinished(string(final))
	}

	e.mu.Lock()
	delete(e.handles, workflowID)
	e.mu.Unlock()
}

// finalStatus derives the terminal workflow status from stage outcomes:
// a failed required stage fails the workflow; any degraded or failed
// optional stage yields PartiallyCompleted; otherwise Completed.
func finalStatus(state *pipeline.WorkflowState, p *pipeline.Pipeline) pipeline.WorkflowStatus {
	partial := false
	for stage, res := range state.Stages {
		switch res.Status {
		case pipeline.StageFailed:
			desc, _ := p.Descriptor(stage)
			if desc.Required {
				return pipeline.WorkflowFailed
			}
			partial = true
		case pipeline.StageDegraded:
			partial = true
		}
	}
	if partial {
		return pipeline.WorkflowPartiallyCompleted
	}
	return pipeline.WorkflowCompleted
}

func firstError(handle *workflowHandle) error {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	if len(handle.state.Errors) > 0 {
		first := handle.state.Errors[0]
		return fmt.Errorf("[%s] %s (stage: %s)", first.Category, first.Message, first.Stage)
	}
	return fmt.Errorf("workflow failed")
}

// transition mutates the state under the workflow lock and persists the
// snapshot. Persistence failures are logged; the in-memory state remains
// authoritative for the rest of the run.
func (e *Engine) transition(ctx context.Context, handle *workflowHandle, mutate func(*pipeline.WorkflowState)) {
	handle.mu.Lock()
	mutate(handle.state)
	handle.state.UpdatedAt = time.Now()
	snapshot := handle.state.Clone()
	handle.mu.Unlock()

	// Persist with a fresh context so cancellation cannot lose the final
	// snapshot.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.store.SaveWorkflow(saveCtx, snapshot); err != nil {
		pipeline.LogPersistenceError(e.logger, snapshot.WorkflowID, "save", err)
	}
}

func (e *Engine) isRequired(stage string) bool {
	desc, _ := e.pipeline.Descriptor(stage)
	return desc.Required
}

// validateInput requires a non-empty JSON object
func validateInput(input json.RawMessage) error {
	if len(input) == 0 {
		return fmt.Errorf("%w: empty input", pipeline.ErrInvalidInput)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(input, &obj); err != nil {
		return fmt.Errorf("%w: input must be a JSON object", pipeline.ErrInvalidInput)
	}
	if len(obj) == 0 {
		return fmt.Errorf("%w: input object is empty", pipeline.ErrInvalidInput)
	}
	return nil
}
