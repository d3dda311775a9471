package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FallbackMode selects the degraded-result policy applied when a stage
// exhausts its retries.
type FallbackMode string

const (
	// FallbackNone forbids degradation. A non-required stage fails in
	// place; a required stage aborts the workflow.
	FallbackNone FallbackMode = "none"

	// FallbackEmpty substitutes a well-typed empty payload.
	FallbackEmpty FallbackMode = "empty"

	// FallbackPartial builds a payload from whatever upstream context is
	// available.
	FallbackPartial FallbackMode = "partial"

	// FallbackPlaceholder substitutes a marker payload flagged as
	// unavailable.
	FallbackPlaceholder FallbackMode = "placeholder"
)

// StageExecutor is the external collaborator behind a stage. The engine
// treats payloads as opaque bytes; executors own the domain semantics.
type StageExecutor interface {
	Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// StageExecutorFunc adapts a function to the StageExecutor interface
type StageExecutorFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Invoke implements StageExecutor
func (f StageExecutorFunc) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, input)
}

// StageDescriptor is the static execution policy for one stage type.
// Descriptors are shared across workflows and never mutated after
// registration.
type StageDescriptor struct {
	Name      string
	DependsOn []string

	// Required stages abort the whole workflow when they fail;
	// non-required stages degrade or fail in place.
	Required bool

	Retry    RetryPolicy
	Breaker  BreakerSettings
	Bulkhead BulkheadSettings
	Fallback FallbackMode

	// Timeout bounds a single collaborator invocation. Zero means the
	// engine default applies.
	Timeout time.Duration

	// CacheCategory selects the TTL table entry for this stage's results.
	// Empty disables caching for the stage.
	CacheCategory string
}

// Pipeline is the registry of stage descriptors and their executors.
// Register everything up front, then Validate before handing the pipeline
// to an engine.
type Pipeline struct {
	descriptors map[string]StageDescriptor
	executors   map[string]StageExecutor
	graph       *Graph
}

// NewPipeline creates an empty stage registry
func NewPipeline() *Pipeline {
	return &Pipeline{
		descriptors: make(map[string]StageDescriptor),
		executors:   make(map[string]StageExecutor),
		graph:       NewGraph(),
	}
}

// Register adds a stage descriptor and its executor. Policy fields left at
// their zero value pick up the package defaults.
func (p *Pipeline) Register(desc StageDescriptor, exec StageExecutor) error {
	if desc.Name == "" {
		return fmt.Errorf("stage descriptor needs a name")
	}
	if exec == nil {
		return fmt.Errorf("stage %s registered without an executor", desc.Name)
	}
	if _, exists := p.descriptors[desc.Name]; exists {
		return fmt.Errorf("stage %s already registered", desc.Name)
	}
	if desc.Fallback == "" {
		desc.Fallback = FallbackNone
	}
	desc.Retry = desc.Retry.WithDefaults()
	desc.Breaker = desc.Breaker.WithDefaults()
	desc.Bulkhead = desc.Bulkhead.WithDefaults()
	if err := p.graph.AddStage(desc.Name, desc.DependsOn...); err != nil {
		return err
	}
	p.descriptors[desc.Name] = desc
	p.executors[desc.Name] = exec
	return nil
}

// Descriptor returns the descriptor for a stage name
func (p *Pipeline) Descriptor(name string) (StageDescriptor, bool) {
	desc, ok := p.descriptors[name]
	return desc, ok
}

// Executor returns the executor for a stage name
func (p *Pipeline) Executor(name string) (StageExecutor, bool) {
	exec, ok := p.executors[name]
	return exec, ok
}

// Stages returns stage names in registration order
func (p *Pipeline) Stages() []string {
	return p.graph.Stages()
}

// Graph exposes the dependency graph for planning
func (p *Pipeline) Graph() *Graph {
	return p.graph
}

// Validate checks the dependency graph and descriptor consistency
func (p *Pipeline) Validate() error {
	if err := p.graph.Validate(); err != nil {
		return err
	}
	for name, desc := range p.descriptors {
		switch desc.Fallback {
		case FallbackNone, FallbackEmpty, FallbackPartial, FallbackPlaceholder:
		default:
			return fmt.Errorf("stage %s has unknown fallback mode %q", name, desc.Fallback)
		}
	}
	return nil
}
