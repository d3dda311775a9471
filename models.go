package pipeline

import (
	"encoding/json"
	"time"
)

// WorkflowStatus represents the overall state of a workflow execution
type WorkflowStatus string

const (
	WorkflowInitiated          WorkflowStatus = "INITIATED"
	WorkflowRunning            WorkflowStatus = "RUNNING"
	WorkflowPartiallyCompleted WorkflowStatus = "PARTIALLY_COMPLETED"
	WorkflowCompleted          WorkflowStatus = "COMPLETED"
	WorkflowFailed             WorkflowStatus = "FAILED"
)

// IsTerminal returns true if the status is a final state
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowPartiallyCompleted || s == WorkflowFailed
}

// String returns the string representation
func (s WorkflowStatus) String() string {
	return string(s)
}

// StageStatus represents the current state of a stage execution
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageRunning   StageStatus = "RUNNING"
	StageSucceeded StageStatus = "SUCCEEDED"
	StageDegraded  StageStatus = "DEGRADED"
	StageFailed    StageStatus = "FAILED"
)

// IsTerminal returns true if the status is a final state
func (s StageStatus) IsTerminal() bool {
	return s == StageSucceeded || s == StageDegraded || s == StageFailed
}

// Usable returns true if a downstream stage can consume this outcome
func (s StageStatus) Usable() bool {
	return s == StageSucceeded || s == StageDegraded
}

// String returns the string representation
func (s StageStatus) String() string {
	return string(s)
}

// WorkflowState is the full snapshot of a single workflow execution.
// It is owned by the orchestrator and mutated only through its transition
// API; every mutation produces a new persisted snapshot.
type WorkflowState struct {
	WorkflowID string         `json:"workflowId" dynamodbav:"workflow_id"`
	Status     WorkflowStatus `json:"status" dynamodbav:"status"`
	Progress   float64        `json:"progress" dynamodbav:"progress"` // 0.0 to 1.0

	// Per-stage results, keyed by stage name
	Stages map[string]*StageResult `json:"stages" dynamodbav:"stages"`

	// Ordered list of errors observed during execution
	Errors []WorkflowError `json:"errors,omitempty" dynamodbav:"errors,omitempty"`

	// Input (serialized as JSON bytes, opaque to the engine)
	Input json.RawMessage `json:"input,omitempty" dynamodbav:"input,omitempty"`

	// Timing
	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	StartedAt   *time.Time `json:"startedAt,omitempty" dynamodbav:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt" dynamodbav:"updated_at"`

	// DynamoDB TTL
	TTL int64 `json:"-" dynamodbav:"ttl,omitempty"`
}

// Clone returns a deep copy of the workflow state. The engine hands out
// clones so callers can never observe a snapshot mid-mutation.
func (w *WorkflowState) Clone() *WorkflowState {
	cp := *w
	cp.Stages = make(map[string]*StageResult, len(w.Stages))
	for name, res := range w.Stages {
		cp.Stages[name] = res.Clone()
	}
	cp.Errors = append([]WorkflowError(nil), w.Errors...)
	cp.Input = append(json.RawMessage(nil), w.Input...)
	return &cp
}

// TerminalStages returns the number of stages in a terminal status
func (w *WorkflowState) TerminalStages() int {
	n := 0
	for _, res := range w.Stages {
		if res.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// StageResult tracks one stage's execution within a workflow.
// Once the status is terminal the result is never mutated again.
type StageResult struct {
	Stage  string      `json:"stage" dynamodbav:"stage"`
	Status StageStatus `json:"status" dynamodbav:"status"`

	// Payload is opaque to the engine; it is produced by the stage's
	// executor (or by the degradation handler) and handed to downstream
	// stages as-is.
	Payload json.RawMessage `json:"payload,omitempty" dynamodbav:"payload,omitempty"`

	// Attempts counts invocations of the external collaborator,
	// including retries. Zero when the result came from cache or fallback.
	Attempts int `json:"attempts" dynamodbav:"attempts"`

	// FromCache is set when the payload was served from the result cache
	// without invoking the collaborator.
	FromCache bool `json:"fromCache,omitempty" dynamodbav:"from_cache,omitempty"`

	// Timing
	StartedAt   *time.Time `json:"startedAt,omitempty" dynamodbav:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
	DurationMs  int64      `json:"durationMs" dynamodbav:"duration_ms"`

	// Error detail for failed or degraded outcomes
	Error *StageError `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// Clone returns a deep copy of the stage result
func (r *StageResult) Clone() *StageResult {
	cp := *r
	cp.Payload = append(json.RawMessage(nil), r.Payload...)
	if r.Error != nil {
		errCp := *r.Error
		cp.Error = &errCp
	}
	return &cp
}

// WorkflowError records one error observed during workflow execution,
// in occurrence order.
type WorkflowError struct {
	Stage     string        `json:"stage" dynamodbav:"stage"`
	Category  ErrorCategory `json:"category" dynamodbav:"category"`
	Message   string        `json:"message" dynamodbav:"message"`
	Timestamp time.Time     `json:"timestamp" dynamodbav:"timestamp"`
}

// ProgressSink receives stage transition notifications for presentation
// layers. Implementations should not block; the engine calls Notify inline
// on the scheduling path.
type ProgressSink interface {
	Notify(workflowID, stage string, status StageStatus)
}

// ProgressSinkFunc adapts a function to the ProgressSink interface
type ProgressSinkFunc func(workflowID, stage string, status StageStatus)

// Notify implements ProgressSink
func (f ProgressSinkFunc) Notify(workflowID, stage string, status StageStatus) {
	f(workflowID, stage, status)
}
