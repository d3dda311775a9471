package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStatus_IsTerminal(t *testing.T) {
	assert.False(t, WorkflowInitiated.IsTerminal())
	assert.False(t, WorkflowRunning.IsTerminal())
	assert.True(t, WorkflowPartiallyCompleted.IsTerminal())
	assert.True(t, WorkflowCompleted.IsTerminal())
	assert.True(t, WorkflowFailed.IsTerminal())
}

func TestStageStatus_IsTerminal(t *testing.T) {
	assert.False(t, StagePending.IsTerminal())
	assert.False(t, StageRunning.IsTerminal())
	assert.True(t, StageSucceeded.IsTerminal())
	assert.True(t, StageDegraded.IsTerminal())
	assert.True(t, StageFailed.IsTerminal())
}

func TestStageStatus_Usable(t *testing.T) {
	assert.True(t, StageSucceeded.Usable())
	assert.True(t, StageDegraded.Usable())
	assert.False(t, StageFailed.Usable())
	assert.False(t, StagePending.Usable())
}

func TestWorkflowState_Clone(t *testing.T) {
	now := time.Now()
	state := &WorkflowState{
		WorkflowID: "wf-1",
		Status:     WorkflowRunning,
		Stages: map[string]*StageResult{
			"a": {Stage: "a", Status: StageSucceeded, Payload: json.RawMessage(`{"x":1}`)},
		},
		Errors:    []WorkflowError{{Stage: "a", Category: CategoryNetwork, Message: "boom"}},
		Input:     json.RawMessage(`{"gene":"BRCA1"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}

	clone := state.Clone()
	require.Equal(t, state.WorkflowID, clone.WorkflowID)
	require.Equal(t, state.Stages["a"].Payload, clone.Stages["a"].Payload)

	// Mutating the clone must not touch the original
	clone.Stages["a"].Status = StageFailed
	clone.Errors[0].Message = "changed"
	clone.Stages["b"] = &StageResult{Stage: "b"}

	assert.Equal(t, StageSucceeded, state.Stages["a"].Status)
	assert.Equal(t, "boom", state.Errors[0].Message)
	assert.NotContains(t, state.Stages, "b")
}

func TestWorkflowState_TerminalStages(t *testing.T) {
	state := &WorkflowState{
		Stages: map[string]*StageResult{
			"a": {Status: StageSucceeded},
			"b": {Status: StageDegraded},
			"c": {Status: StageRunning},
			"d": {Status: StagePending},
		},
	}
	assert.Equal(t, 2, state.TerminalStages())
}

func TestErrorCategory_Retryable(t *testing.T) {
	assert.True(t, CategoryNetwork.Retryable())
	assert.True(t, CategoryTimeout.Retryable())
	assert.True(t, CategoryRateLimited.Retryable())
	assert.True(t, CategoryProcessing.Retryable())
	assert.True(t, CategoryUnknown.Retryable())

	assert.False(t, CategoryValidation.Retryable())
	assert.False(t, CategoryAuth.Retryable())
	assert.False(t, CategoryCancelled.Retryable())
	assert.False(t, CategoryCircuitOpen.Retryable())
	assert.False(t, CategoryBulkhead.Retryable())
}

func TestStageError_Error(t *testing.T) {
	err := NewStageError(CategoryNetwork, "structure_lookup", "connection refused")
	assert.Equal(t, "[NETWORK] connection refused (stage: structure_lookup)", err.Error())

	bare := NewStageError(CategoryTimeout, "", "deadline exceeded")
	assert.Equal(t, "[TIMEOUT] deadline exceeded", bare.Error())
}

func TestAsStageError(t *testing.T) {
	se := NewStageError(CategoryAuth, "s", "bad key")
	got, ok := AsStageError(se)
	require.True(t, ok)
	assert.Equal(t, CategoryAuth, got.Category)

	_, ok = AsStageError(assert.AnError)
	assert.False(t, ok)
}

func TestIsCircuitOpen(t *testing.T) {
	assert.True(t, IsCircuitOpen(ErrCircuitOpen))
	assert.True(t, IsCircuitOpen(NewStageError(CategoryCircuitOpen, "s", "open")))
	assert.False(t, IsCircuitOpen(assert.AnError))
}

func TestIsBulkheadTimeout(t *testing.T) {
	assert.True(t, IsBulkheadTimeout(ErrBulkheadTimeout))
	assert.True(t, IsBulkheadTimeout(NewStageError(CategoryBulkhead, "s", "full")))
	assert.False(t, IsBulkheadTimeout(assert.AnError))
}
