package pipeline

import "context"

// StateStore persists workflow snapshots. Implementations must be safe for
// concurrent use; the engine serializes writes per workflow, so stores only
// need whole-record atomicity.
//
// The interface lives in the root package so both the engine and store
// implementations can depend on it without a cycle.
type StateStore interface {
	// CreateWorkflow persists the initial snapshot for a new workflow
	CreateWorkflow(ctx context.Context, state *WorkflowState) error

	// SaveWorkflow overwrites the snapshot after a transition
	SaveWorkflow(ctx context.Context, state *WorkflowState) error

	// GetWorkflow retrieves the latest snapshot.
	// Returns ErrWorkflowNotFound when the id is unknown.
	GetWorkflow(ctx context.Context, workflowID string) (*WorkflowState, error)

	// ListWorkflows returns snapshots matching the filter
	ListWorkflows(ctx context.Context, filter ListFilter) ([]*WorkflowState, error)
}

// ListFilter narrows ListWorkflows results
type ListFilter struct {
	// Status limits results to one workflow status. Empty matches all.
	Status WorkflowStatus

	// Limit caps the number of returned snapshots. Zero means no cap.
	Limit int
}
