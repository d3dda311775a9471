package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianbio/pipeline"
)

// MemoryStore implements pipeline.StateStore in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*pipeline.WorkflowState
}

// NewMemoryStore creates an empty in-memory state store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*pipeline.WorkflowState),
	}
}

// CreateWorkflow persists the initial snapshot
func (s *MemoryStore) CreateWorkflow(ctx context.Context, state *pipeline.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[state.WorkflowID]; exists {
		return fmt.Errorf("workflow %s already exists", state.WorkflowID)
	}
	s.workflows[state.WorkflowID] = state.Clone()
	return nil
}

// SaveWorkflow overwrites the snapshot
func (s *MemoryStore) SaveWorkflow(ctx context.Context, state *pipeline.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[state.WorkflowID]; !exists {
		return pipeline.ErrWorkflowNotFound
	}
	s.workflows[state.WorkflowID] = state.Clone()
	return nil
}

// GetWorkflow retrieves the latest snapshot
func (s *MemoryStore) GetWorkflow(ctx context.Context, workflowID string) (*pipeline.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.workflows[workflowID]
	if !exists {
		return nil, pipeline.ErrWorkflowNotFound
	}
	return state.Clone(), nil
}

// ListWorkflows returns snapshots matching the filter
func (s *MemoryStore) ListWorkflows(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*pipeline.WorkflowState
	for _, state := range s.workflows {
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		out = append(out, state.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
