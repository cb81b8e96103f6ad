package workflow

import (
	"context"
	"sort"
	"sync"
)

// MemoryWorkflowRepository keeps version histories in process memory.
// Stored values are cloned on the way in and out.
type MemoryWorkflowRepository struct {
	mu       sync.RWMutex
	versions map[string][]*ApprovalWorkflow // ascending by version
}

func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{versions: make(map[string][]*ApprovalWorkflow)}
}

func (r *MemoryWorkflowRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryWorkflowRepository) Insert(_ context.Context, workflow *ApprovalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[workflow.ID] = append(r.versions[workflow.ID], workflow.Clone())
	return nil
}

func (r *MemoryWorkflowRepository) latest(id string) (*ApprovalWorkflow, bool) {
	history := r.versions[id]
	if len(history) == 0 {
		return nil, false
	}
	return history[len(history)-1], true
}

func (r *MemoryWorkflowRepository) FindLatest(_ context.Context, id string) (*ApprovalWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.latest(id)
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (r *MemoryWorkflowRepository) FindVersion(_ context.Context, id string, version int) (*ApprovalWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wf := range r.versions[id] {
		if wf.Version == version {
			return wf.Clone(), nil
		}
	}
	return nil, ErrWorkflowNotFound
}

func (r *MemoryWorkflowRepository) list(keep func(*ApprovalWorkflow) bool) []ApprovalWorkflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ApprovalWorkflow
	for id := range r.versions {
		wf, _ := r.latest(id)
		if keep(wf) {
			out = append(out, *wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryWorkflowRepository) ListLatest(context.Context) ([]ApprovalWorkflow, error) {
	return r.list(func(*ApprovalWorkflow) bool { return true }), nil
}

func (r *MemoryWorkflowRepository) ListActiveByType(_ context.Context, requestType RequestType) ([]ApprovalWorkflow, error) {
	return r.list(func(wf *ApprovalWorkflow) bool {
		return wf.Active && wf.RequestType == requestType
	}), nil
}

func (r *MemoryWorkflowRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.latest(id)
	if !ok {
		return ErrWorkflowNotFound
	}
	wf.Active = active
	return nil
}

var _ WorkflowRepository = (*MemoryWorkflowRepository)(nil)
