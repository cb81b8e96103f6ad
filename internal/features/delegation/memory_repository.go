package delegation

import (
	"context"
	"slices"
	"sort"
	"sync"

	"go-approval/internal/features/workflow"
)

type MemoryDelegationRepository struct {
	mu    sync.RWMutex
	items map[string]Delegation
}

func NewMemoryDelegationRepository() *MemoryDelegationRepository {
	return &MemoryDelegationRepository{items: make(map[string]Delegation)}
}

func (r *MemoryDelegationRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryDelegationRepository) Create(_ context.Context, d *Delegation) error {
	c := *d
	c.Approvers = slices.Clone(d.Approvers)
	r.mu.Lock()
	r.items[c.ID] = c
	r.mu.Unlock()
	return nil
}

func (r *MemoryDelegationRepository) Update(_ context.Context, d *Delegation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return ErrDelegationNotFound
	}
	c := *d
	c.Approvers = slices.Clone(d.Approvers)
	r.items[c.ID] = c
	return nil
}

func (r *MemoryDelegationRepository) FindByID(_ context.Context, id string) (*Delegation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	if !ok {
		return nil, ErrDelegationNotFound
	}
	return &d, nil
}

func (r *MemoryDelegationRepository) filter(keep func(*Delegation) bool) []Delegation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Delegation
	for _, d := range r.items {
		if keep(&d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryDelegationRepository) FindOpen(_ context.Context, delegatorID string, requestType workflow.RequestType) ([]Delegation, error) {
	return r.filter(func(d *Delegation) bool {
		return d.DelegatorID == delegatorID && d.RequestType == requestType && d.Open()
	}), nil
}

func (r *MemoryDelegationRepository) ListByDelegator(_ context.Context, delegatorID string) ([]Delegation, error) {
	return r.filter(func(d *Delegation) bool { return d.DelegatorID == delegatorID }), nil
}

func (r *MemoryDelegationRepository) ListByDelegate(_ context.Context, delegateID string) ([]Delegation, error) {
	return r.filter(func(d *Delegation) bool { return d.DelegateID == delegateID }), nil
}

func (r *MemoryDelegationRepository) ListPendingFor(_ context.Context, approverID string) ([]Delegation, error) {
	return r.filter(func(d *Delegation) bool {
		return d.Status == StatusPending && slices.Contains(d.Approvers, approverID)
	}), nil
}

var _ DelegationRepository = (*MemoryDelegationRepository)(nil)
