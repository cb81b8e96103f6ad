package approval

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type deadlineEntry struct {
	at time.Time
	id string
}

func compareDeadline(a, b deadlineEntry) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// MemoryRequestRepository keeps requests in process with a deadline index
// sorted by (next deadline, id).
type MemoryRequestRepository struct {
	mu        sync.RWMutex
	requests  map[string]*ApprovalRequest
	deadlines []deadlineEntry
}

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{requests: make(map[string]*ApprovalRequest)}
}

func (r *MemoryRequestRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryRequestRepository) Create(_ context.Context, req *ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(req)
	return nil
}

func (r *MemoryRequestRepository) Update(_ context.Context, req *ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return ErrNotFound
	}
	r.store(req)
	return nil
}

// store must be called with the write lock held.
func (r *MemoryRequestRepository) store(req *ApprovalRequest) {
	if old, ok := r.requests[req.ID]; ok && old.NextDeadline != nil {
		entry := deadlineEntry{at: *old.NextDeadline, id: old.ID}
		if i, found := slices.BinarySearchFunc(r.deadlines, entry, compareDeadline); found {
			r.deadlines = slices.Delete(r.deadlines, i, i+1)
		}
	}
	r.requests[req.ID] = req.Clone()
	if req.NextDeadline != nil {
		entry := deadlineEntry{at: *req.NextDeadline, id: req.ID}
		i, _ := slices.BinarySearchFunc(r.deadlines, entry, compareDeadline)
		r.deadlines = slices.Insert(r.deadlines, i, entry)
	}
}

func (r *MemoryRequestRepository) FindByID(_ context.Context, id string) (*ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (r *MemoryRequestRepository) filter(keep func(*ApprovalRequest) bool, less func(a, b *ApprovalRequest) int) []ApprovalRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ApprovalRequest
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	slices.SortFunc(out, func(a, b *ApprovalRequest) int {
		if c := less(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	list := make([]ApprovalRequest, len(out))
	for i, req := range out {
		list[i] = *req.Clone()
	}
	return list
}

func submittedAsc(a, b *ApprovalRequest) int { return a.SubmittedAt.Compare(b.SubmittedAt) }

func (r *MemoryRequestRepository) ListOpenByCandidates(_ context.Context, actorIDs []string) ([]ApprovalRequest, error) {
	return r.filter(func(req *ApprovalRequest) bool {
		if req.Status.Terminal() || req.Step == nil {
			return false
		}
		return slices.ContainsFunc(actorIDs, func(id string) bool {
			return slices.Contains(req.Step.Candidates, id)
		})
	}, submittedAsc), nil
}

func (r *MemoryRequestRepository) ListByRequester(_ context.Context, requesterID string) ([]ApprovalRequest, error) {
	return r.filter(func(req *ApprovalRequest) bool {
		return req.RequesterID == requesterID
	}, func(a, b *ApprovalRequest) int { return b.SubmittedAt.Compare(a.SubmittedAt) }), nil
}

func (r *MemoryRequestRepository) ListParked(_ context.Context) ([]ApprovalRequest, error) {
	return r.filter(func(req *ApprovalRequest) bool {
		return req.Parked()
	}, func(a, b *ApprovalRequest) int { return a.UpdatedAt.Compare(b.UpdatedAt) }), nil
}

func (r *MemoryRequestRepository) FindDue(_ context.Context, before time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, e := range r.deadlines {
		if e.at.After(before) || (limit > 0 && len(ids) == limit) {
			break
		}
		ids = append(ids, e.id)
	}
	return ids, nil
}

var _ RequestRepository = (*MemoryRequestRepository)(nil)
