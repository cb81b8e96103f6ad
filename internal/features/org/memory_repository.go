package org

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryOrgRepository keeps the directory in process memory.
type MemoryOrgRepository struct {
	mu     sync.RWMutex
	users  map[string]User
	groups map[string]Group
}

func NewMemoryOrgRepository() *MemoryOrgRepository {
	return &MemoryOrgRepository{
		users:  make(map[string]User),
		groups: make(map[string]Group),
	}
}

func (r *MemoryOrgRepository) SaveUser(_ context.Context, user *User) error {
	u := *user
	u.Roles = slices.Clone(user.Roles)
	u.Groups = slices.Clone(user.Groups)
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
	return nil
}

func (r *MemoryOrgRepository) FindUser(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryOrgRepository) FindUsersByRoles(_ context.Context, roles []string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, u := range r.users {
		for _, role := range roles {
			if u.HasRole(role) {
				out = append(out, u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryOrgRepository) ListUsers(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryOrgRepository) SaveGroup(_ context.Context, group *Group) error {
	r.mu.Lock()
	r.groups[group.ID] = *group
	r.mu.Unlock()
	return nil
}

func (r *MemoryOrgRepository) FindGroup(_ context.Context, id string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return &g, nil
}

func (r *MemoryOrgRepository) ListGroups(_ context.Context) ([]Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ OrgRepository = (*MemoryOrgRepository)(nil)
