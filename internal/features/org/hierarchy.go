package org

import (
	"context"
	"errors"
	"fmt"
)

// GroupChain returns groupID's group followed by its ancestors, ending at
// the root group.
func GroupChain(ctx context.Context, dir Directory, groupID string) ([]Group, error) {
	var chain []Group
	seen := make(map[string]bool)
	for id := groupID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("%w: group %s", ErrHierarchy, id)
		}
		seen[id] = true
		g, err := dir.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *g)
		id = g.ParentID
	}
	return chain, nil
}

// ManagerChain returns up to depth managers above userID, nearest first.
// The result is shorter than depth when the reporting line ends early.
func ManagerChain(ctx context.Context, dir Directory, userID string, depth int) ([]User, error) {
	user, err := dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var chain []User
	seen := map[string]bool{userID: true}
	for id := user.ReportsTo; id != "" && len(chain) < depth; {
		if seen[id] {
			return nil, fmt.Errorf("%w: manager chain of %s", ErrHierarchy, userID)
		}
		seen[id] = true
		m, err := dir.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, *m)
		id = m.ReportsTo
	}
	return chain, nil
}

// ActiveAdmins lists the IDs of active admin accounts.
func ActiveAdmins(ctx context.Context, dir Directory) ([]string, error) {
	users, err := dir.UsersWithRoles(ctx, []string{RoleAdmin})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, u := range users {
		if u.IsActive() {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}
