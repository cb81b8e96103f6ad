package org

import (
	"context"
	"errors"
	"fmt"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/features/audit"
)

var (
	ErrInvalidUser  = errors.New("invalid user")
	ErrInvalidGroup = errors.New("invalid group")
	ErrHierarchy    = errors.New("hierarchy cycle")
)

// Directory is the read side of the organization used to resolve approvers.
type Directory interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	UsersWithRoles(ctx context.Context, roles []string) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListGroups(ctx context.Context) ([]Group, error)
}

type OrgService interface {
	Directory
	SaveUser(ctx context.Context, user *User) error
	SaveGroup(ctx context.Context, group *Group) error
	SetUserStatus(ctx context.Context, id string, status UserStatus) error
}

type OrgServiceImpl struct {
	repo         OrgRepository
	auditService audit.AuditService
	clock        clock.Clock
}

func NewOrgService(repo OrgRepository, auditService audit.AuditService, clk clock.Clock) OrgService {
	return &OrgServiceImpl{
		repo:         repo,
		auditService: auditService,
		clock:        clk,
	}
}

func (s *OrgServiceImpl) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.FindUser(ctx, id)
}

func (s *OrgServiceImpl) GetGroup(ctx context.Context, id string) (*Group, error) {
	return s.repo.FindGroup(ctx, id)
}

func (s *OrgServiceImpl) UsersWithRoles(ctx context.Context, roles []string) ([]User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return s.repo.FindUsersByRoles(ctx, roles)
}

func (s *OrgServiceImpl) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *OrgServiceImpl) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

func (s *OrgServiceImpl) SaveUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidUser)
	}
	if user.Status == "" {
		user.Status = UserStatusActive
	}
	if user.ReportsTo == user.ID {
		return fmt.Errorf("%w: user %s reports to itself", ErrHierarchy, user.ID)
	}
	if user.ReportsTo != "" {
		if err := s.checkManagerChain(ctx, user.ID, user.ReportsTo); err != nil {
			return err
		}
	}
	for _, gid := range user.Groups {
		if _, err := s.repo.FindGroup(ctx, gid); err != nil {
			return fmt.Errorf("%w: group %s: %v", ErrInvalidUser, gid, err)
		}
	}

	existing, _ := s.repo.FindUser(ctx, user.ID)
	now := s.clock.Now()
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := s.repo.SaveUser(ctx, user); err != nil {
		return err
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionOrg, "users", user.ID, map[string]common_models.Change{
		"user": {Old: existing, New: user},
	})
	return nil
}

// checkManagerChain walks up from managerID and fails if it reaches userID.
func (s *OrgServiceImpl) checkManagerChain(ctx context.Context, userID, managerID string) error {
	seen := map[string]bool{userID: true}
	for id := managerID; id != ""; {
		if seen[id] {
			return fmt.Errorf("%w: manager chain of %s loops through %s", ErrHierarchy, userID, id)
		}
		seen[id] = true
		u, err := s.repo.FindUser(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) && id == managerID {
				return fmt.Errorf("%w: manager %s not found", ErrInvalidUser, managerID)
			}
			return nil
		}
		id = u.ReportsTo
	}
	return nil
}

func (s *OrgServiceImpl) SaveGroup(ctx context.Context, group *Group) error {
	if group.ID == "" || group.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidGroup)
	}
	if group.ParentID != "" {
		seen := map[string]bool{group.ID: true}
		for id := group.ParentID; id != ""; {
			if seen[id] {
				return fmt.Errorf("%w: group %s is its own ancestor", ErrHierarchy, group.ID)
			}
			seen[id] = true
			parent, err := s.repo.FindGroup(ctx, id)
			if err != nil {
				return fmt.Errorf("%w: parent %s: %v", ErrInvalidGroup, id, err)
			}
			id = parent.ParentID
		}
	}

	existing, _ := s.repo.FindGroup(ctx, group.ID)
	now := s.clock.Now()
	if existing != nil {
		group.CreatedAt = existing.CreatedAt
	} else {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	if err := s.repo.SaveGroup(ctx, group); err != nil {
		return err
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionOrg, "groups", group.ID, map[string]common_models.Change{
		"group": {Old: existing, New: group},
	})
	return nil
}

func (s *OrgServiceImpl) SetUserStatus(ctx context.Context, id string, status UserStatus) error {
	switch status {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUser, status)
	}
	user, err := s.repo.FindUser(ctx, id)
	if err != nil {
		return err
	}
	old := user.Status
	user.Status = status
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return err
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionOrg, "users", id, map[string]common_models.Change{
		"status": {Old: old, New: status},
	})
	return nil
}
