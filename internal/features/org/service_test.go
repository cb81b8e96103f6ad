package org_test

import (
	"context"
	"testing"
	"time"

	"go-approval/internal/clock"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/org"
	"go-approval/internal/features/org/orgtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (org.OrgService, *audit.MemoryAuditRepository) {
	clk := clock.NewFake(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	auditRepo := audit.NewMemoryAuditRepository()
	return org.NewOrgService(orgtest.NewRepository(), audit.NewAuditService(auditRepo, clk), clk), auditRepo
}

func TestSaveUserRejectsManagerCycle(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	ceo, err := svc.GetUser(ctx, "ceo")
	require.NoError(t, err)
	ceo.ReportsTo = "alice"

	err = svc.SaveUser(ctx, ceo)
	assert.ErrorIs(t, err, org.ErrHierarchy)

	self := &org.User{ID: "zed", ReportsTo: "zed"}
	assert.ErrorIs(t, svc.SaveUser(ctx, self), org.ErrHierarchy)
}

func TestSaveUserValidatesReferences(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	err := svc.SaveUser(ctx, &org.User{ID: "new", ReportsTo: "nobody"})
	assert.ErrorIs(t, err, org.ErrInvalidUser)

	err = svc.SaveUser(ctx, &org.User{ID: "new", Groups: []string{"missing"}})
	assert.ErrorIs(t, err, org.ErrInvalidUser)

	require.NoError(t, svc.SaveUser(ctx, &org.User{ID: "new", ReportsTo: "bob", Groups: []string{"platform"}}))
	u, err := svc.GetUser(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, org.UserStatusActive, u.Status)
	assert.Equal(t, "platform", u.PrimaryGroup())
}

func TestSaveGroupRejectsCycle(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	company, err := svc.GetGroup(ctx, "company")
	require.NoError(t, err)
	company.ParentID = "platform"
	assert.ErrorIs(t, svc.SaveGroup(ctx, company), org.ErrHierarchy)

	assert.ErrorIs(t, svc.SaveGroup(ctx, &org.Group{ID: "x", Name: "X", ParentID: "none"}), org.ErrInvalidGroup)
}

func TestSetUserStatusIsAudited(t *testing.T) {
	svc, auditRepo := newService()
	ctx := context.Background()

	require.NoError(t, svc.SetUserStatus(ctx, "bob", org.UserStatusInactive))
	bob, err := svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, bob.IsActive())

	assert.Error(t, svc.SetUserStatus(ctx, "bob", "retired"))
	assert.ErrorIs(t, svc.SetUserStatus(ctx, "nobody", org.UserStatusActive), org.ErrUserNotFound)

	logs, err := auditRepo.List(ctx, audit.LogFilter{RecordID: "bob"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestUsersWithRoles(t *testing.T) {
	svc, _ := newService()

	users, err := svc.UsersWithRoles(context.Background(), []string{"finance"})
	require.NoError(t, err)

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"cfo", "fin", "ghost"}, ids)
}
