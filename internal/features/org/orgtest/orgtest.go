// Package orgtest builds a small organization used across feature tests.
//
//	company (leader: ceo)
//	├── engineering (leader: vp-eng)
//	│   └── platform (leader: lead)
//	└── finance (leader: cfo)
//
// Reporting lines: alice, bob -> lead -> vp-eng -> ceo; fin -> cfo -> ceo.
// admin holds the admin role; ghost is inactive.
package orgtest

import (
	"context"

	"go-approval/internal/clock"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/org"
)

func Groups() []org.Group {
	return []org.Group{
		{ID: "company", Name: "Company", LeaderID: "ceo"},
		{ID: "engineering", Name: "Engineering", ParentID: "company", LeaderID: "vp-eng"},
		{ID: "platform", Name: "Platform", ParentID: "engineering", LeaderID: "lead"},
		{ID: "finance", Name: "Finance", ParentID: "company", LeaderID: "cfo"},
	}
}

func Users() []org.User {
	active := org.UserStatusActive
	return []org.User{
		{ID: "ceo", Name: "Chief", Status: active, Roles: []string{"executive"}, Groups: []string{"company"}},
		{ID: "admin", Name: "Admin", Status: active, Roles: []string{org.RoleAdmin}, Groups: []string{"company"}},
		{ID: "vp-eng", Name: "VP Engineering", Status: active, Roles: []string{"manager"}, Groups: []string{"engineering"}, ReportsTo: "ceo"},
		{ID: "lead", Name: "Platform Lead", Status: active, Roles: []string{"manager"}, Groups: []string{"platform"}, ReportsTo: "vp-eng"},
		{ID: "alice", Name: "Alice", Status: active, Roles: []string{"employee"}, Groups: []string{"platform"}, ReportsTo: "lead"},
		{ID: "bob", Name: "Bob", Status: active, Roles: []string{"employee"}, Groups: []string{"platform"}, ReportsTo: "lead"},
		{ID: "cfo", Name: "CFO", Status: active, Roles: []string{"finance"}, Groups: []string{"finance"}, ReportsTo: "ceo"},
		{ID: "fin", Name: "Accountant", Status: active, Roles: []string{"finance"}, Groups: []string{"finance"}, ReportsTo: "cfo"},
		{ID: "ghost", Name: "Former", Status: org.UserStatusInactive, Roles: []string{"finance"}, Groups: []string{"finance"}, ReportsTo: "cfo"},
	}
}

// NewRepository returns a memory repository holding the standard org.
func NewRepository() *org.MemoryOrgRepository {
	repo := org.NewMemoryOrgRepository()
	ctx := context.Background()
	for _, g := range Groups() {
		_ = repo.SaveGroup(ctx, &g)
	}
	for _, u := range Users() {
		_ = repo.SaveUser(ctx, &u)
	}
	return repo
}

// NewDirectory returns an org service over the standard org.
func NewDirectory() org.OrgService {
	clk := clock.New()
	auditSvc := audit.NewAuditService(audit.NewMemoryAuditRepository(), clk)
	return org.NewOrgService(NewRepository(), auditSvc, clk)
}
