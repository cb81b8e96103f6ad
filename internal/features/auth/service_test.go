package auth

import (
	"context"
	"testing"
	"time"

	"go-approval/internal/clock"
	"go-approval/internal/config"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/org"
	"go-approval/internal/features/org/orgtest"
	"go-approval/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	auditRepo := audit.NewMemoryAuditRepository()
	auditSvc := audit.NewAuditService(auditRepo, clock.NewFake(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)))
	svc := NewAuthService(&config.Config{JWTSecret: "auth-test"}, orgtest.NewDirectory(), auditSvc)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "admin", "admin")
	require.NoError(t, err)

	claims, err := utils.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.UserID)
	assert.True(t, claims.HasRole("admin"))

	logs, err := auditRepo.List(ctx, audit.LogFilter{Module: "auth"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].ActorID)

	_, err = svc.IssueToken(ctx, "ghost", "admin")
	assert.ErrorIs(t, err, ErrInactiveUser)

	_, err = svc.IssueToken(ctx, "nobody", "admin")
	assert.ErrorIs(t, err, org.ErrUserNotFound)
}
