package workflow

import (
	"context"
	"testing"
	"time"

	"go-approval/internal/clock"
	"go-approval/internal/features/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService() (WorkflowService, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC))
	auditSvc := audit.NewAuditService(audit.NewMemoryAuditRepository(), clk)
	return NewWorkflowService(NewMemoryWorkflowRepository(), auditSvc, clk, zap.NewNop()), clk
}

func TestCreateAssignsIdentity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	wf := validWorkflow()
	require.NoError(t, svc.CreateWorkflow(ctx, wf))
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, 1, wf.Version)
	assert.NotEmpty(t, wf.Steps[0].ID)

	dup := validWorkflow()
	dup.ID = wf.ID
	assert.ErrorIs(t, svc.CreateWorkflow(ctx, dup), ErrInvalidWorkflow)
}

func TestCreateRejectsInvalidDefinition(t *testing.T) {
	svc, _ := newTestService()

	wf := validWorkflow()
	wf.Steps[0].TimeLimitHours = 4
	wf.Steps[0].AutoApproveAfterHours = 8

	assert.ErrorIs(t, svc.CreateWorkflow(context.Background(), wf), ErrConflictingTimers)
	list, err := svc.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateCreatesNewVersion(t *testing.T) {
	svc, clk := newTestService()
	ctx := context.Background()

	wf := validWorkflow()
	wf.ID = "leave"
	require.NoError(t, svc.CreateWorkflow(ctx, wf))

	clk.Advance(time.Hour)
	next := validWorkflow()
	next.Steps = append(next.Steps, ApprovalStep{Name: "HR", Approver: ApproverSpec{Kind: ApproverRole, Roles: []string{"hr"}}, Required: true})
	require.NoError(t, svc.UpdateWorkflow(ctx, "leave", next))
	assert.Equal(t, 2, next.Version)

	latest, err := svc.GetWorkflow(ctx, "leave")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Len(t, latest.Steps, 2)

	first, err := svc.GetWorkflowVersion(ctx, "leave", 1)
	require.NoError(t, err)
	assert.Len(t, first.Steps, 1)

	_, err = svc.GetWorkflowVersion(ctx, "leave", 7)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.ErrorIs(t, svc.UpdateWorkflow(ctx, "missing", validWorkflow()), ErrWorkflowNotFound)
}

func TestGetActiveForType(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.GetActiveForType(ctx, RequestTypeLeave)
	assert.ErrorIs(t, err, ErrNoActiveWorkflow)

	low := validWorkflow()
	low.ID, low.Active, low.Priority = "low", true, 5
	high := validWorkflow()
	high.ID, high.Active, high.Priority = "high", true, 1
	off := validWorkflow()
	off.ID, off.Active, off.Priority = "off", false, 0
	for _, wf := range []*ApprovalWorkflow{low, high, off} {
		require.NoError(t, svc.CreateWorkflow(ctx, wf))
	}

	got, err := svc.GetActiveForType(ctx, RequestTypeLeave)
	require.NoError(t, err)
	assert.Equal(t, "high", got.ID)

	require.NoError(t, svc.SetActive(ctx, "high", false))
	got, err = svc.GetActiveForType(ctx, RequestTypeLeave)
	require.NoError(t, err)
	assert.Equal(t, "low", got.ID)

	_, err = svc.GetActiveForType(ctx, RequestTypeExpense)
	assert.ErrorIs(t, err, ErrNoActiveWorkflow)
}
