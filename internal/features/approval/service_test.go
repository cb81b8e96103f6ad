package approval

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/delegation"
	"go-approval/internal/features/notification"
	"go-approval/internal/features/notification/notificationtest"
	"go-approval/internal/features/org"
	"go-approval/internal/features/org/orgtest"
	"go-approval/internal/features/resolver"
	"go-approval/internal/features/workflow"
	"go-approval/pkg/condition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc         ApprovalService
	repo        *MemoryRequestRepository
	workflows   workflow.WorkflowService
	delegations delegation.DelegationService
	directory   org.OrgService
	events      *notificationtest.Recorder
	auditRepo   *audit.MemoryAuditRepository
	clock       *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(t0)
	log := zap.NewNop()
	auditRepo := audit.NewMemoryAuditRepository()
	auditSvc := audit.NewAuditService(auditRepo, clk)
	directory := orgtest.NewDirectory()
	events := &notificationtest.Recorder{}

	workflows := workflow.NewWorkflowService(workflow.NewMemoryWorkflowRepository(), auditSvc, clk, log)
	delegations := delegation.NewDelegationService(delegation.NewMemoryDelegationRepository(), directory, auditSvc, events, clk,
		delegation.Settings{DefaultApprovalType: delegation.ApprovalDirect}, log)
	approvers := resolver.NewResolver(directory, delegations, log)
	repo := NewMemoryRequestRepository()
	settings := Settings{RequestDelegationTTL: 72 * time.Hour, DefaultEscalation: workflow.EscalateNextLevel}

	return &harness{
		svc:         NewApprovalService(repo, workflows, approvers, delegations, directory, auditSvc, events, clk, settings, log),
		repo:        repo,
		workflows:   workflows,
		delegations: delegations,
		directory:   directory,
		events:      events,
		auditRepo:   auditRepo,
		clock:       clk,
	}
}

func (h *harness) define(t *testing.T, wf workflow.ApprovalWorkflow) *workflow.ApprovalWorkflow {
	t.Helper()
	if wf.Name == "" {
		wf.Name = "Leave approval"
	}
	if wf.RequestType == "" {
		wf.RequestType = workflow.RequestTypeLeave
	}
	wf.Active = true
	require.NoError(t, h.workflows.CreateWorkflow(context.Background(), &wf))
	return &wf
}

func (h *harness) submit(t *testing.T, requester string, data map[string]interface{}) *ApprovalRequest {
	t.Helper()
	req, err := h.svc.Submit(context.Background(), SubmitInput{
		Type:        workflow.RequestTypeLeave,
		RequesterID: requester,
		RequestData: data,
	})
	require.NoError(t, err)
	return req
}

func (h *harness) decide(id, actor string, action workflow.Action) (*ApprovalRequest, error) {
	return h.svc.Decide(context.Background(), DecisionInput{RequestID: id, ActorID: actor, Action: action})
}

func (h *harness) delegate(t *testing.T, from, to string, end time.Time) *delegation.Delegation {
	t.Helper()
	d, err := h.delegations.CreateDelegation(context.Background(), delegation.CreateInput{
		DelegatorID: from,
		DelegateID:  to,
		RequestType: workflow.RequestTypeLeave,
		EndDate:     end,
		Reason:      "away",
	})
	require.NoError(t, err)
	return d
}

func approverStep(name string, spec workflow.ApproverSpec) workflow.ApprovalStep {
	return workflow.ApprovalStep{Name: name, Approver: spec, Required: true, Delegable: true}
}

var (
	manager      = workflow.ApproverSpec{Kind: workflow.ApproverManager}
	upperManager = workflow.ApproverSpec{Kind: workflow.ApproverUpperManager}
	finance      = workflow.ApproverSpec{Kind: workflow.ApproverRole, Roles: []string{"finance"}}
)

func historyActions(req *ApprovalRequest) []HistoryAction {
	out := make([]HistoryAction, len(req.History))
	for i, h := range req.History {
		out[i] = h.Action
	}
	return out
}

func TestTwoStepApproval(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{
		approverStep("Manager", manager),
		approverStep("Director", upperManager),
	}})

	req := h.submit(t, "alice", map[string]interface{}{"days": 3})
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, 0, req.CurrentStep)
	assert.Equal(t, 2, req.TotalSteps)
	assert.Equal(t, []string{"lead"}, req.Step.Resolution.Actors)
	assert.Equal(t, "platform", req.RequesterGroup)

	_, err := h.decide(req.ID, "bob", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrNotEligible)

	req, err = h.decide(req.ID, "lead", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, req.Status)
	assert.Equal(t, 1, req.CurrentStep)
	assert.Equal(t, []string{"vp-eng"}, req.Step.Resolution.Actors)

	req, err = h.decide(req.ID, "vp-eng", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, req.TotalSteps, req.CurrentStep)
	require.NotNil(t, req.CompletedAt)
	assert.Nil(t, req.NextDeadline)
	assert.Equal(t, []HistoryAction{HistorySubmitted, HistoryApproved, HistoryApproved, HistoryApproved}, historyActions(req))
	assert.Equal(t, common_models.SystemActor, req.History[3].ActorID)

	submitted := h.events.OfType(notification.EventRequestSubmitted)
	require.Len(t, submitted, 2)
	assert.Equal(t, []string{"lead"}, submitted[0].Recipients)
	assert.Equal(t, []string{"vp-eng"}, submitted[1].Recipients)
	approved := h.events.OfType(notification.EventRequestApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, []string{"alice"}, approved[0].Recipients)

	_, err = h.decide(req.ID, "vp-eng", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	logs, err := h.auditRepo.List(context.Background(), audit.LogFilter{Module: auditModule, RecordID: req.ID}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}

func TestRejectRequiredStepSeals(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{
		approverStep("Manager", manager),
		approverStep("Director", upperManager),
	}})
	req := h.submit(t, "alice", nil)

	req, err := h.svc.Decide(context.Background(), DecisionInput{
		RequestID: req.ID, ActorID: "lead", Action: workflow.ActionReject, Comment: "team is short",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	assert.Equal(t, "lead", req.RejectedBy)
	assert.Equal(t, "team is short", req.Reason)
	assert.Equal(t, 0, req.CurrentStep)

	ctx := context.Background()
	_, err = h.decide(req.ID, "lead", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = h.svc.Cancel(ctx, req.ID, "alice", "")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = h.svc.Escalate(ctx, req.ID, workflow.TriggerManual, "admin")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = h.svc.Reresolve(ctx, req.ID, "admin")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	stored, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)
	require.Len(t, h.events.OfType(notification.EventRequestRejected), 1)
}

func TestRejectOptionalStepAdvances(t *testing.T) {
	h := newHarness(t)
	optional := approverStep("Peer review", workflow.ApproverSpec{Kind: workflow.ApproverSpecific, UserIDs: []string{"bob"}})
	optional.Required = false
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{optional, approverStep("Manager", manager)}})

	req := h.submit(t, "alice", nil)
	req, err := h.decide(req.ID, "bob", workflow.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, req.Status)
	assert.Equal(t, 1, req.CurrentStep)
	assert.Empty(t, req.RejectedBy)
	assert.Equal(t, HistoryRejected, req.History[1].Action)
}

func TestFirstApproverWinsUnlessUnanimous(t *testing.T) {
	t.Run("first approver wins", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Finance", finance)}})
		req := h.submit(t, "alice", nil)
		assert.Equal(t, []string{"cfo", "fin"}, req.Step.Resolution.Actors)

		req, err := h.decide(req.ID, "fin", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
	})

	t.Run("unanimous waits for every approver", func(t *testing.T) {
		h := newHarness(t)
		step := approverStep("Finance", finance)
		step.Unanimous = true
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{step}})
		req := h.submit(t, "alice", nil)

		req, err := h.decide(req.ID, "fin", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusInReview, req.Status)
		assert.Equal(t, 0, req.CurrentStep)
		assert.Equal(t, []string{"fin"}, req.Step.Approvals)

		req, err = h.decide(req.ID, "fin", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusInReview, req.Status)

		req, err = h.decide(req.ID, "cfo", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
	})

	t.Run("unanimous does not wait for the requester", func(t *testing.T) {
		h := newHarness(t)
		step := approverStep("Finance", finance)
		step.Unanimous = true
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{step}})
		req := h.submit(t, "fin", nil)
		assert.Equal(t, []string{"cfo", "fin"}, req.Step.Resolution.Original)

		_, err := h.decide(req.ID, "fin", workflow.ActionApprove)
		assert.ErrorIs(t, err, ErrNotEligible)

		req, err = h.decide(req.ID, "cfo", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
	})

	t.Run("unanimous does not wait for a requester standing in as delegate", func(t *testing.T) {
		h := newHarness(t)
		step := approverStep("Finance", finance)
		step.Unanimous = true
		h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{step}})
		h.delegate(t, "cfo", "alice", t0.Add(24*time.Hour))

		req := h.submit(t, "alice", nil)
		assert.Equal(t, []string{"alice", "fin"}, req.Step.Resolution.Actors)

		_, err := h.decide(req.ID, "alice", workflow.ActionApprove)
		assert.ErrorIs(t, err, ErrNotEligible)

		req, err = h.decide(req.ID, "fin", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
	})
}

func TestSubmitRejectsForeignRequesterGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{
		approverStep("Leader", workflow.ApproverSpec{Kind: workflow.ApproverGroupLeader}),
	}})

	_, err := h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "alice", RequesterGroup: "finance"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req, err := h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "alice", RequesterGroup: "platform"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lead"}, req.Step.Resolution.Actors)
}

func TestUnanimousDelegateCoversPrincipal(t *testing.T) {
	h := newHarness(t)
	step := approverStep("Finance", finance)
	step.Unanimous = true
	h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{step}})
	h.delegate(t, "cfo", "bob", t0.Add(24*time.Hour))

	req := h.submit(t, "alice", nil)
	assert.True(t, req.Delegated)
	assert.Equal(t, []string{"bob", "fin"}, req.Step.Resolution.Actors)
	assert.Equal(t, []string{"cfo", "fin"}, req.Step.Resolution.Original)

	_, err := h.decide(req.ID, "cfo", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrNotEligible)

	req, err = h.decide(req.ID, "bob", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, req.Status)
	assert.Equal(t, []string{"cfo"}, req.History[1].OnBehalfOf)

	req, err = h.decide(req.ID, "fin", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
}

func TestSelfApproval(t *testing.T) {
	onlyAlice := workflow.ApproverSpec{Kind: workflow.ApproverSpecific, UserIDs: []string{"alice"}}

	t.Run("allowed", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{CanSelfApprove: true, Steps: []workflow.ApprovalStep{approverStep("Self", onlyAlice)}})
		req := h.submit(t, "alice", nil)
		assert.Equal(t, StatusApproved, req.Status)
		assert.Equal(t, HistorySelfApproved, req.History[1].Action)
		assert.Equal(t, "alice", req.History[1].ActorID)
	})

	t.Run("not allowed", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Self", onlyAlice)}})
		req := h.submit(t, "alice", nil)
		assert.Equal(t, StatusPending, req.Status)

		_, err := h.decide(req.ID, "alice", workflow.ActionApprove)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("requester among several approvers waits", func(t *testing.T) {
		h := newHarness(t)
		spec := workflow.ApproverSpec{Kind: workflow.ApproverSpecific, UserIDs: []string{"alice", "bob"}}
		h.define(t, workflow.ApprovalWorkflow{CanSelfApprove: true, Steps: []workflow.ApprovalStep{approverStep("Pair", spec)}})
		req := h.submit(t, "alice", nil)
		assert.Equal(t, StatusPending, req.Status)
	})
}

func TestAutoApproveConditions(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{
		Steps: []workflow.ApprovalStep{approverStep("Manager", manager)},
		AutoApproveConditions: []condition.Condition{
			{Field: "days", Operator: condition.OpLessThan, Value: 2},
		},
	})

	req := h.submit(t, "alice", map[string]interface{}{"days": 1})
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, HistoryAutoApproved, req.History[1].Action)
	assert.Equal(t, common_models.SystemActor, req.History[1].ActorID)

	req = h.submit(t, "alice", map[string]interface{}{"days": 5})
	assert.Equal(t, StatusPending, req.Status)
}

func TestStepConditionsGateEntry(t *testing.T) {
	h := newHarness(t)
	director := approverStep("Director", upperManager)
	director.Conditions = []condition.Condition{{Field: "leave.days", Operator: condition.OpGreaterThan, Value: 10}}
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager), director}})

	short := h.submit(t, "alice", map[string]interface{}{"leave": map[string]interface{}{"days": 3}})
	short, err := h.decide(short.ID, "lead", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, short.Status)
	assert.Contains(t, historyActions(short), HistorySkipped)

	long := h.submit(t, "alice", map[string]interface{}{"leave": map[string]interface{}{"days": 15}})
	long, err = h.decide(long.ID, "lead", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, long.Status)
	assert.Equal(t, 1, long.CurrentStep)
}

func TestResolutionFailureParksRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})

	req := h.submit(t, "ceo", nil)
	assert.Equal(t, StatusPending, req.Status)
	assert.True(t, req.Parked())
	assert.Contains(t, req.ResolutionError, "no manager")
	assert.Nil(t, req.Step.Resolution)
	assert.Nil(t, req.NextDeadline)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "no manager")

	failed := h.events.OfType(notification.EventResolutionFailed)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].NotifyAdmins)

	parked, err := h.svc.ListParked(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, req.ID, parked[0].ID)

	_, err = h.decide(req.ID, "admin", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrNotEligible)

	req, err = h.svc.Reresolve(ctx, req.ID, "admin")
	require.NoError(t, err, "a failed retry stays parked")
	assert.True(t, req.Parked())

	ceo, err := h.directory.GetUser(ctx, "ceo")
	require.NoError(t, err)
	ceo.ReportsTo = "admin"
	require.NoError(t, h.directory.SaveUser(ctx, ceo))

	req, err = h.svc.Reresolve(ctx, req.ID, "admin")
	require.NoError(t, err)
	assert.False(t, req.Parked())
	assert.Equal(t, []string{"admin"}, req.Step.Resolution.Actors)

	_, err = h.svc.Reresolve(ctx, req.ID, "admin")
	assert.ErrorIs(t, err, ErrNotParked)

	parked, err = h.svc.ListParked(ctx)
	require.NoError(t, err)
	assert.Empty(t, parked)
}

func TestDelegateDecision(t *testing.T) {
	h := newHarness(t)
	step := approverStep("Manager", manager)
	step.AllowedActions = []workflow.Action{workflow.ActionApprove, workflow.ActionReject, workflow.ActionDelegate}
	h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{step}})
	req := h.submit(t, "alice", nil)

	_, err := h.svc.Decide(context.Background(), DecisionInput{RequestID: req.ID, ActorID: "lead", Action: workflow.ActionDelegate})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req, err = h.svc.Decide(context.Background(), DecisionInput{
		RequestID: req.ID, ActorID: "lead", Action: workflow.ActionDelegate, DelegateTo: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.True(t, req.Delegated)
	assert.Equal(t, []string{"bob"}, req.Step.Resolution.Actors)
	require.Len(t, req.DelegationIDs, 1)
	assert.Equal(t, HistoryDelegated, req.History[len(req.History)-1].Action)
	assert.Len(t, h.events.OfType(notification.EventDelegationActivated), 1)

	d, err := h.delegations.GetDelegation(context.Background(), req.DelegationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, req.ID, d.RequestID)
	assert.Equal(t, t0.Add(72*time.Hour), d.EndDate)

	_, err = h.decide(req.ID, "lead", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrNotEligible)

	req, err = h.decide(req.ID, "bob", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, []string{"lead"}, req.History[len(req.History)-2].OnBehalfOf)
}

func TestDelegateActionNotAllowed(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
	req := h.submit(t, "alice", nil)

	_, err := h.svc.Decide(context.Background(), DecisionInput{
		RequestID: req.ID, ActorID: "lead", Action: workflow.ActionDelegate, DelegateTo: "bob",
	})
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	_, err = h.decide(req.ID, "lead", "shrug")
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestDelegationWithdrawnBeforeDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
		d := h.delegate(t, "lead", "bob", t0.Add(7*24*time.Hour))

		req := h.submit(t, "alice", nil)
		require.Equal(t, []string{"bob"}, req.Step.Resolution.Actors)

		_, err := h.delegations.RevokeDelegation(ctx, d.ID, "lead", false)
		require.NoError(t, err)

		_, err = h.decide(req.ID, "bob", workflow.ActionApprove)
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.ErrorIs(t, err, delegation.ErrDelegationInactive)

		req, err = h.decide(req.ID, "lead", workflow.ActionApprove)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
		assert.False(t, req.Delegated)
	})

	t.Run("expired", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
		d := h.delegate(t, "lead", "bob", t0.Add(2*time.Hour))

		req := h.submit(t, "alice", nil)
		h.clock.Advance(3 * time.Hour)

		_, err := h.decide(req.ID, "bob", workflow.ActionApprove)
		assert.ErrorIs(t, err, delegation.ErrDelegationInactive)

		stored, err := h.delegations.GetDelegation(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, delegation.StatusExpired, stored.Status)
	})
}

func TestDelegationOutsideWorkflowPolicyIgnored(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
	h.delegate(t, "lead", "bob", t0.Add(24*time.Hour))

	req := h.submit(t, "alice", nil)
	assert.Equal(t, []string{"lead"}, req.Step.Resolution.Actors)
	assert.False(t, req.Delegated)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
	req := h.submit(t, "alice", nil)
	ctx := context.Background()

	_, err := h.svc.Cancel(ctx, req.ID, "lead", "")
	assert.ErrorIs(t, err, ErrNotRequester)

	req, err = h.svc.Cancel(ctx, req.ID, "alice", "plans changed")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, req.Status)
	assert.Equal(t, "plans changed", req.Reason)

	cancelled := h.events.OfType(notification.EventRequestCancelled)
	require.Len(t, cancelled, 1)
	assert.ElementsMatch(t, []string{"alice", "lead"}, cancelled[0].Recipients)

	_, err = h.svc.Cancel(ctx, req.ID, "alice", "")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRequestInfo(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
	req := h.submit(t, "alice", nil)

	req, err := h.svc.Decide(context.Background(), DecisionInput{
		RequestID: req.ID, ActorID: "lead", Action: workflow.ActionRequestInfo, Comment: "which dates?",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, req.Status)
	assert.Equal(t, 0, req.CurrentStep)

	info := h.events.OfType(notification.EventRequestInfoRequested)
	require.Len(t, info, 1)
	assert.Equal(t, []string{"alice"}, info[0].Recipients)
	assert.Equal(t, "which dates?", info[0].Reason)
}

func TestStepTimeoutEscalatesUntilExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	step := approverStep("Manager", manager)
	step.TimeLimitHours = 24
	h.define(t, workflow.ApprovalWorkflow{
		Steps:            []workflow.ApprovalStep{step},
		EscalationLevels: 2,
		EscalationRules: []workflow.EscalationRule{{
			Trigger: workflow.TriggerStepTimeout, Type: workflow.EscalateNextLevel,
			NotifyRequester: true, NotifyApprovers: true,
		}},
	})
	req := h.submit(t, "alice", nil)
	require.NotNil(t, req.NextDeadline)
	assert.Equal(t, t0.Add(24*time.Hour), *req.NextDeadline)

	due, err := h.svc.FindDue(ctx, t0.Add(23*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	h.clock.Advance(23 * time.Hour)
	req, err = h.svc.ProcessTimers(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, req.EscalationCount, "nothing is due yet")

	h.clock.Advance(time.Hour)
	due, err = h.svc.FindDue(ctx, h.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{req.ID}, due)

	req, err = h.svc.ProcessTimers(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.EscalationCount)
	assert.Equal(t, []string{"vp-eng"}, req.Step.Resolution.Actors)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), *req.NextDeadline)

	escalated := h.events.OfType(notification.EventRequestEscalated)
	require.Len(t, escalated, 1)
	assert.ElementsMatch(t, []string{"vp-eng", "alice", "lead"}, escalated[0].Recipients)

	_, err = h.decide(req.ID, "lead", workflow.ActionApprove)
	assert.ErrorIs(t, err, ErrNotEligible)

	h.clock.Advance(24 * time.Hour)
	req, err = h.svc.ProcessTimers(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, req.EscalationCount)
	assert.Equal(t, []string{"ceo"}, req.Step.Resolution.Actors)

	h.clock.Advance(24 * time.Hour)
	req, err = h.svc.ProcessTimers(ctx, req.ID)
	assert.ErrorIs(t, err, ErrEscalationExhausted)
	require.NotNil(t, req)
	assert.Equal(t, StatusExpired, req.Status)
	assert.Equal(t, ReasonEscalationExhausted, req.Reason)

	stored, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
	assert.Nil(t, stored.NextDeadline)

	due, err = h.svc.FindDue(ctx, h.clock.Now().Add(1000*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestAutoApproveAfterElapses(t *testing.T) {
	h := newHarness(t)
	step := approverStep("Manager", manager)
	step.AutoApproveAfterHours = 48
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{step, approverStep("Director", upperManager)}})
	req := h.submit(t, "alice", nil)

	h.clock.Advance(48 * time.Hour)
	req, err := h.svc.ProcessTimers(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.CurrentStep)
	assert.Equal(t, StatusInReview, req.Status)
	entry := req.History[1]
	assert.Equal(t, HistoryAutoApproved, entry.Action)
	assert.Equal(t, common_models.SystemActor, entry.ActorID)
	assert.Nil(t, req.NextDeadline)
}

func TestDueDate(t *testing.T) {
	ctx := context.Background()
	due := t0.Add(10 * time.Hour)

	t.Run("expires without a claiming rule", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
		req, err := h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "alice", DueDate: &due})
		require.NoError(t, err)
		assert.Equal(t, due, *req.NextDeadline)

		h.clock.Advance(10 * time.Hour)
		req, err = h.svc.ProcessTimers(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, req.Status)
		assert.Equal(t, ReasonDueDateElapsed, req.Reason)
		assert.Len(t, h.events.OfType(notification.EventRequestExpired), 1)
	})

	t.Run("claimed by a time limit rule", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{
			Steps:            []workflow.ApprovalStep{approverStep("Manager", manager)},
			EscalationLevels: 1,
			EscalationRules: []workflow.EscalationRule{{
				Trigger: workflow.TriggerTimeLimit, Type: workflow.EscalateAdmin, NotifyAdmins: true,
			}},
		})
		req, err := h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "alice", DueDate: &due})
		require.NoError(t, err)

		h.clock.Advance(11 * time.Hour)
		req, err = h.svc.ProcessTimers(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, req.Status)
		assert.True(t, req.DueClaimed)
		assert.Equal(t, []string{"admin"}, req.Step.Resolution.Actors)
		assert.Nil(t, req.NextDeadline)

		escalated := h.events.OfType(notification.EventRequestEscalated)
		require.Len(t, escalated, 1)
		assert.True(t, escalated[0].NotifyAdmins)
	})
}

func TestManualEscalation(t *testing.T) {
	ctx := context.Background()

	t.Run("zero levels exhausts immediately", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
		req := h.submit(t, "alice", nil)

		req, err := h.svc.Escalate(ctx, req.ID, workflow.TriggerManual, "admin")
		assert.ErrorIs(t, err, ErrEscalationExhausted)
		assert.Equal(t, StatusExpired, req.Status)
	})

	t.Run("approver escalates through the step", func(t *testing.T) {
		h := newHarness(t)
		step := approverStep("Manager", manager)
		step.AllowedActions = []workflow.Action{workflow.ActionApprove, workflow.ActionEscalate}
		h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{step}, EscalationLevels: 1})
		req := h.submit(t, "alice", nil)

		req, err := h.decide(req.ID, "lead", workflow.ActionEscalate)
		require.NoError(t, err)
		assert.Equal(t, []string{"vp-eng"}, req.Step.Resolution.Actors)
		assert.Equal(t, "lead", req.History[len(req.History)-1].ActorID)
	})
}

func TestSnapshotIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})

	data := map[string]interface{}{"days": 2, "dates": []interface{}{"2025-06-10"}}
	req := h.submit(t, "alice", data)
	data["days"] = 20
	data["dates"].([]interface{})[0] = "2025-12-24"

	require.NoError(t, h.workflows.UpdateWorkflow(ctx, wf.ID, &workflow.ApprovalWorkflow{
		Name:        "Leave approval v2",
		RequestType: workflow.RequestTypeLeave,
		Active:      true,
		Steps: []workflow.ApprovalStep{
			approverStep("Finance", workflow.ApproverSpec{Kind: workflow.ApproverSpecific, UserIDs: []string{"cfo"}}),
		},
	}))

	stored, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Workflow.Version)
	assert.Equal(t, "Manager", stored.Workflow.Steps[0].Name)
	assert.Equal(t, 2, stored.RequestData["days"])
	assert.Equal(t, "2025-06-10", stored.RequestData["dates"].([]interface{})[0])

	stored, err = h.decide(req.ID, "lead", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)

	next := h.submit(t, "alice", nil)
	assert.Equal(t, 2, next.Workflow.Version)
	assert.Equal(t, []string{"cfo"}, next.Step.Resolution.Actors)
}

func TestConcurrentApprovalsAdvanceOnce(t *testing.T) {
	h := newHarness(t)
	h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{
		approverStep("Finance", finance),
		approverStep("Admin", workflow.ApproverSpec{Kind: workflow.ApproverAdmin}),
	}})
	req := h.submit(t, "alice", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []string{"cfo", "fin"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.decide(req.ID, actor, workflow.ActionApprove)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNotEligible)
		}
	}
	assert.Equal(t, 1, succeeded)

	stored, err := h.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStep)
	approvals := 0
	for _, entry := range stored.History {
		if entry.Action == HistoryApproved && entry.Step == 0 {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)
}

func TestListPendingFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.define(t, workflow.ApprovalWorkflow{AllowDelegation: true, Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})
	h.submit(t, "alice", nil)
	h.submit(t, "bob", nil)

	pending, err := h.svc.ListPendingFor(ctx, "lead")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	h.delegate(t, "lead", "fin", t0.Add(24*time.Hour))

	pending, err = h.svc.ListPendingFor(ctx, "fin")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pending, err = h.svc.ListPendingFor(ctx, "lead")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The lists flip back as soon as the delegation window closes.
	h.clock.Advance(24*time.Hour + time.Second)

	pending, err = h.svc.ListPendingFor(ctx, "fin")
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = h.svc.ListPendingFor(ctx, "lead")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	req, err := h.decide(pending[0].ID, "lead", workflow.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)

	mine, err := h.svc.ListByRequester(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.define(t, workflow.ApprovalWorkflow{Steps: []workflow.ApprovalStep{approverStep("Manager", manager)}})

	_, err := h.svc.Submit(ctx, SubmitInput{Type: "HOLIDAY", RequesterID: "alice"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "nobody"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, RequesterID: "ghost"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeExpense, RequesterID: "alice"})
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	_, err = h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeExpense, WorkflowID: wf.ID, RequesterID: "alice"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, h.workflows.SetActive(ctx, wf.ID, false))
	_, err = h.svc.Submit(ctx, SubmitInput{Type: workflow.RequestTypeLeave, WorkflowID: wf.ID, RequesterID: "alice"})
	assert.ErrorIs(t, err, workflow.ErrNoActiveWorkflow)

	_, err = h.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
