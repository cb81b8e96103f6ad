package approval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/delegation"
	"go-approval/internal/features/notification"
	"go-approval/internal/features/org"
	"go-approval/internal/features/resolver"
	"go-approval/internal/features/workflow"
	"go-approval/internal/idgen"
	"go-approval/internal/logger"
	"go-approval/pkg/condition"
	"go-approval/pkg/keylock"

	"go.uber.org/zap"
)

var (
	ErrNotEligible         = errors.New("actor is not eligible for the current step")
	ErrAlreadyTerminal     = errors.New("request is already in a terminal state")
	ErrEscalationExhausted = errors.New("escalation levels exhausted")
	ErrActionNotAllowed    = errors.New("action not allowed on the current step")
	ErrNotRequester        = errors.New("only the requester can cancel a request")
	ErrInvalidRequest      = errors.New("invalid approval request")
	ErrNotParked           = errors.New("request is not awaiting approver resolution")
)

const auditModule = "approval_requests"

type ApprovalService interface {
	// Submit files a request against the active workflow for its type and
	// enters step 0. A request whose approvers cannot be resolved is stored
	// parked and returned without error.
	Submit(ctx context.Context, in SubmitInput) (*ApprovalRequest, error)
	Decide(ctx context.Context, in DecisionInput) (*ApprovalRequest, error)
	Cancel(ctx context.Context, id, actorID, reason string) (*ApprovalRequest, error)
	// Escalate applies the workflow's rule for trigger. When the escalation
	// levels are used up the request is stored EXPIRED and
	// ErrEscalationExhausted is returned with it.
	Escalate(ctx context.Context, id string, trigger workflow.EscalationTrigger, actorID string) (*ApprovalRequest, error)
	// ProcessTimers applies the request's earliest elapsed timer, if any.
	ProcessTimers(ctx context.Context, id string) (*ApprovalRequest, error)
	// Reresolve retries approver resolution of a parked request.
	Reresolve(ctx context.Context, id, actorID string) (*ApprovalRequest, error)
	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	ListPendingFor(ctx context.Context, actorID string) ([]ApprovalRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]ApprovalRequest, error)
	ListParked(ctx context.Context) ([]ApprovalRequest, error)
	FindDue(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type ApprovalServiceImpl struct {
	repo         RequestRepository
	workflows    workflow.WorkflowService
	resolver     resolver.Resolver
	delegations  delegation.DelegationService
	directory    org.Directory
	auditService audit.AuditService
	publisher    notification.Publisher
	clock        clock.Clock
	settings     Settings
	locks        *keylock.Locker
	logger       *zap.Logger
}

func NewApprovalService(
	repo RequestRepository,
	workflows workflow.WorkflowService,
	approvers resolver.Resolver,
	delegations delegation.DelegationService,
	directory org.Directory,
	auditService audit.AuditService,
	publisher notification.Publisher,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) ApprovalService {
	return &ApprovalServiceImpl{
		repo:         repo,
		workflows:    workflows,
		resolver:     approvers,
		delegations:  delegations,
		directory:    directory,
		auditService: auditService,
		publisher:    publisher,
		clock:        clk,
		settings:     settings,
		locks:        keylock.New(),
		logger:       logger.Named("approval"),
	}
}

// mutation collects the effects of one serialized operation on a request.
// History entries past logFrom are audited and events are published only
// after the request is saved.
type mutation struct {
	req       *ApprovalRequest
	now       time.Time
	oldStatus RequestStatus
	logFrom   int
	events    []notification.Event
	// keep commits the request even though the operation returns an error.
	keep bool
}

func newMutation(req *ApprovalRequest, now time.Time) *mutation {
	return &mutation{req: req, now: now, oldStatus: req.Status, logFrom: len(req.History)}
}

func (m *mutation) record(actorID string, action HistoryAction, comment string, onBehalfOf ...string) {
	entry := HistoryEntry{
		Step:      m.req.CurrentStep,
		ActorID:   actorID,
		Action:    action,
		Comment:   comment,
		Timestamp: m.now,
	}
	if step := m.req.CurrentStepDef(); step != nil {
		entry.StepName = step.Name
	}
	for _, id := range onBehalfOf {
		if id != actorID {
			entry.OnBehalfOf = append(entry.OnBehalfOf, id)
		}
	}
	m.req.History = append(m.req.History, entry)
}

func (m *mutation) emit(event notification.Event) {
	m.events = append(m.events, event)
}

func (m *mutation) markReviewed() {
	if m.req.Status == StatusPending {
		m.req.Status = StatusInReview
	}
}

func subjectOf(req *ApprovalRequest) resolver.Subject {
	return resolver.Subject{
		RequestID:   req.ID,
		RequestType: req.Type,
		RequesterID: req.RequesterID,
		GroupID:     req.RequesterGroup,
	}
}

func (s *ApprovalServiceImpl) Submit(ctx context.Context, in SubmitInput) (*ApprovalRequest, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, in.Type)
	}
	if in.RequesterID == "" {
		return nil, fmt.Errorf("%w: requester_id is required", ErrInvalidRequest)
	}
	requester, err := s.directory.GetUser(ctx, in.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("%w: requester %s: %v", ErrInvalidRequest, in.RequesterID, err)
	}
	if !requester.IsActive() {
		return nil, fmt.Errorf("%w: requester %s is not active", ErrInvalidRequest, in.RequesterID)
	}
	if in.RequesterGroup != "" && !slices.Contains(requester.Groups, in.RequesterGroup) {
		return nil, fmt.Errorf("%w: requester %s is not a member of group %s", ErrInvalidRequest, in.RequesterID, in.RequesterGroup)
	}

	wf, err := s.workflowFor(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := &ApprovalRequest{
		ID:             idgen.New(),
		Type:           in.Type,
		RequesterID:    requester.ID,
		RequesterRole:  in.RequesterRole,
		RequesterGroup: in.RequesterGroup,
		Priority:       in.Priority,
		RequestData:    condition.CloneMap(in.RequestData),
		Status:         StatusPending,
		TotalSteps:     len(wf.Steps),
		Workflow:       wf.Clone(),
		History:        []HistoryEntry{},
		DueDate:        clonePtr(in.DueDate),
		CreatedAt:      now,
		SubmittedAt:    now,
	}
	if req.RequestData == nil {
		req.RequestData = map[string]interface{}{}
	}
	if req.RequesterGroup == "" {
		req.RequesterGroup = requester.PrimaryGroup()
	}
	if req.RequesterRole == "" && len(requester.Roles) > 0 {
		req.RequesterRole = requester.Roles[0]
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	m := newMutation(req, now)
	m.record(req.RequesterID, HistorySubmitted, "")
	if err := s.enterStep(ctx, m, 0); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, m, true); err != nil {
		return nil, err
	}

	s.logger.Info("Approval request submitted",
		zap.String("request_id", req.ID),
		zap.String("request_type", string(req.Type)),
		zap.String("workflow_id", wf.ID),
		zap.Int("workflow_version", wf.Version),
		zap.String("status", string(req.Status)))
	return req.Clone(), nil
}

func (s *ApprovalServiceImpl) workflowFor(ctx context.Context, in SubmitInput) (*workflow.ApprovalWorkflow, error) {
	if in.WorkflowID == "" {
		return s.workflows.GetActiveForType(ctx, in.Type)
	}
	wf, err := s.workflows.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Active {
		return nil, fmt.Errorf("%w: workflow %s is inactive", workflow.ErrNoActiveWorkflow, wf.ID)
	}
	if wf.RequestType != in.Type {
		return nil, fmt.Errorf("%w: workflow %s handles %s", ErrInvalidRequest, wf.ID, wf.RequestType)
	}
	return wf, nil
}

// enterStep moves the request to step idx and applies the entry rules:
// gating conditions, auto-approve conditions, approver resolution and
// self-approval. Steps that need no human decision are passed through, and
// running past the last step seals the request APPROVED.
func (s *ApprovalServiceImpl) enterStep(ctx context.Context, m *mutation, idx int) error {
	req := m.req
	wf := req.Workflow
	for ; idx < req.TotalSteps; idx++ {
		req.CurrentStep = idx
		step := &wf.Steps[idx]
		req.Step = &StepState{Index: idx, Name: step.Name, EnteredAt: m.now, ClockStart: m.now}
		req.Delegated = false

		if !condition.Evaluate(step.Conditions, req.RequestData) {
			m.record(common_models.SystemActor, HistorySkipped, "step conditions not met")
			continue
		}
		if len(wf.AutoApproveConditions) > 0 && condition.Evaluate(wf.AutoApproveConditions, req.RequestData) {
			m.markReviewed()
			m.record(common_models.SystemActor, HistoryAutoApproved, "auto-approve conditions met")
			continue
		}

		res, err := s.resolver.Resolve(ctx, step, wf.AllowDelegation, subjectOf(req), m.now)
		if err != nil {
			return s.park(m, err)
		}
		req.ResolutionError = ""
		req.Step.setResolution(res)
		req.Delegated = res.Delegated()

		if wf.CanSelfApprove && res.Only(req.RequesterID) {
			m.markReviewed()
			m.record(req.RequesterID, HistorySelfApproved, "requester is the only eligible approver", res.Represents(req.RequesterID)...)
			continue
		}

		m.emit(notification.Event{
			Type:       notification.EventRequestSubmitted,
			Recipients: slices.Clone(res.Actors),
			Reason:     step.Name,
		})
		return nil
	}

	req.CurrentStep = req.TotalSteps
	s.seal(m, StatusApproved, common_models.SystemActor, "", HistoryApproved, "all steps approved")
	return nil
}

// park records a resolution failure. Other errors abort the operation.
func (s *ApprovalServiceImpl) park(m *mutation, err error) error {
	var resErr *resolver.ResolutionError
	if !errors.As(err, &resErr) {
		return err
	}
	req := m.req
	if req.Step != nil {
		req.Step.setResolution(nil)
		req.Step.Approvals = nil
	}
	req.Delegated = false
	req.ResolutionError = resErr.Error()
	m.record(common_models.SystemActor, HistoryResolutionFailed, "")
	m.emit(notification.Event{
		Type:         notification.EventResolutionFailed,
		NotifyAdmins: true,
		Reason:       resErr.Error(),
	})

	s.logger.Error("Approval request parked",
		zap.String("request_id", req.ID),
		zap.Int("step", req.CurrentStep),
		zap.Error(err),
		logger.AdminAlert())
	return nil
}

// seal moves the request to a terminal status.
func (s *ApprovalServiceImpl) seal(m *mutation, status RequestStatus, actorID, reason string, action HistoryAction, comment string) {
	req := m.req
	recipients := []string{req.RequesterID}
	if req.Step != nil && req.Step.Resolution != nil && status != StatusApproved {
		recipients = append(recipients, req.Step.Resolution.Actors...)
	}

	req.Status = status
	req.Reason = reason
	req.ResolutionError = ""
	completed := m.now
	req.CompletedAt = &completed
	m.record(actorID, action, comment)

	event := notification.Event{ActorID: actorID, Recipients: recipients, Reason: reason}
	switch status {
	case StatusApproved:
		event.Type = notification.EventRequestApproved
	case StatusRejected:
		event.Type = notification.EventRequestRejected
		event.Recipients = []string{req.RequesterID}
	case StatusCancelled:
		event.Type = notification.EventRequestCancelled
	case StatusExpired:
		event.Type = notification.EventRequestExpired
		event.NotifyAdmins = reason == ReasonEscalationExhausted
	}
	m.emit(event)
}

// commit persists the request, then audits new history and publishes the
// collected events.
func (s *ApprovalServiceImpl) commit(ctx context.Context, m *mutation, create bool) error {
	req := m.req
	req.UpdatedAt = m.now
	syncDeadline(req)

	var err error
	if create {
		err = s.repo.Create(ctx, req)
	} else {
		err = s.repo.Update(ctx, req)
	}
	if err != nil {
		return err
	}

	entries := req.History[m.logFrom:]
	for i, h := range entries {
		changes := map[string]common_models.Change{
			"step": {New: h.StepName},
		}
		if len(h.OnBehalfOf) > 0 {
			changes["on_behalf_of"] = common_models.Change{New: h.OnBehalfOf}
		}
		if h.Comment != "" {
			changes["comment"] = common_models.Change{New: h.Comment}
		}
		if i == len(entries)-1 && m.oldStatus != req.Status {
			changes["status"] = common_models.Change{Old: m.oldStatus, New: req.Status}
		}
		_ = s.auditService.LogAction(ctx, h.ActorID, auditActionFor(h.Action), auditModule, req.ID, changes)
	}

	for _, event := range m.events {
		event.ID = idgen.New()
		event.RequestID = req.ID
		event.RequestType = string(req.Type)
		event.Status = string(req.Status)
		event.Step = req.CurrentStep
		event.Timestamp = m.now
		s.publisher.Publish(ctx, event)
	}
	return nil
}

func auditActionFor(action HistoryAction) common_models.AuditAction {
	switch action {
	case HistorySubmitted:
		return common_models.AuditActionSubmit
	case HistoryApproved, HistoryAutoApproved, HistorySelfApproved:
		return common_models.AuditActionApproval
	case HistoryRejected:
		return common_models.AuditActionRejection
	case HistoryDelegated:
		return common_models.AuditActionDelegation
	case HistoryEscalated:
		return common_models.AuditActionEscalation
	case HistoryCancelled:
		return common_models.AuditActionCancel
	case HistoryExpired:
		return common_models.AuditActionExpire
	case HistoryResolutionFailed, HistoryReresolved:
		return common_models.AuditActionResolution
	}
	return common_models.AuditActionWorkflow
}

// mutate runs fn on request id under its lock and commits the result.
func (s *ApprovalServiceImpl) mutate(ctx context.Context, id string, fn func(m *mutation) error) (*ApprovalRequest, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m := newMutation(req, s.clock.Now())
	opErr := fn(m)
	if opErr != nil && !m.keep {
		return nil, opErr
	}
	if err := s.commit(ctx, m, false); err != nil {
		return nil, err
	}
	return req.Clone(), opErr
}

func (s *ApprovalServiceImpl) Decide(ctx context.Context, in DecisionInput) (*ApprovalRequest, error) {
	if !in.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrActionNotAllowed, in.Action)
	}
	if in.ActorID == "" {
		return nil, ErrNotEligible
	}
	return s.mutate(ctx, in.RequestID, func(m *mutation) error {
		return s.decide(ctx, m, in)
	})
}

func (s *ApprovalServiceImpl) decide(ctx context.Context, m *mutation, in DecisionInput) error {
	req := m.req
	if req.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if req.Parked() || req.Step == nil || req.Step.Resolution == nil {
		return fmt.Errorf("%w: request is awaiting approver resolution", ErrNotEligible)
	}
	step := req.CurrentStepDef()
	if step == nil || !step.Allows(in.Action) {
		return fmt.Errorf("%w: %s", ErrActionNotAllowed, in.Action)
	}

	stored := req.Step.Resolution
	fresh, err := s.resolver.Refresh(ctx, stored, s.substitutes(req), subjectOf(req), m.now)
	if err != nil {
		return err
	}
	if !fresh.Eligible(in.ActorID) {
		if stored.Eligible(in.ActorID) && actsAsDelegate(stored, in.ActorID) {
			return fmt.Errorf("%w: %w", ErrNotEligible, delegation.ErrDelegationInactive)
		}
		return ErrNotEligible
	}
	if in.Action == workflow.ActionApprove && in.ActorID == req.RequesterID && !req.Workflow.CanSelfApprove {
		return fmt.Errorf("%w: requester cannot approve their own request", ErrNotEligible)
	}
	req.Step.setResolution(fresh)
	req.Delegated = fresh.Delegated()
	principals := fresh.Represents(in.ActorID)

	switch in.Action {
	case workflow.ActionApprove:
		m.markReviewed()
		m.record(in.ActorID, HistoryApproved, in.Comment, principals...)
		for _, p := range principals {
			if sub, ok := fresh.SubstitutionFor(in.ActorID, p); ok {
				s.logger.Info("Approval applied through delegation",
					zap.String("request_id", req.ID),
					zap.String("actor_id", in.ActorID),
					zap.String("on_behalf_of", sub.OnBehalfOf),
					zap.Strings("delegation_ids", sub.DelegationIDs))
			}
			if !slices.Contains(req.Step.Approvals, p) {
				req.Step.Approvals = append(req.Step.Approvals, p)
			}
		}
		if step.Unanimous && !allApproved(quorum(req, fresh), req.Step.Approvals) {
			return nil
		}
		return s.enterStep(ctx, m, req.CurrentStep+1)

	case workflow.ActionReject:
		m.markReviewed()
		if !step.Required {
			m.record(in.ActorID, HistoryRejected, in.Comment, principals...)
			return s.enterStep(ctx, m, req.CurrentStep+1)
		}
		req.RejectedBy = in.ActorID
		s.seal(m, StatusRejected, in.ActorID, in.Comment, HistoryRejected, in.Comment)
		if n := len(req.History); n > 0 {
			req.History[n-1].OnBehalfOf = onBehalfOf(in.ActorID, principals)
		}
		return nil

	case workflow.ActionRequestInfo:
		m.markReviewed()
		m.record(in.ActorID, HistoryInfoRequested, in.Comment, principals...)
		m.emit(notification.Event{
			Type:       notification.EventRequestInfoRequested,
			ActorID:    in.ActorID,
			Recipients: []string{req.RequesterID},
			Reason:     in.Comment,
		})
		return nil

	case workflow.ActionDelegate:
		return s.delegate(ctx, m, in, principals)

	case workflow.ActionEscalate:
		return s.escalate(ctx, m, workflow.TriggerManual, in.ActorID)
	}
	return fmt.Errorf("%w: %s", ErrActionNotAllowed, in.Action)
}

func (s *ApprovalServiceImpl) substitutes(req *ApprovalRequest) bool {
	step := req.CurrentStepDef()
	return req.Workflow.AllowDelegation && step != nil && step.Delegable
}

func actsAsDelegate(res *resolver.Resolution, actorID string) bool {
	for _, sub := range res.Substitutions {
		if sub.ActorID == actorID {
			return true
		}
	}
	return false
}

// quorum lists the original approvers a unanimous step waits for. Without
// self-approval the requester cannot approve, so the originals only the
// requester stands for are left out.
func quorum(req *ApprovalRequest, res *resolver.Resolution) []string {
	if req.Workflow.CanSelfApprove {
		return res.Original
	}
	own := res.Represents(req.RequesterID)
	return slices.DeleteFunc(slices.Clone(res.Original), func(id string) bool {
		return slices.Contains(own, id)
	})
}

func allApproved(original, approvals []string) bool {
	for _, id := range original {
		if !slices.Contains(approvals, id) {
			return false
		}
	}
	return true
}

func onBehalfOf(actorID string, principals []string) []string {
	var out []string
	for _, p := range principals {
		if p != actorID {
			out = append(out, p)
		}
	}
	return out
}

// delegate grants a delegation scoped to this request and re-resolves the
// current step through it.
func (s *ApprovalServiceImpl) delegate(ctx context.Context, m *mutation, in DecisionInput, principals []string) error {
	req := m.req
	if !s.substitutes(req) {
		return fmt.Errorf("%w: step is not delegable", ErrActionNotAllowed)
	}
	if in.DelegateTo == "" || in.DelegateTo == in.ActorID {
		return fmt.Errorf("%w: delegate_to must name another user", ErrInvalidRequest)
	}

	d, err := s.delegations.CreateDelegation(ctx, delegation.CreateInput{
		DelegatorID:  in.ActorID,
		DelegateID:   in.DelegateTo,
		RequestType:  req.Type,
		RequestID:    req.ID,
		StartDate:    m.now,
		EndDate:      m.now.Add(s.settings.RequestDelegationTTL),
		Reason:       in.Comment,
		ApprovalType: delegation.ApprovalDirect,
	})
	if err != nil {
		return err
	}
	req.DelegationIDs = append(req.DelegationIDs, d.ID)
	m.record(in.ActorID, HistoryDelegated, fmt.Sprintf("delegated to %s", in.DelegateTo), principals...)

	res, err := s.resolver.Refresh(ctx, req.Step.Resolution, true, subjectOf(req), m.now)
	if err != nil {
		return err
	}
	req.Step.setResolution(res)
	req.Delegated = res.Delegated()

	s.logger.Info("Approval step delegated",
		zap.String("request_id", req.ID),
		zap.String("delegator_id", in.ActorID),
		zap.String("delegate_id", in.DelegateTo),
		zap.String("delegation_id", d.ID))
	return nil
}

func (s *ApprovalServiceImpl) Escalate(ctx context.Context, id string, trigger workflow.EscalationTrigger, actorID string) (*ApprovalRequest, error) {
	if actorID == "" {
		actorID = common_models.SystemActor
	}
	return s.mutate(ctx, id, func(m *mutation) error {
		return s.escalate(ctx, m, trigger, actorID)
	})
}

// escalate re-resolves the current step through the workflow rule for
// trigger and restarts the step clock.
func (s *ApprovalServiceImpl) escalate(ctx context.Context, m *mutation, trigger workflow.EscalationTrigger, actorID string) error {
	req := m.req
	if req.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	step := req.CurrentStepDef()
	if step == nil {
		return fmt.Errorf("%w: no current step", ErrInvalidRequest)
	}
	wf := req.Workflow

	rule, ok := wf.Rule(trigger, req.CurrentStep, req.RequestData)
	if !ok {
		rule = &workflow.EscalationRule{Trigger: trigger, Type: s.settings.DefaultEscalation}
	}

	if req.EscalationCount >= wf.EscalationLevels {
		s.seal(m, StatusExpired, common_models.SystemActor, ReasonEscalationExhausted, HistoryExpired, string(trigger))
		m.keep = true
		s.logger.Warn("Escalation levels exhausted",
			zap.String("request_id", req.ID),
			zap.Int("escalations", req.EscalationCount))
		return ErrEscalationExhausted
	}
	req.EscalationCount++

	var previous []string
	if req.Step != nil && req.Step.Resolution != nil {
		previous = req.Step.Resolution.Actors
	}
	m.record(actorID, HistoryEscalated, fmt.Sprintf("%s: %s", trigger, rule.Type))

	res, err := s.resolver.ResolveEscalation(ctx, rule, step, wf.AllowDelegation, subjectOf(req), req.EscalationCount, m.now)
	if err != nil {
		return s.park(m, err)
	}
	if req.Step == nil {
		req.Step = &StepState{Index: req.CurrentStep, Name: step.Name, EnteredAt: m.now}
	}
	req.Step.setResolution(res)
	req.Step.Approvals = nil
	req.Step.ClockStart = m.now
	req.ResolutionError = ""
	req.Delegated = res.Delegated()

	recipients := slices.Clone(res.Actors)
	if rule.NotifyRequester {
		recipients = append(recipients, req.RequesterID)
	}
	if rule.NotifyApprovers {
		recipients = append(recipients, previous...)
	}
	m.emit(notification.Event{
		Type:         notification.EventRequestEscalated,
		ActorID:      actorID,
		Recipients:   recipients,
		NotifyAdmins: rule.NotifyAdmins,
		Reason:       string(trigger),
	})

	s.logger.Info("Approval request escalated",
		zap.String("request_id", req.ID),
		zap.String("trigger", string(trigger)),
		zap.String("type", string(rule.Type)),
		zap.Int("level", req.EscalationCount),
		zap.Strings("approvers", res.Actors))
	return nil
}

func (s *ApprovalServiceImpl) ProcessTimers(ctx context.Context, id string) (*ApprovalRequest, error) {
	return s.mutate(ctx, id, func(m *mutation) error {
		return s.processTimers(ctx, m)
	})
}

func (s *ApprovalServiceImpl) processTimers(ctx context.Context, m *mutation) error {
	req := m.req
	action, ok := nextTimedAction(req)
	if !ok || action.At.After(m.now) {
		return nil
	}
	s.logger.Info("Request timer elapsed",
		zap.String("request_id", req.ID),
		zap.Stringer("timer", action.Kind),
		zap.Int("step", req.CurrentStep),
		zap.Time("due_at", action.At))

	switch action.Kind {
	case timerStepTimeout:
		return s.escalate(ctx, m, workflow.TriggerStepTimeout, common_models.SystemActor)
	case timerAutoApprove:
		m.markReviewed()
		m.record(common_models.SystemActor, HistoryAutoApproved, "auto-approve-after elapsed")
		return s.enterStep(ctx, m, req.CurrentStep+1)
	case timerDueDate:
		if _, claimed := req.Workflow.Rule(workflow.TriggerTimeLimit, req.CurrentStep, req.RequestData); claimed {
			req.DueClaimed = true
			return s.escalate(ctx, m, workflow.TriggerTimeLimit, common_models.SystemActor)
		}
		s.seal(m, StatusExpired, common_models.SystemActor, ReasonDueDateElapsed, HistoryExpired, "")
	}
	return nil
}

func (s *ApprovalServiceImpl) Cancel(ctx context.Context, id, actorID, reason string) (*ApprovalRequest, error) {
	return s.mutate(ctx, id, func(m *mutation) error {
		if m.req.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		if actorID != m.req.RequesterID {
			return ErrNotRequester
		}
		s.seal(m, StatusCancelled, actorID, reason, HistoryCancelled, reason)
		return nil
	})
}

func (s *ApprovalServiceImpl) Reresolve(ctx context.Context, id, actorID string) (*ApprovalRequest, error) {
	return s.mutate(ctx, id, func(m *mutation) error {
		req := m.req
		if req.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		if !req.Parked() {
			return ErrNotParked
		}
		m.record(actorID, HistoryReresolved, "")
		return s.enterStep(ctx, m, req.CurrentStep)
	})
}

func (s *ApprovalServiceImpl) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	return s.repo.FindByID(ctx, id)
}

// ListPendingFor lists open requests actorID may decide now, directly or
// through a delegation.
func (s *ApprovalServiceImpl) ListPendingFor(ctx context.Context, actorID string) ([]ApprovalRequest, error) {
	now := s.clock.Now()
	candidates := []string{actorID}
	incoming, err := s.delegations.ListIncoming(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for _, d := range incoming {
		if d.UsableAt(now) && !slices.Contains(candidates, d.DelegatorID) {
			candidates = append(candidates, d.DelegatorID)
		}
	}

	requests, err := s.repo.ListOpenByCandidates(ctx, candidates)
	if err != nil {
		return nil, err
	}
	out := requests[:0]
	for _, req := range requests {
		if req.Step == nil || req.Step.Resolution == nil {
			continue
		}
		fresh, err := s.resolver.Refresh(ctx, req.Step.Resolution, s.substitutes(&req), subjectOf(&req), now)
		if err != nil {
			return nil, err
		}
		if fresh.Eligible(actorID) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *ApprovalServiceImpl) ListByRequester(ctx context.Context, requesterID string) ([]ApprovalRequest, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

func (s *ApprovalServiceImpl) ListParked(ctx context.Context) ([]ApprovalRequest, error) {
	return s.repo.ListParked(ctx)
}

func (s *ApprovalServiceImpl) FindDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.repo.FindDue(ctx, before, limit)
}
