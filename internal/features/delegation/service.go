package delegation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/notification"
	"go-approval/internal/features/org"
	"go-approval/internal/features/workflow"
	"go-approval/internal/idgen"
	"go-approval/pkg/keylock"

	"go.uber.org/zap"
)

var (
	ErrInvalidDelegation   = errors.New("invalid delegation")
	ErrDuplicateDelegation = errors.New("an active delegation already exists for this request type")
	ErrDelegationInactive  = errors.New("delegation is not active")
	ErrNotApprover         = errors.New("not an approver of this delegation")
	ErrNotDelegator        = errors.New("only the delegator or an admin can revoke a delegation")
)

const auditModule = "delegations"

type CreateInput struct {
	DelegatorID  string               `json:"delegator_id"`
	DelegateID   string               `json:"delegate_id"`
	RequestType  workflow.RequestType `json:"request_type"`
	RequestID    string               `json:"request_id,omitempty"`
	StartDate    time.Time            `json:"start_date"`
	EndDate      time.Time            `json:"end_date"`
	Reason       string               `json:"reason"`
	ApprovalType ApprovalType         `json:"approval_type,omitempty"`
}

type DelegationService interface {
	CreateDelegation(ctx context.Context, in CreateInput) (*Delegation, error)
	ApproveDelegation(ctx context.Context, id, approverID string) (*Delegation, error)
	RejectDelegation(ctx context.Context, id, approverID, reason string) (*Delegation, error)
	RevokeDelegation(ctx context.Context, id, actorID string, isAdmin bool) (*Delegation, error)
	GetDelegation(ctx context.Context, id string) (*Delegation, error)
	ListOutgoing(ctx context.Context, delegatorID string) ([]Delegation, error)
	ListIncoming(ctx context.Context, delegateID string) ([]Delegation, error)
	ListAwaitingApproval(ctx context.Context, approverID string) ([]Delegation, error)
	// FindActiveDelegation returns the delegation through which delegatorID's
	// authority passes for the request at at, or nil. A delegation scoped to
	// requestID wins over one scoped to the whole request type.
	FindActiveDelegation(ctx context.Context, delegatorID string, requestType workflow.RequestType, requestID string, at time.Time) (*Delegation, error)
}

type DelegationServiceImpl struct {
	repo         DelegationRepository
	directory    org.Directory
	auditService audit.AuditService
	publisher    notification.Publisher
	clock        clock.Clock
	settings     Settings
	locks        *keylock.Locker
	logger       *zap.Logger
}

func NewDelegationService(
	repo DelegationRepository,
	directory org.Directory,
	auditService audit.AuditService,
	publisher notification.Publisher,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) DelegationService {
	return &DelegationServiceImpl{
		repo:         repo,
		directory:    directory,
		auditService: auditService,
		publisher:    publisher,
		clock:        clk,
		settings:     settings,
		locks:        keylock.New(),
		logger:       logger.Named("delegation"),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDelegation, fmt.Sprintf(format, args...))
}

func (s *DelegationServiceImpl) CreateDelegation(ctx context.Context, in CreateInput) (*Delegation, error) {
	now := s.clock.Now()
	if err := s.validate(ctx, &in, now); err != nil {
		return nil, err
	}
	if in.ApprovalType == "" {
		in.ApprovalType = s.settings.DefaultApprovalType
	}
	if !in.ApprovalType.Valid() {
		return nil, invalid("unknown approval type %q", in.ApprovalType)
	}

	unlock := s.locks.Lock(in.DelegatorID)
	defer unlock()

	d := &Delegation{
		ID:           idgen.New(),
		DelegatorID:  in.DelegatorID,
		DelegateID:   in.DelegateID,
		RequestType:  in.RequestType,
		RequestID:    in.RequestID,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		Reason:       in.Reason,
		ApprovalType: in.ApprovalType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.checkDuplicate(ctx, d, now); err != nil {
		return nil, err
	}

	if d.ApprovalType == ApprovalDirect {
		s.grant(d, d.DelegatorID, now)
	} else {
		approvers, err := s.grantApprovers(ctx, d.DelegatorID, d.ApprovalType)
		if err != nil {
			return nil, err
		}
		d.Approvers = approvers
		d.Status = StatusPending
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("Delegation created",
		zap.String("delegation_id", d.ID),
		zap.String("delegator_id", d.DelegatorID),
		zap.String("delegate_id", d.DelegateID),
		zap.String("request_type", string(d.RequestType)),
		zap.String("status", string(d.Status)))
	_ = s.auditService.LogAction(ctx, d.DelegatorID, common_models.AuditActionDelegation, auditModule, d.ID, map[string]common_models.Change{
		"status": {New: d.Status},
	})
	s.announce(ctx, d)
	return d, nil
}

func (s *DelegationServiceImpl) validate(ctx context.Context, in *CreateInput, now time.Time) error {
	if in.DelegatorID == "" || in.DelegateID == "" {
		return invalid("delegator_id and delegate_id are required")
	}
	if in.DelegatorID == in.DelegateID {
		return invalid("cannot delegate to yourself")
	}
	if !in.RequestType.Valid() {
		return invalid("unknown request type %q", in.RequestType)
	}
	if in.StartDate.IsZero() {
		in.StartDate = now
	}
	if !in.EndDate.After(in.StartDate) {
		return invalid("end_date must be after start_date")
	}
	if !in.EndDate.After(now) {
		return invalid("end_date is in the past")
	}
	if _, err := s.directory.GetUser(ctx, in.DelegatorID); err != nil {
		return invalid("delegator %s: %v", in.DelegatorID, err)
	}
	delegate, err := s.directory.GetUser(ctx, in.DelegateID)
	if err != nil {
		return invalid("delegate %s: %v", in.DelegateID, err)
	}
	if !delegate.IsActive() {
		return invalid("delegate %s is not active", in.DelegateID)
	}
	return nil
}

// checkDuplicate runs under the delegator lock.
func (s *DelegationServiceImpl) checkDuplicate(ctx context.Context, d *Delegation, now time.Time) error {
	if s.settings.AllowMultipleDelegations {
		return nil
	}
	open, err := s.repo.FindOpen(ctx, d.DelegatorID, d.RequestType)
	if err != nil {
		return err
	}
	for i := range open {
		other := &open[i]
		if other.ID == d.ID {
			continue
		}
		if err := s.refresh(ctx, other, now); err != nil {
			return err
		}
		if !other.Granted() || other.RequestID != d.RequestID {
			continue
		}
		if other.overlaps(d) {
			return fmt.Errorf("%w: %s", ErrDuplicateDelegation, other.ID)
		}
	}
	return nil
}

func (s *DelegationServiceImpl) grant(d *Delegation, approverID string, now time.Time) {
	d.ApprovedBy = approverID
	d.ApprovedAt = &now
	d.UpdatedAt = now
	if now.Before(d.StartDate) {
		d.Status = StatusApproved
	} else {
		d.Status = StatusActive
	}
}

func (s *DelegationServiceImpl) announce(ctx context.Context, d *Delegation) {
	if d.Status != StatusActive {
		return
	}
	s.publisher.Publish(ctx, notification.Event{
		ID:           idgen.New(),
		Type:         notification.EventDelegationActivated,
		DelegationID: d.ID,
		RequestID:    d.RequestID,
		RequestType:  string(d.RequestType),
		ActorID:      d.ApprovedBy,
		Recipients:   []string{d.DelegatorID, d.DelegateID},
		Status:       string(d.Status),
		Timestamp:    s.clock.Now(),
	})
}

// grantApprovers lists who may approve a gated delegation. Leader lookups
// fall back to admins when the delegator has no leader above them.
func (s *DelegationServiceImpl) grantApprovers(ctx context.Context, delegatorID string, t ApprovalType) ([]string, error) {
	var approvers []string
	if t == ApprovalUpperLeader || t == ApprovalTopLeader {
		leader, err := s.leaderFor(ctx, delegatorID, t == ApprovalTopLeader)
		if err != nil {
			return nil, err
		}
		if leader != "" {
			approvers = []string{leader}
		}
	}
	if len(approvers) == 0 {
		admins, err := org.ActiveAdmins(ctx, s.directory)
		if err != nil {
			return nil, err
		}
		for _, id := range admins {
			if id != delegatorID {
				approvers = append(approvers, id)
			}
		}
	}
	if len(approvers) == 0 {
		return nil, invalid("no approver available for %s delegation", t)
	}
	return approvers, nil
}

func (s *DelegationServiceImpl) leaderFor(ctx context.Context, delegatorID string, top bool) (string, error) {
	user, err := s.directory.GetUser(ctx, delegatorID)
	if err != nil {
		return "", err
	}
	if user.PrimaryGroup() == "" {
		return "", nil
	}
	chain, err := org.GroupChain(ctx, s.directory, user.PrimaryGroup())
	if err != nil {
		return "", err
	}
	if top {
		chain = chain[len(chain)-1:]
	}
	for _, g := range chain {
		if g.LeaderID == "" || g.LeaderID == delegatorID {
			continue
		}
		leader, err := s.directory.GetUser(ctx, g.LeaderID)
		if err == nil && leader.IsActive() {
			return leader.ID, nil
		}
	}
	return "", nil
}

// lockAndLoad takes the delegator lock for id and reloads the record under it.
func (s *DelegationServiceImpl) lockAndLoad(ctx context.Context, id string) (*Delegation, func(), error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.locks.Lock(d.DelegatorID)
	d, err = s.repo.FindByID(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return d, unlock, nil
}

func (s *DelegationServiceImpl) ApproveDelegation(ctx context.Context, id, approverID string) (*Delegation, error) {
	d, unlock, err := s.lockAndLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	if err := s.refresh(ctx, d, now); err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return nil, fmt.Errorf("%w: delegation is %s", ErrDelegationInactive, d.Status)
	}
	if !slices.Contains(d.Approvers, approverID) {
		return nil, ErrNotApprover
	}
	if err := s.checkDuplicate(ctx, d, now); err != nil {
		return nil, err
	}

	s.grant(d, approverID, now)
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("Delegation approved",
		zap.String("delegation_id", d.ID),
		zap.String("approver_id", approverID))
	_ = s.auditService.LogAction(ctx, approverID, common_models.AuditActionDelegation, auditModule, d.ID, map[string]common_models.Change{
		"status": {Old: StatusPending, New: d.Status},
	})
	s.announce(ctx, d)
	return d, nil
}

func (s *DelegationServiceImpl) RejectDelegation(ctx context.Context, id, approverID, reason string) (*Delegation, error) {
	d, unlock, err := s.lockAndLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	if err := s.refresh(ctx, d, now); err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return nil, fmt.Errorf("%w: delegation is %s", ErrDelegationInactive, d.Status)
	}
	if !slices.Contains(d.Approvers, approverID) {
		return nil, ErrNotApprover
	}

	d.Status = StatusRejected
	d.RejectionReason = reason
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	_ = s.auditService.LogAction(ctx, approverID, common_models.AuditActionDelegation, auditModule, d.ID, map[string]common_models.Change{
		"status": {Old: StatusPending, New: StatusRejected},
	})
	return d, nil
}

func (s *DelegationServiceImpl) RevokeDelegation(ctx context.Context, id, actorID string, isAdmin bool) (*Delegation, error) {
	d, unlock, err := s.lockAndLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if d.DelegatorID != actorID && !isAdmin {
		return nil, ErrNotDelegator
	}
	now := s.clock.Now()
	if err := s.refresh(ctx, d, now); err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, fmt.Errorf("%w: delegation is %s", ErrDelegationInactive, d.Status)
	}

	old := d.Status
	d.Status = StatusRevoked
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("Delegation revoked",
		zap.String("delegation_id", d.ID),
		zap.String("actor_id", actorID))
	_ = s.auditService.LogAction(ctx, actorID, common_models.AuditActionDelegation, auditModule, d.ID, map[string]common_models.Change{
		"status": {Old: old, New: StatusRevoked},
	})
	return d, nil
}

func (s *DelegationServiceImpl) GetDelegation(ctx context.Context, id string) (*Delegation, error) {
	d, unlock, err := s.lockAndLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := s.refresh(ctx, d, s.clock.Now()); err != nil {
		return nil, err
	}
	return d, nil
}

// refreshAll brings listed records up to date, each under its delegator lock.
func (s *DelegationServiceImpl) refreshAll(ctx context.Context, list []Delegation) ([]Delegation, error) {
	for i := range list {
		d, err := s.GetDelegation(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i] = *d
	}
	return list, nil
}

func (s *DelegationServiceImpl) ListOutgoing(ctx context.Context, delegatorID string) ([]Delegation, error) {
	list, err := s.repo.ListByDelegator(ctx, delegatorID)
	if err != nil {
		return nil, err
	}
	return s.refreshAll(ctx, list)
}

func (s *DelegationServiceImpl) ListIncoming(ctx context.Context, delegateID string) ([]Delegation, error) {
	list, err := s.repo.ListByDelegate(ctx, delegateID)
	if err != nil {
		return nil, err
	}
	return s.refreshAll(ctx, list)
}

func (s *DelegationServiceImpl) ListAwaitingApproval(ctx context.Context, approverID string) ([]Delegation, error) {
	list, err := s.repo.ListPendingFor(ctx, approverID)
	if err != nil {
		return nil, err
	}
	list, err = s.refreshAll(ctx, list)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, d := range list {
		if d.Status == StatusPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *DelegationServiceImpl) FindActiveDelegation(ctx context.Context, delegatorID string, requestType workflow.RequestType, requestID string, at time.Time) (*Delegation, error) {
	unlock := s.locks.Lock(delegatorID)
	defer unlock()

	open, err := s.repo.FindOpen(ctx, delegatorID, requestType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var best *Delegation
	for i := range open {
		d := &open[i]
		if err := s.refresh(ctx, d, now); err != nil {
			return nil, err
		}
		if !d.Covers(requestType, requestID) || !d.UsableAt(at) {
			continue
		}
		// Candidates arrive newest start first.
		if best == nil || (best.RequestID == "" && d.RequestID != "") {
			best = d
		}
	}
	return best, nil
}

// refresh applies time-driven transitions to d and persists them. The
// caller must hold d's delegator lock, so each transition is recorded once.
func (s *DelegationServiceImpl) refresh(ctx context.Context, d *Delegation, now time.Time) error {
	old := d.Status
	switch {
	case d.Open() && now.After(d.EndDate):
		d.Status = StatusExpired
	case d.Status == StatusApproved && !now.Before(d.StartDate):
		d.Status = StatusActive
	default:
		return nil
	}
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return err
	}

	s.logger.Info("Delegation status changed",
		zap.String("delegation_id", d.ID),
		zap.String("from", string(old)),
		zap.String("to", string(d.Status)))
	_ = s.auditService.LogAction(ctx, common_models.SystemActor, common_models.AuditActionDelegation, auditModule, d.ID, map[string]common_models.Change{
		"status": {Old: old, New: d.Status},
	})
	s.announce(ctx, d)
	return nil
}
