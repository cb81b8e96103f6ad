package approval

import (
	"slices"
	"time"

	"go-approval/internal/features/resolver"
	"go-approval/internal/features/workflow"
	"go-approval/pkg/condition"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusInReview  RequestStatus = "IN_REVIEW"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
	StatusExpired   RequestStatus = "EXPIRED"
)

func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reasons recorded on EXPIRED requests.
const (
	ReasonDueDateElapsed      = "due-date-elapsed"
	ReasonEscalationExhausted = "escalation-exhausted"
)

type HistoryAction string

const (
	HistorySubmitted        HistoryAction = "submitted"
	HistoryApproved         HistoryAction = "approved"
	HistoryRejected         HistoryAction = "rejected"
	HistoryDelegated        HistoryAction = "delegated"
	HistoryInfoRequested    HistoryAction = "request_info"
	HistoryEscalated        HistoryAction = "escalated"
	HistoryAutoApproved     HistoryAction = "auto_approved"
	HistorySelfApproved     HistoryAction = "self_approved"
	HistorySkipped          HistoryAction = "skipped"
	HistoryCancelled        HistoryAction = "cancelled"
	HistoryExpired          HistoryAction = "expired"
	HistoryResolutionFailed HistoryAction = "resolution_failed"
	HistoryReresolved       HistoryAction = "reresolved"
)

// HistoryEntry is one transition of a request. OnBehalfOf lists the
// resolved approvers a delegate acted for.
type HistoryEntry struct {
	Step       int           `bson:"step" json:"step"`
	StepName   string        `bson:"step_name,omitempty" json:"step_name,omitempty"`
	ActorID    string        `bson:"actor_id" json:"actor_id"`
	OnBehalfOf []string      `bson:"on_behalf_of,omitempty" json:"on_behalf_of,omitempty"`
	Action     HistoryAction `bson:"action" json:"action"`
	Comment    string        `bson:"comment,omitempty" json:"comment,omitempty"`
	Timestamp  time.Time     `bson:"timestamp" json:"timestamp"`
}

// StepState tracks the current step. A nil Resolution means the request is
// parked on a resolution failure.
type StepState struct {
	Index      int                  `bson:"index" json:"index"`
	Name       string               `bson:"name" json:"name"`
	EnteredAt  time.Time            `bson:"entered_at" json:"entered_at"`
	ClockStart time.Time            `bson:"clock_start" json:"clock_start"` // restarted by escalation
	Resolution *resolver.Resolution `bson:"resolution,omitempty" json:"resolution,omitempty"`
	// Candidates holds original and substitute actors for lookups.
	Candidates []string `bson:"candidates" json:"-"`
	// Approvals holds the original actors whose approval is recorded.
	Approvals []string `bson:"approvals,omitempty" json:"approvals,omitempty"`
}

func (s *StepState) setResolution(res *resolver.Resolution) {
	s.Resolution = res
	s.Candidates = nil
	if res == nil {
		return
	}
	s.Candidates = append(slices.Clone(res.Original), res.Actors...)
	slices.Sort(s.Candidates)
	s.Candidates = slices.Compact(s.Candidates)
}

type ApprovalRequest struct {
	ID             string                 `bson:"_id" json:"id"`
	Type           workflow.RequestType   `bson:"type" json:"type"`
	RequesterID    string                 `bson:"requester_id" json:"requester_id"`
	RequesterRole  string                 `bson:"requester_role,omitempty" json:"requester_role,omitempty"`
	RequesterGroup string                 `bson:"requester_group,omitempty" json:"requester_group,omitempty"`
	Priority       string                 `bson:"priority,omitempty" json:"priority,omitempty"`
	RequestData    map[string]interface{} `bson:"request_data" json:"request_data"`
	Status         RequestStatus          `bson:"status" json:"status"`
	// Delegated marks that the current step's resolution passed through a
	// delegate.
	Delegated   bool `bson:"delegated" json:"delegated"`
	CurrentStep int  `bson:"current_step" json:"current_step"`
	TotalSteps  int  `bson:"total_steps" json:"total_steps"`
	// Workflow is the definition snapshot taken at submission.
	Workflow        *workflow.ApprovalWorkflow `bson:"workflow" json:"workflow"`
	Step            *StepState                 `bson:"step,omitempty" json:"step,omitempty"`
	History         []HistoryEntry             `bson:"history" json:"history"`
	DelegationIDs   []string                   `bson:"delegation_ids,omitempty" json:"delegation_ids,omitempty"`
	EscalationCount int                        `bson:"escalation_count" json:"escalation_count"`
	DueDate         *time.Time                 `bson:"due_date,omitempty" json:"due_date,omitempty"`
	// DueClaimed is set once an escalation rule has claimed the elapsed due
	// date.
	DueClaimed   bool       `bson:"due_claimed,omitempty" json:"due_claimed,omitempty"`
	NextDeadline *time.Time `bson:"next_deadline,omitempty" json:"next_deadline,omitempty"`
	RejectedBy   string     `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	Reason       string     `bson:"reason,omitempty" json:"reason,omitempty"`
	// ResolutionError is shown to admins only.
	ResolutionError string     `bson:"resolution_error,omitempty" json:"-"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
	SubmittedAt     time.Time  `bson:"submitted_at" json:"submitted_at"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Parked reports whether the request waits on an administrative fix.
func (r *ApprovalRequest) Parked() bool {
	return !r.Status.Terminal() && r.ResolutionError != ""
}

// CurrentStepDef returns the snapshot definition of the current step.
func (r *ApprovalRequest) CurrentStepDef() *workflow.ApprovalStep {
	if r.Workflow == nil || r.CurrentStep < 0 || r.CurrentStep >= len(r.Workflow.Steps) {
		return nil
	}
	return &r.Workflow.Steps[r.CurrentStep]
}

func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.RequestData = condition.CloneMap(r.RequestData)
	out.Workflow = r.Workflow.Clone()
	if r.Step != nil {
		step := *r.Step
		step.Resolution = r.Step.Resolution.Clone()
		step.Candidates = slices.Clone(r.Step.Candidates)
		step.Approvals = slices.Clone(r.Step.Approvals)
		out.Step = &step
	}
	if r.History != nil {
		out.History = make([]HistoryEntry, len(r.History))
		for i, h := range r.History {
			h.OnBehalfOf = slices.Clone(h.OnBehalfOf)
			out.History[i] = h
		}
	}
	out.DelegationIDs = slices.Clone(r.DelegationIDs)
	out.DueDate = clonePtr(r.DueDate)
	out.NextDeadline = clonePtr(r.NextDeadline)
	out.CompletedAt = clonePtr(r.CompletedAt)
	return &out
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SubmitInput carries a new request. WorkflowID is optional; the active
// workflow for Type is used when it is empty.
type SubmitInput struct {
	Type           workflow.RequestType   `json:"type"`
	WorkflowID     string                 `json:"workflow_id,omitempty"`
	RequesterID    string                 `json:"requester_id"`
	RequesterRole  string                 `json:"requester_role,omitempty"`
	RequesterGroup string                 `json:"requester_group,omitempty"`
	Priority       string                 `json:"priority,omitempty"`
	RequestData    map[string]interface{} `json:"request_data"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
}

// DecisionInput is an action on the current step. DelegateTo is read for
// the delegate action only.
type DecisionInput struct {
	RequestID  string          `json:"-"`
	ActorID    string          `json:"-"`
	Action     workflow.Action `json:"action"`
	Comment    string          `json:"comment,omitempty"`
	DelegateTo string          `json:"delegate_to,omitempty"`
}
