package workflow

import (
	"slices"
	"time"

	"go-approval/pkg/condition"
)

// RequestType is the closed set of request kinds a workflow can govern.
type RequestType string

const (
	RequestTypeLeave          RequestType = "LEAVE_REQUEST"
	RequestTypeOvertime       RequestType = "OVERTIME_REQUEST"
	RequestTypeScheduleChange RequestType = "SCHEDULE_CHANGE"
	RequestTypeShiftSwap      RequestType = "SHIFT_SWAP"
	RequestTypeExpense        RequestType = "EXPENSE_REQUEST"
	RequestTypePurchase       RequestType = "PURCHASE_REQUEST"
	RequestTypeDocument       RequestType = "DOCUMENT_APPROVAL"
	RequestTypeTraining       RequestType = "TRAINING_REQUEST"
	RequestTypeGeneral        RequestType = "GENERAL_REQUEST"
)

var requestTypes = []RequestType{
	RequestTypeLeave, RequestTypeOvertime, RequestTypeScheduleChange, RequestTypeShiftSwap,
	RequestTypeExpense, RequestTypePurchase, RequestTypeDocument, RequestTypeTraining, RequestTypeGeneral,
}

func (t RequestType) Valid() bool {
	return slices.Contains(requestTypes, t)
}

// ApproverKind discriminates ApproverSpec.
type ApproverKind string

const (
	ApproverSpecific         ApproverKind = "SPECIFIC"
	ApproverRole             ApproverKind = "ROLE"
	ApproverGroup            ApproverKind = "GROUP"
	ApproverManager          ApproverKind = "MANAGER"
	ApproverUpperManager     ApproverKind = "UPPER_MANAGER"
	ApproverGroupLeader      ApproverKind = "GROUP_LEADER"
	ApproverUpperGroupLeader ApproverKind = "UPPER_GROUP_LEADER"
	ApproverTopGroupLeader   ApproverKind = "TOP_GROUP_LEADER"
	ApproverAdmin            ApproverKind = "ADMIN"
	ApproverAnyLeader        ApproverKind = "ANY_LEADER"
	ApproverAnyManager       ApproverKind = "ANY_MANAGER"
)

// ApproverSpec names who approves a step. Only the payload matching Kind is
// read: UserIDs for SPECIFIC, Roles for ROLE, GroupIDs for GROUP.
type ApproverSpec struct {
	Kind     ApproverKind `bson:"kind" json:"kind"`
	UserIDs  []string     `bson:"user_ids,omitempty" json:"user_ids,omitempty"`
	Roles    []string     `bson:"roles,omitempty" json:"roles,omitempty"`
	GroupIDs []string     `bson:"group_ids,omitempty" json:"group_ids,omitempty"`
}

// Action is a decision an actor can take on a step.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionDelegate    Action = "delegate"
	ActionRequestInfo Action = "request_info"
	ActionEscalate    Action = "escalate"
)

var actions = []Action{ActionApprove, ActionReject, ActionDelegate, ActionRequestInfo, ActionEscalate}

func (a Action) Valid() bool {
	return slices.Contains(actions, a)
}

// ApprovalStep is one stage of a workflow.
type ApprovalStep struct {
	ID                    string                `bson:"id" json:"id"`
	Name                  string                `bson:"name" json:"name"`
	Approver              ApproverSpec          `bson:"approver" json:"approver"`
	Required              bool                  `bson:"required" json:"required"`
	Unanimous             bool                  `bson:"unanimous" json:"unanimous"`
	Delegable             bool                  `bson:"delegable" json:"delegable"`
	TimeLimitHours        int                   `bson:"time_limit_hours,omitempty" json:"time_limit_hours,omitempty"`
	AutoApproveAfterHours int                   `bson:"auto_approve_after_hours,omitempty" json:"auto_approve_after_hours,omitempty"`
	Conditions            []condition.Condition `bson:"conditions,omitempty" json:"conditions,omitempty"`
	AllowedActions        []Action              `bson:"allowed_actions,omitempty" json:"allowed_actions,omitempty"`
}

// Allows reports whether action may be taken on the step. An empty
// AllowedActions list permits approve, reject and request_info.
func (s *ApprovalStep) Allows(action Action) bool {
	if len(s.AllowedActions) == 0 {
		return action == ActionApprove || action == ActionReject || action == ActionRequestInfo
	}
	return slices.Contains(s.AllowedActions, action)
}

func (s *ApprovalStep) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitHours) * time.Hour
}

func (s *ApprovalStep) AutoApproveAfter() time.Duration {
	return time.Duration(s.AutoApproveAfterHours) * time.Hour
}

type EscalationTrigger string

const (
	// TriggerTimeLimit fires when the request's due date elapses.
	TriggerTimeLimit EscalationTrigger = "time_limit"
	// TriggerStepTimeout fires when a step's time limit elapses.
	TriggerStepTimeout EscalationTrigger = "step_timeout"
	// TriggerManual fires on an explicit escalate action.
	TriggerManual EscalationTrigger = "manual"
)

type EscalationType string

const (
	EscalateNextLevel    EscalationType = "next_level"
	EscalateSpecificUser EscalationType = "specific_user"
	EscalateAdmin        EscalationType = "admin"
	EscalateGroupLeader  EscalationType = "group_leader"
)

// EscalationRule says where a stalled step goes. StepIndex narrows the rule
// to one step; Conditions are checked against the request payload.
type EscalationRule struct {
	ID              string                `bson:"id" json:"id"`
	Trigger         EscalationTrigger     `bson:"trigger" json:"trigger"`
	Type            EscalationType        `bson:"type" json:"type"`
	TargetUserID    string                `bson:"target_user_id,omitempty" json:"target_user_id,omitempty"`
	StepIndex       *int                  `bson:"step_index,omitempty" json:"step_index,omitempty"`
	Conditions      []condition.Condition `bson:"conditions,omitempty" json:"conditions,omitempty"`
	NotifyRequester bool                  `bson:"notify_requester" json:"notify_requester"`
	NotifyApprovers bool                  `bson:"notify_approvers" json:"notify_approvers"`
	NotifyAdmins    bool                  `bson:"notify_admins" json:"notify_admins"`
}

// Applies reports whether the rule covers trigger at stepIndex for data.
func (r *EscalationRule) Applies(trigger EscalationTrigger, stepIndex int, data map[string]interface{}) bool {
	if r.Trigger != trigger {
		return false
	}
	if r.StepIndex != nil && *r.StepIndex != stepIndex {
		return false
	}
	return condition.Evaluate(r.Conditions, data)
}

// ApprovalWorkflow is an immutable, versioned definition. Updates create a
// new version; requests keep the snapshot they were submitted with.
type ApprovalWorkflow struct {
	ID                    string                `bson:"workflow_id" json:"id"`
	Version               int                   `bson:"version" json:"version"`
	Name                  string                `bson:"name" json:"name"`
	Description           string                `bson:"description,omitempty" json:"description,omitempty"`
	RequestType           RequestType           `bson:"request_type" json:"request_type"`
	Active                bool                  `bson:"active" json:"active"`
	Priority              int                   `bson:"priority" json:"priority"` // Selection order among active workflows of a type (0 = highest)
	Steps                 []ApprovalStep        `bson:"steps" json:"steps"`
	CanSelfApprove        bool                  `bson:"can_self_approve" json:"can_self_approve"`
	AllowDelegation       bool                  `bson:"allow_delegation" json:"allow_delegation"`
	AutoApproveConditions []condition.Condition `bson:"auto_approve_conditions,omitempty" json:"auto_approve_conditions,omitempty"`
	EscalationRules       []EscalationRule      `bson:"escalation_rules,omitempty" json:"escalation_rules,omitempty"`
	EscalationLevels      int                   `bson:"escalation_levels" json:"escalation_levels"`
	CreatedBy             string                `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt             time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `bson:"updated_at" json:"updated_at"`
}

// Rule returns the first escalation rule applying to trigger at stepIndex.
func (w *ApprovalWorkflow) Rule(trigger EscalationTrigger, stepIndex int, data map[string]interface{}) (*EscalationRule, bool) {
	for i := range w.EscalationRules {
		if w.EscalationRules[i].Applies(trigger, stepIndex, data) {
			return &w.EscalationRules[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the workflow.
func (w *ApprovalWorkflow) Clone() *ApprovalWorkflow {
	if w == nil {
		return nil
	}
	out := *w
	out.AutoApproveConditions = condition.Clone(w.AutoApproveConditions)

	if w.Steps != nil {
		out.Steps = make([]ApprovalStep, len(w.Steps))
		for i, s := range w.Steps {
			s.Approver.UserIDs = slices.Clone(s.Approver.UserIDs)
			s.Approver.Roles = slices.Clone(s.Approver.Roles)
			s.Approver.GroupIDs = slices.Clone(s.Approver.GroupIDs)
			s.Conditions = condition.Clone(s.Conditions)
			s.AllowedActions = slices.Clone(s.AllowedActions)
			out.Steps[i] = s
		}
	}

	if w.EscalationRules != nil {
		out.EscalationRules = make([]EscalationRule, len(w.EscalationRules))
		for i, r := range w.EscalationRules {
			if r.StepIndex != nil {
				idx := *r.StepIndex
				r.StepIndex = &idx
			}
			r.Conditions = condition.Clone(r.Conditions)
			out.EscalationRules[i] = r
		}
	}
	return &out
}
