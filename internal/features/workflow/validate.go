package workflow

import (
	"errors"
	"fmt"
	"strings"

	"go-approval/pkg/condition"
)

var (
	ErrInvalidWorkflow   = errors.New("invalid workflow")
	ErrConflictingTimers = errors.New("step sets both time_limit_hours and auto_approve_after_hours")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidWorkflow, fmt.Sprintf(format, args...))
}

// Validate checks a definition once, before it is stored. Evaluation code
// assumes every stored workflow passed it.
func (w *ApprovalWorkflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return invalid("name is required")
	}
	if !w.RequestType.Valid() {
		return invalid("unknown request type %q", w.RequestType)
	}
	if len(w.Steps) == 0 {
		return invalid("at least one step is required")
	}
	if w.EscalationLevels < 0 {
		return invalid("escalation_levels must not be negative")
	}
	if err := condition.Validate(w.AutoApproveConditions); err != nil {
		return invalid("auto_approve_conditions: %v", err)
	}

	for i := range w.Steps {
		if err := validateStep(i, &w.Steps[i]); err != nil {
			return err
		}
	}

	for i, r := range w.EscalationRules {
		switch r.Trigger {
		case TriggerTimeLimit, TriggerStepTimeout, TriggerManual:
		default:
			return invalid("escalation rule %d: unknown trigger %q", i, r.Trigger)
		}
		switch r.Type {
		case EscalateNextLevel, EscalateAdmin, EscalateGroupLeader:
		case EscalateSpecificUser:
			if r.TargetUserID == "" {
				return invalid("escalation rule %d: specific_user needs target_user_id", i)
			}
		default:
			return invalid("escalation rule %d: unknown type %q", i, r.Type)
		}
		if r.StepIndex != nil && (*r.StepIndex < 0 || *r.StepIndex >= len(w.Steps)) {
			return invalid("escalation rule %d: step_index %d out of range", i, *r.StepIndex)
		}
		if err := condition.Validate(r.Conditions); err != nil {
			return invalid("escalation rule %d: %v", i, err)
		}
	}
	return nil
}

func validateStep(i int, s *ApprovalStep) error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("step %d: name is required", i)
	}
	if s.TimeLimitHours < 0 || s.AutoApproveAfterHours < 0 {
		return invalid("step %d: timers must not be negative", i)
	}
	if s.TimeLimitHours > 0 && s.AutoApproveAfterHours > 0 {
		return fmt.Errorf("%w: step %d (%s): %w", ErrInvalidWorkflow, i, s.Name, ErrConflictingTimers)
	}
	if err := validateApprover(s.Approver); err != nil {
		return invalid("step %d: %v", i, err)
	}
	if err := condition.Validate(s.Conditions); err != nil {
		return invalid("step %d: %v", i, err)
	}
	for _, a := range s.AllowedActions {
		if !a.Valid() {
			return invalid("step %d: unknown action %q", i, a)
		}
	}
	return nil
}

func validateApprover(spec ApproverSpec) error {
	switch spec.Kind {
	case ApproverSpecific:
		if len(spec.UserIDs) == 0 {
			return errors.New("SPECIFIC approver needs user_ids")
		}
	case ApproverRole:
		if len(spec.Roles) == 0 {
			return errors.New("ROLE approver needs roles")
		}
	case ApproverGroup:
		if len(spec.GroupIDs) == 0 {
			return errors.New("GROUP approver needs group_ids")
		}
	case ApproverManager, ApproverUpperManager, ApproverGroupLeader, ApproverUpperGroupLeader,
		ApproverTopGroupLeader, ApproverAdmin, ApproverAnyLeader, ApproverAnyManager:
	default:
		return fmt.Errorf("unknown approver kind %q", spec.Kind)
	}
	return nil
}
