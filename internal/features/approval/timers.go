package approval

import "time"

type timerKind int

const (
	timerStepTimeout timerKind = iota + 1
	timerAutoApprove
	timerDueDate
)

func (k timerKind) String() string {
	switch k {
	case timerStepTimeout:
		return "step_timeout"
	case timerAutoApprove:
		return "auto_approve"
	case timerDueDate:
		return "due_date"
	}
	return "none"
}

type timedAction struct {
	Kind timerKind
	At   time.Time
}

// nextTimedAction returns the earliest timer pending on req. Step timers
// do not run while the request is parked; the due date always does until
// a rule has claimed it. On a tie the step timer wins.
func nextTimedAction(req *ApprovalRequest) (timedAction, bool) {
	if req.Status.Terminal() {
		return timedAction{}, false
	}

	var next timedAction
	found := false
	consider := func(kind timerKind, at time.Time) {
		if !found || at.Before(next.At) {
			next = timedAction{Kind: kind, At: at}
			found = true
		}
	}

	if step := req.CurrentStepDef(); step != nil && req.Step != nil && !req.Parked() {
		if d := step.TimeLimit(); d > 0 {
			consider(timerStepTimeout, req.Step.ClockStart.Add(d))
		} else if d := step.AutoApproveAfter(); d > 0 {
			consider(timerAutoApprove, req.Step.ClockStart.Add(d))
		}
	}
	if req.DueDate != nil && !req.DueClaimed {
		consider(timerDueDate, *req.DueDate)
	}
	return next, found
}

// syncDeadline stores the next timer instant for the deadline index.
func syncDeadline(req *ApprovalRequest) {
	if action, ok := nextTimedAction(req); ok {
		at := action.At
		req.NextDeadline = &at
		return
	}
	req.NextDeadline = nil
}
