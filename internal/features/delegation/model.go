package delegation

import (
	"time"

	"go-approval/internal/features/workflow"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusActive   Status = "ACTIVE"
	StatusRejected Status = "REJECTED"
	StatusRevoked  Status = "REVOKED"
	StatusExpired  Status = "EXPIRED"
)

// ApprovalType says who must approve a delegation grant before it is usable.
type ApprovalType string

const (
	ApprovalDirect      ApprovalType = "direct"
	ApprovalUpperLeader ApprovalType = "upper_leader"
	ApprovalTopLeader   ApprovalType = "top_leader"
	ApprovalAdmin       ApprovalType = "admin"
)

func (t ApprovalType) Valid() bool {
	switch t {
	case ApprovalDirect, ApprovalUpperLeader, ApprovalTopLeader, ApprovalAdmin:
		return true
	}
	return false
}

// Delegation lets DelegateID act for DelegatorID on requests of RequestType
// within [StartDate, EndDate]. A non-empty RequestID narrows it to one
// request. Expired and revoked records are kept.
type Delegation struct {
	ID              string               `bson:"_id" json:"id"`
	DelegatorID     string               `bson:"delegator_id" json:"delegator_id"`
	DelegateID      string               `bson:"delegate_id" json:"delegate_id"`
	RequestType     workflow.RequestType `bson:"request_type" json:"request_type"`
	RequestID       string               `bson:"request_id,omitempty" json:"request_id,omitempty"`
	StartDate       time.Time            `bson:"start_date" json:"start_date"`
	EndDate         time.Time            `bson:"end_date" json:"end_date"`
	Reason          string               `bson:"reason,omitempty" json:"reason,omitempty"`
	Status          Status               `bson:"status" json:"status"`
	ApprovalType    ApprovalType         `bson:"approval_type" json:"approval_type"`
	Approvers       []string             `bson:"approvers,omitempty" json:"approvers,omitempty"`
	ApprovedBy      string               `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time           `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectionReason string               `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updated_at"`
}

// Granted reports whether the grant itself has been approved and not
// withdrawn.
func (d *Delegation) Granted() bool {
	return d.Status == StatusApproved || d.Status == StatusActive
}

// UsableAt reports whether the delegation may be used at at.
func (d *Delegation) UsableAt(at time.Time) bool {
	return d.Granted() && !at.Before(d.StartDate) && !at.After(d.EndDate)
}

// Covers reports whether the delegation's scope includes the request.
func (d *Delegation) Covers(requestType workflow.RequestType, requestID string) bool {
	return d.RequestType == requestType && (d.RequestID == "" || d.RequestID == requestID)
}

// Open reports whether the record may still become or stay usable.
func (d *Delegation) Open() bool {
	return d.Status == StatusPending || d.Granted()
}

func (d *Delegation) overlaps(o *Delegation) bool {
	return !d.EndDate.Before(o.StartDate) && !o.EndDate.Before(d.StartDate)
}
