package models

import (
	"time"
)

type ContextKey string

const (
	TenantIDKey ContextKey = "tenant_id"
)

// SystemActor is recorded as the actor for engine-driven transitions.
const SystemActor = "system"

type AuditAction string

const (
	AuditActionSubmit     AuditAction = "SUBMIT"
	AuditActionApproval   AuditAction = "APPROVAL"
	AuditActionRejection  AuditAction = "REJECTION"
	AuditActionDelegation AuditAction = "DELEGATION"
	AuditActionEscalation AuditAction = "ESCALATION"
	AuditActionCancel     AuditAction = "CANCEL"
	AuditActionExpire     AuditAction = "EXPIRE"
	AuditActionWorkflow   AuditAction = "WORKFLOW"
	AuditActionResolution AuditAction = "RESOLUTION"
	AuditActionOrg        AuditAction = "ORG"
	AuditActionAuth       AuditAction = "AUTH"
)

type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type AuditLog struct {
	ID        string            `bson:"_id" json:"id"`
	TenantID  string            `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	Action    AuditAction       `bson:"action" json:"action"`
	Module    string            `bson:"module" json:"module"`       // approval_requests, delegations, workflows
	RecordID  string            `bson:"record_id" json:"record_id"` // The ID of the entity being modified
	ActorID   string            `bson:"actor_id" json:"actor_id"`
	Changes   map[string]Change `bson:"changes,omitempty" json:"changes,omitempty"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"`
}
