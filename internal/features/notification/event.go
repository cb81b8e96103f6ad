package notification

import (
	"context"
	"slices"
	"time"
)

type EventType string

const (
	EventRequestSubmitted     EventType = "request_submitted"
	EventRequestApproved      EventType = "request_approved"
	EventRequestRejected      EventType = "request_rejected"
	EventRequestEscalated     EventType = "request_escalated"
	EventDelegationActivated  EventType = "delegation_activated"
	EventRequestCancelled     EventType = "request_cancelled"
	EventRequestExpired       EventType = "request_expired"
	EventRequestInfoRequested EventType = "request_info_requested"
	EventResolutionFailed     EventType = "resolution_failed"
)

// Event signals that a notification is due. Delivery belongs to
// subscribers.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	RequestID    string    `json:"request_id,omitempty"`
	RequestType  string    `json:"request_type,omitempty"`
	DelegationID string    `json:"delegation_id,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	Recipients   []string  `json:"recipients,omitempty"`
	NotifyAdmins bool      `json:"notify_admins,omitempty"`
	Status       string    `json:"status,omitempty"`
	Step         int       `json:"step"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// For reports whether userID is among the recipients.
func (e Event) For(userID string) bool {
	return slices.Contains(e.Recipients, userID)
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
