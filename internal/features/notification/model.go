package notification

import (
	"time"
)

// Notification is one inbox entry derived from an engine event.
type Notification struct {
	ID        string     `bson:"_id" json:"id"`
	UserID    string     `bson:"user_id" json:"user_id"`
	EventType EventType  `bson:"event_type" json:"event_type"`
	Title     string     `bson:"title" json:"title"`
	Message   string     `bson:"message" json:"message"`
	Link      string     `bson:"link,omitempty" json:"link,omitempty"`
	IsRead    bool       `bson:"is_read" json:"is_read"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ReadAt    *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}
