// Package notificationtest provides an in-memory event publisher for tests.
package notificationtest

import (
	"context"
	"sync"

	"go-approval/internal/features/notification"
)

// Recorder keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *Recorder) Publish(_ context.Context, event notification.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) Events() []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t notification.EventType) []notification.Event {
	var out []notification.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
