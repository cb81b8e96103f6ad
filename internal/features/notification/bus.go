package notification

import (
	"context"
	"sync"
	"sync/atomic"

	"go-approval/internal/config"

	"go.uber.org/zap"
)

// Bus fans events out to subscribers. Each subscriber owns a buffered
// channel; a full buffer drops the event for that subscriber only.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Int64
	logger  *zap.Logger
}

type Subscription struct {
	id     uint64
	ch     chan Event
	filter func(Event) bool
	bus    *Bus
	once   sync.Once
}

func NewBus(cfg *config.Config, logger *zap.Logger) *Bus {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger.Named("events"),
	}
}

// Subscribe registers a subscriber. A nil filter receives every event.
func (b *Bus) Subscribe(filter func(Event) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		ch:     make(chan Event, b.buffer),
		filter: filter,
		bus:    b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) Publish(_ context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("Event dropped for slow subscriber",
				zap.String("type", string(event.Type)),
				zap.String("request_id", event.RequestID),
				zap.Uint64("subscriber", sub.id))
		}
	}
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Events is closed when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

var _ Publisher = (*Bus)(nil)
