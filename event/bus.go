package event

import (
	"log/slog"
	"sync"
)

const defaultBufferSize = 64

// Subscription is one subscriber's channel-backed feed. Receive from C;
// call the bus's Unsubscribe when done. C is closed on Unsubscribe and on
// bus Close.
type Subscription struct {
	C chan Event

	id    uint64
	types map[Type]struct{}
}

func (s *Subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is an in-process publish/subscribe bus with bounded per-subscriber
// buffers. Publish never blocks: an event for a subscriber whose buffer is
// full is dropped for that subscriber only, and the drop is counted.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	bufferSize int
	dropped    uint64
	logger     *slog.Logger
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithBufferSize sets the per-subscriber channel buffer
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the bus logger
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates an empty event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: defaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. With no types given the subscriber
// receives every event; otherwise only the listed types. Returns nil if the
// bus is closed.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	sub := &Subscription{
		C:  make(chan Event, b.bufferSize),
		id: b.nextID,
	}
	b.nextID++
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.C)
}

// Publish delivers the event to every interested subscriber without
// blocking. Slow subscribers lose events rather than stalling publishers.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.C <- e:
		default:
			b.dropped++
			b.logger.Warn("event dropped, subscriber buffer full",
				"type", string(e.Type), "pipeline", e.Pipeline)
		}
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the bus down, closing every subscriber channel. Publish and
// Subscribe become no-ops afterward. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.C)
	}
}
