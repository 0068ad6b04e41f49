package stream

import (
	"context"
	"sync"
	"time"

	"coursebase.org/internal/auth"
)

// Envelope wraps a domain event with delivery metadata.
type Envelope struct {
	Kind  string     `json:"kind"`
	At    time.Time  `json:"at"`
	Event auth.Event `json:"event"`
}

// Bus fan-outs domain events to all active subscribers (logging, cache
// invalidation, projections). It implements auth.Publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Envelope
	next int
	now  func() time.Time
}

// New initialises an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]chan Envelope),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Envelope {
	ch := make(chan Envelope, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (b *Bus) Publish(_ context.Context, evt auth.Event) {
	env := Envelope{Kind: evt.Kind(), At: b.now().UTC(), Event: evt}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Drop when subscriber is slow to avoid blocking mutations.
		}
	}
}

var _ auth.Publisher = (*Bus)(nil)
