package aggregator

import (
	"sync"
)

// ChangeKind identifies what changed in the aggregator.
type ChangeKind string

const (
	ChangeStatus         ChangeKind = "status"
	ChangeMessageAdded   ChangeKind = "message_added"
	ChangeMessageUpdated ChangeKind = "message_updated"
	ChangeMessageRemoved ChangeKind = "message_removed"
)

// Change is a notification that the conversation or status changed. It
// carries no content; subscribers take a Snapshot to see the new state.
type Change struct {
	Kind      ChangeKind
	Status    Status
	Index     int
	MessageID string
}

// Subscription receives changes from a Bus.
type Subscription struct {
	C  <-chan Change
	ch chan Change
}

// Bus fans out changes to all active subscribers. It is safe for concurrent
// use.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates a Bus ready for use.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Change, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends a change to all subscribers. A subscriber whose buffer is
// full misses the change; the next snapshot it takes still shows the latest
// state, so ingestion is never stalled by a slow renderer.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- c:
		default:
		}
	}
}
