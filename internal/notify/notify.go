// Package notify provides a small pub/sub bus for runtime lifecycle
// notifications using watermill.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies a lifecycle notification.
type Type string

const (
	// ConfigReloaded fires when a watched configuration source changed
	// on disk and was re-read.
	ConfigReloaded Type = "config.reloaded"
	// WorkerReset fires when the execution scope was rebuilt and all
	// listener registrations were discarded.
	WorkerReset Type = "worker.reset"
)

// Notification is one published lifecycle occurrence.
type Notification struct {
	Type Type
	Data any
}

// Subscriber receives notifications.
type Subscriber func(n Notification)

type entry struct {
	id uint64
	fn Subscriber
}

// Bus fans lifecycle notifications out to subscribers synchronously.
// It keeps a watermill gochannel underneath so the transport can later
// be swapped for a distributed backend without touching callers.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	subs   map[Type][]entry
	nextID uint64
	closed bool
}

// NewBus creates a notification bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 16},
			watermill.NopLogger{},
		),
		subs: make(map[Type][]entry),
	}
}

// Subscribe registers fn for notifications of type t and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subs[t] = append(b.subs[t], entry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.subs[t] {
			if e.id == id {
				b.subs[t] = append(b.subs[t][:i], b.subs[t][i+1:]...)
				return
			}
		}
	}
}

// Publish delivers n to every subscriber of its type in the caller's
// goroutine. Subscribers must complete quickly and must not publish
// re-entrantly.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(b.subs[n.Type]))
	for _, e := range b.subs[n.Type] {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Close shuts the bus down; further subscriptions and publishes are
// dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = make(map[Type][]entry)
	b.mu.Unlock()

	return b.pubsub.Close()
}
