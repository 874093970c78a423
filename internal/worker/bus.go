package worker

import (
	"context"
	"sync"
)

// Bus is the per-scope listener registry. Listeners for one event type
// are invoked synchronously, strictly in registration order. The first
// listener to fail halts the fan-out for that dispatch; its error is
// handed back to the dispatch caller once the fan-out has stopped, so
// listeners never observe each other's failures.
type Bus struct {
	mode Mode

	mu        sync.Mutex
	listeners map[Type][]Listener
}

func newBus(mode Mode) *Bus {
	return &Bus{
		mode:      mode,
		listeners: make(map[Type][]Listener),
	}
}

// AddListener registers l for events of type t. Re-adding the same
// listener is a no-op. In module mode registration is reserved for the
// handler adapter and fails with a ConfigurationError.
func (b *Bus) AddListener(t Type, l Listener) error {
	if b.mode == ModeModule {
		return errModuleMode("addEventListener")
	}
	b.add(t, l)
	return nil
}

// RemoveListener unregisters l from events of type t. Removing a
// listener that is not registered is a no-op.
func (b *Bus) RemoveListener(t Type, l Listener) error {
	if b.mode == ModeModule {
		return errModuleMode("removeEventListener")
	}
	b.remove(t, l)
	return nil
}

// add bypasses the mode guard; the handler adapter registers its fixed
// listeners through it.
func (b *Bus) add(t Type, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.listeners[t] {
		if existing == l {
			return
		}
	}
	b.listeners[t] = append(b.listeners[t], l)
}

func (b *Bus) remove(t Type, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[t]
	for i, existing := range regs {
		if existing == l {
			b.listeners[t] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Dispatch invokes the listeners registered for ev's type in
// registration order. Invocation halts at the first listener error or
// once a listener stops propagation; the error, if any, is returned
// after the fan-out has stopped and the caller decides whether to
// recover or propagate it.
//
// Registration must not interleave with an in-flight fan-out; the
// listener set is snapshotted under the registry lock before any
// listener runs.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	b.mu.Lock()
	regs := append([]Listener(nil), b.listeners[ev.Type()]...)
	b.mu.Unlock()

	for _, l := range regs {
		if err := l.HandleEvent(ctx, ev); err != nil {
			return err
		}
		if ev.propagationStopped() {
			break
		}
	}
	return nil
}
