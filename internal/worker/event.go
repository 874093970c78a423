package worker

import (
	"context"
	"net/http"
	"time"
)

// Type identifies the kind of event being dispatched.
type Type string

const (
	TypeFetch     Type = "fetch"
	TypeScheduled Type = "scheduled"
)

// Event is one dispatch occurrence. Events are created fresh for every
// dispatch and must not be retained once the dispatch has returned.
type Event interface {
	// Type returns the event's type tag.
	Type() Type
	// StopImmediatePropagation prevents listeners registered after the
	// current one from seeing this event.
	StopImmediatePropagation()

	propagationStopped() bool
}

// baseEvent carries the state shared by all event kinds.
type baseEvent struct {
	typ     Type
	stopped bool
}

func (e *baseEvent) Type() Type { return e.typ }

func (e *baseEvent) StopImmediatePropagation() { e.stopped = true }

func (e *baseEvent) propagationStopped() bool { return e.stopped }

// Listener handles dispatched events. Implementations must be
// comparable: the registry dedups by identity, so re-adding the same
// listener value is a no-op. Use NewListener to adapt a plain function.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

type funcListener struct {
	fn func(ctx context.Context, ev Event) error
}

func (l *funcListener) HandleEvent(ctx context.Context, ev Event) error {
	return l.fn(ctx, ev)
}

// NewListener adapts fn to the Listener interface. Every call returns a
// listener with a distinct identity; keep the returned value if the
// listener is to be removed later.
func NewListener(fn func(ctx context.Context, ev Event) error) Listener {
	return &funcListener{fn: fn}
}

// Clock supplies the current time. It exists so scheduled dispatch
// defaults are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Forwarder delivers a request to the configured fallback origin. It is
// consulted only on the unhandled and pass-through recovery paths.
type Forwarder interface {
	Forward(ctx context.Context, req *http.Request) (*http.Response, error)
}
