package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects how a worker program addresses the runtime. It is fixed
// at construction and never changes.
type Mode string

const (
	// ModeImperative programs register listeners through
	// AddEventListener against the scope.
	ModeImperative Mode = "imperative"
	// ModeModule programs export typed handlers bound at construction;
	// the imperative registration surface is disabled.
	ModeModule Mode = "module"
)

// Options configure a Scope.
type Options struct {
	// Bindings are the values exposed to handlers. The map is read-only
	// after construction.
	Bindings map[string]any
	// Forwarder receives requests no listener responded to. Optional;
	// without one, unhandled requests fail with ErrUnhandledRequest.
	Forwarder Forwarder
	// Clock supplies the default scheduled time. Defaults to the system
	// clock.
	Clock Clock
	// Log receives dispatch logging. Defaults to a no-op logger.
	Log *zerolog.Logger
	// Pool optionally runs background tasks; plain goroutines are used
	// otherwise.
	Pool Submitter
}

// Scope is the execution facade a single worker program observes. It
// owns the listener registry and bindings and dispatches fetch and
// scheduled events against them.
type Scope struct {
	mode     Mode
	bus      *Bus
	bindings map[string]any
	fetch    *fetchDispatcher
	sched    *scheduledDispatcher

	mu       sync.Mutex
	wraps    map[Listener]Listener
	captured error
}

// New creates a scope in imperative mode. The program registers its
// listeners through AddEventListener.
func New(opts Options) *Scope {
	return newScope(ModeImperative, opts)
}

// NewModule creates a scope in module mode with mod's exported handlers
// bound as the fixed fetch and scheduled listeners.
func NewModule(opts Options, mod Module) *Scope {
	s := newScope(ModeModule, opts)
	bindModule(s, mod)
	return s
}

func newScope(mode Mode, opts Options) *Scope {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}

	bus := newBus(mode)
	s := &Scope{
		mode:     mode,
		bus:      bus,
		bindings: opts.Bindings,
		wraps:    make(map[Listener]Listener),
	}
	s.fetch = &fetchDispatcher{bus: bus, log: log, forwarder: opts.Forwarder, pool: opts.Pool}
	s.sched = &scheduledDispatcher{bus: bus, clock: clock, pool: opts.Pool}
	return s
}

// Mode returns the scope's fixed addressing mode.
func (s *Scope) Mode() Mode { return s.mode }

// Bindings returns the injected bindings map. Callers must not mutate
// it.
func (s *Scope) Bindings() map[string]any { return s.bindings }

// AddEventListener registers l for events of type t, wrapped so a panic
// or error inside the listener halts the fan-out and is captured rather
// than escaping uncontrolled. Registering the same listener twice is a
// no-op. Fails with a ConfigurationError in module mode.
func (s *Scope) AddEventListener(t Type, l Listener) error {
	if s.mode == ModeModule {
		return errModuleMode("addEventListener")
	}
	return s.bus.AddListener(t, s.wrap(l))
}

// RemoveEventListener unregisters a listener previously added with
// AddEventListener, resolving it to the same wrapped form it was
// registered under. Removing an unknown listener is a no-op. Fails with
// a ConfigurationError in module mode.
func (s *Scope) RemoveEventListener(t Type, l Listener) error {
	if s.mode == ModeModule {
		return errModuleMode("removeEventListener")
	}
	s.mu.Lock()
	w, ok := s.wraps[l]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.bus.RemoveListener(t, w)
}

// DispatchEvent dispatches ev directly to the registered listeners and
// returns the first listener failure, if any. Imperative mode only.
func (s *Scope) DispatchEvent(ctx context.Context, ev Event) error {
	if s.mode == ModeModule {
		return errModuleMode("dispatchEvent")
	}
	s.clearCaptured()
	return s.bus.Dispatch(ctx, ev)
}

// DispatchFetch delivers req to the scope's fetch listeners and
// resolves the single-response protocol. allowFallback controls
// whether an unhandled or pass-through-recovered request may be
// forwarded to the configured upstream.
func (s *Scope) DispatchFetch(ctx context.Context, req *http.Request, allowFallback bool) (*FetchResult, error) {
	return s.fetch.dispatch(ctx, s, req, allowFallback)
}

// DispatchScheduled delivers a scheduled event built from scheduledTime
// and cron. A zero scheduledTime defaults to the clock's current time;
// an empty cron is carried as-is. The call blocks until every queued
// background task has settled and returns their results in queue order.
func (s *Scope) DispatchScheduled(ctx context.Context, scheduledTime time.Time, cron string) ([]any, error) {
	return s.sched.dispatch(ctx, s, scheduledTime, cron)
}

// LastError returns the handler error captured during the most recent
// dispatch, or nil. The slot is cleared at the start of every dispatch.
func (s *Scope) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// wrap decorates l with error capture, memoized per listener identity
// so repeated add/remove with the same reference resolves to the same
// shim.
func (s *Scope) wrap(l Listener) Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wraps[l]; ok {
		return w
	}
	w := &captureListener{scope: s, inner: l}
	s.wraps[l] = w
	return w
}

func (s *Scope) setCaptured(err error) {
	s.mu.Lock()
	s.captured = err
	s.mu.Unlock()
}

func (s *Scope) clearCaptured() {
	s.mu.Lock()
	s.captured = nil
	s.mu.Unlock()
}

// captureListener decorates a registered listener so that a panic or
// returned error stops the fan-out and lands in the scope's captured
// slot instead of unwinding through the dispatcher.
type captureListener struct {
	scope *Scope
	inner Listener
}

func (c *captureListener) HandleEvent(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
		if err != nil {
			c.scope.setCaptured(err)
			ev.StopImmediatePropagation()
		}
	}()
	return c.inner.HandleEvent(ctx, ev)
}
