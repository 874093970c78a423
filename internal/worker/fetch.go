package worker

import (
	"context"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"
)

// FetchEvent is dispatched for one inbound request. At most one
// listener may respond; background tasks may be queued by any listener
// until the dispatch returns control to its caller.
type FetchEvent struct {
	baseEvent
	id  string
	req *http.Request

	mu           sync.Mutex
	pending      *pendingResponse
	passThrough  bool
	windowClosed bool

	tasks *taskGroup
}

func newFetchEvent(req *http.Request, pool Submitter) *FetchEvent {
	return &FetchEvent{
		baseEvent: baseEvent{typ: TypeFetch},
		id:        ulid.Make().String(),
		req:       req,
		tasks:     newTaskGroup(pool),
	}
}

// ID returns the event's unique dispatch id.
func (ev *FetchEvent) ID() string { return ev.id }

// Request returns the inbound request. Listeners must treat it as
// read-only.
func (ev *FetchEvent) Request() *http.Request { return ev.req }

// RespondWith provides the response for this event. Only the first call
// succeeds and halts the remaining listeners; a second call, or any
// call after the dispatch has returned, fails with a StateError and
// leaves the stored response unchanged.
func (ev *FetchEvent) RespondWith(resp *http.Response) error {
	return ev.respondWith(&pendingResponse{resp: resp})
}

// RespondWithFunc is RespondWith for a response that is still being
// produced. The dispatcher invokes fn after the listener fan-out
// completes and awaits its result as the primary response.
func (ev *FetchEvent) RespondWithFunc(fn func(ctx context.Context) (*http.Response, error)) error {
	return ev.respondWith(&pendingResponse{fn: fn})
}

func (ev *FetchEvent) respondWith(p *pendingResponse) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if ev.windowClosed {
		return &StateError{Msg: "respondWith called after the dispatch returned"}
	}
	if ev.pending != nil {
		return &StateError{Msg: "respondWith was already called for this event"}
	}
	ev.pending = p
	ev.StopImmediatePropagation()
	return nil
}

// WaitUntil queues background work for this dispatch. It may be called
// any number of times, before or after RespondWith, until the dispatch
// returns. The task starts immediately; its settlement is reflected in
// the dispatch result's background waiter.
func (ev *FetchEvent) WaitUntil(t Task) error {
	return ev.tasks.spawn(t)
}

// PassThroughOnException requests that a handler failure later in this
// dispatch be logged and downgraded to the upstream fallback path
// instead of propagating to the dispatch caller.
func (ev *FetchEvent) PassThroughOnException() {
	ev.mu.Lock()
	ev.passThrough = true
	ev.mu.Unlock()
}

func (ev *FetchEvent) passThroughRequested() bool {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.passThrough
}

func (ev *FetchEvent) response() *pendingResponse {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.pending
}

// closeWindow shuts the registration window: RespondWith and WaitUntil
// fail from here on. It runs on every dispatch exit path.
func (ev *FetchEvent) closeWindow() {
	ev.mu.Lock()
	ev.windowClosed = true
	ev.mu.Unlock()
	ev.tasks.close()
}

// pendingResponse is the possibly-unresolved response value stored by
// RespondWith. Exactly one of resp and fn is set.
type pendingResponse struct {
	resp *http.Response
	fn   func(ctx context.Context) (*http.Response, error)
}

func (p *pendingResponse) await(ctx context.Context) (*http.Response, error) {
	if p.fn != nil {
		return p.fn(ctx)
	}
	return p.resp, nil
}

// FetchResult is the outcome of a fetch dispatch: the chosen response
// plus a waiter for the background tasks queued while handling it.
// Callers should return the response without waiting on Background.
type FetchResult struct {
	Response   *http.Response
	Background *Waiter
}
