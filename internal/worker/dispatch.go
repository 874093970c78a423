package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// fetchDispatcher drives the fetch event lifecycle: synchronous fan-out
// on the bus, single-response resolution, pass-through recovery, and
// the upstream fallback for unhandled requests.
type fetchDispatcher struct {
	bus       *Bus
	log       zerolog.Logger
	forwarder Forwarder
	pool      Submitter
}

func (d *fetchDispatcher) dispatch(ctx context.Context, scope *Scope, req *http.Request, allowFallback bool) (*FetchResult, error) {
	ev := newFetchEvent(req, d.pool)
	defer ev.closeWindow()

	d.log.Debug().
		Str("event", ev.id).
		Str("method", req.Method).
		Stringer("url", req.URL).
		Msg("dispatching fetch event")

	scope.clearCaptured()
	err := d.bus.Dispatch(ctx, ev)
	background := &Waiter{g: ev.tasks}

	if err != nil {
		if !ev.passThroughRequested() {
			return nil, err
		}
		d.log.Warn().
			Str("event", ev.id).
			Err(err).
			Msg("fetch handler failed, passing request through")
		return d.fallback(ctx, req, allowFallback, background)
	}

	if p := ev.response(); p != nil {
		resp, rerr := p.await(ctx)
		if rerr != nil {
			return nil, rerr
		}
		return &FetchResult{Response: resp, Background: background}, nil
	}

	return d.fallback(ctx, req, allowFallback, background)
}

// fallback forwards the original request to the configured upstream
// with its own-host header stripped, or fails with ErrUnhandledRequest
// when no upstream is available for this dispatch.
func (d *fetchDispatcher) fallback(ctx context.Context, req *http.Request, allowFallback bool, background *Waiter) (*FetchResult, error) {
	if !allowFallback || d.forwarder == nil {
		return nil, ErrUnhandledRequest
	}

	fwd := req.Clone(ctx)
	fwd.Host = ""
	fwd.Header.Del("Host")
	fwd.RequestURI = ""

	resp, err := d.forwarder.Forward(ctx, fwd)
	if err != nil {
		return nil, &ProxyError{Err: err}
	}
	return &FetchResult{Response: resp, Background: background}, nil
}

// scheduledDispatcher drives the single-shot scheduled event lifecycle.
type scheduledDispatcher struct {
	bus   *Bus
	clock Clock
	pool  Submitter
}

func (d *scheduledDispatcher) dispatch(ctx context.Context, scope *Scope, scheduledTime time.Time, cron string) ([]any, error) {
	if scheduledTime.IsZero() {
		scheduledTime = d.clock.Now()
	}

	ev := newScheduledEvent(scheduledTime, cron, d.pool)
	defer ev.tasks.close()

	scope.clearCaptured()
	if err := d.bus.Dispatch(ctx, ev); err != nil {
		return nil, err
	}
	return ev.tasks.wait(ctx)
}
