package worker

import (
	"context"
	"net/http"
	"time"
)

// FetchHandler is the exported fetch handler convention for module
// mode. Returning a non-nil response is equivalent to RespondWith;
// returning nil, nil leaves the request unhandled.
type FetchHandler func(ctx context.Context, req *http.Request, env map[string]any, fc *FetchContext) (*http.Response, error)

// ScheduledHandler is the exported scheduled handler convention for
// module mode. A non-nil return value is queued as a resolved
// background result.
type ScheduledHandler func(ctx context.Context, ctrl ScheduledController, env map[string]any, sc *ScheduledContext) (any, error)

// Module bundles the handlers a module-mode program exports. Nil
// handlers leave the corresponding event type without a listener.
type Module struct {
	Fetch     FetchHandler
	Scheduled ScheduledHandler
}

// ScheduledController carries the trigger details handed to a scheduled
// handler.
type ScheduledController struct {
	ScheduledTime time.Time
	Cron          string
}

// FetchContext exposes the event capabilities a fetch handler may use.
type FetchContext struct {
	ev *FetchEvent
}

// WaitUntil queues background work for the current dispatch.
func (c *FetchContext) WaitUntil(t Task) error { return c.ev.WaitUntil(t) }

// PassThroughOnException requests fallback behavior should the handler
// fail later in this dispatch.
func (c *FetchContext) PassThroughOnException() { c.ev.PassThroughOnException() }

// ScheduledContext exposes the event capabilities a scheduled handler
// may use.
type ScheduledContext struct {
	ev *ScheduledEvent
}

// WaitUntil queues background work for the current invocation.
func (c *ScheduledContext) WaitUntil(t Task) error { return c.ev.WaitUntil(t) }

// bindModule registers the fixed adapter listeners that translate
// dispatched events into mod's plain handler call convention and the
// handlers' return values back into RespondWith / WaitUntil calls.
func bindModule(s *Scope, mod Module) {
	if mod.Fetch != nil {
		s.bus.add(TypeFetch, s.wrap(NewListener(func(ctx context.Context, ev Event) error {
			fe := ev.(*FetchEvent)
			resp, err := mod.Fetch(ctx, fe.Request(), s.bindings, &FetchContext{ev: fe})
			if err != nil {
				return err
			}
			if resp == nil {
				return nil
			}
			return fe.RespondWith(resp)
		})))
	}
	if mod.Scheduled != nil {
		s.bus.add(TypeScheduled, s.wrap(NewListener(func(ctx context.Context, ev Event) error {
			se := ev.(*ScheduledEvent)
			v, err := mod.Scheduled(ctx, ScheduledController{
				ScheduledTime: se.ScheduledTime(),
				Cron:          se.Cron(),
			}, s.bindings, &ScheduledContext{ev: se})
			if err != nil {
				return err
			}
			if v == nil {
				return nil
			}
			return se.WaitUntil(func(context.Context) (any, error) { return v, nil })
		})))
	}
}
