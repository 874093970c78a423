package worker

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of background work queued with WaitUntil. Tasks
// start as soon as they are queued and are never cancelled by the
// runtime; cleanup on abandonment is the task owner's responsibility.
type Task func(ctx context.Context) (any, error)

// Submitter runs queued background tasks. *ants.Pool satisfies it; when
// no pool is configured tasks run on plain goroutines.
type Submitter interface {
	Submit(task func()) error
}

// taskGroup tracks the background tasks queued during one dispatch and
// aggregates them into a single "all settled" outcome. Results keep the
// order tasks were queued in. The first task failure settles the group
// immediately while sibling tasks keep running.
type taskGroup struct {
	pool Submitter

	mu      sync.Mutex
	closed  bool
	results []any

	wg       sync.WaitGroup
	firstErr chan error
}

func newTaskGroup(pool Submitter) *taskGroup {
	return &taskGroup{
		pool:     pool,
		firstErr: make(chan error, 1),
	}
}

// spawn starts t immediately and reserves its slot in the ordered
// result sequence. It fails with a StateError once the group is closed.
func (g *taskGroup) spawn(t Task) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return &StateError{Msg: "waitUntil called after the dispatch returned"}
	}
	slot := len(g.results)
	g.results = append(g.results, nil)
	g.wg.Add(1)
	g.mu.Unlock()

	run := func() {
		defer g.wg.Done()
		v, err := runTask(t)
		if err != nil {
			select {
			case g.firstErr <- err:
			default:
			}
			return
		}
		g.mu.Lock()
		g.results[slot] = v
		g.mu.Unlock()
	}

	if g.pool != nil && g.pool.Submit(run) == nil {
		return nil
	}
	go run()
	return nil
}

// runTask converts a task panic into an error so one misbehaving task
// cannot take down the dispatcher or its siblings.
func runTask(t Task) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("background task panic: %v", r)
		}
	}()
	return t(context.Background())
}

// close freezes the group; spawn fails from here on. Already-running
// tasks are unaffected.
func (g *taskGroup) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// wait blocks until every queued task has settled, returning their
// results in queue order, or until the first task failure, which is
// surfaced immediately.
func (g *taskGroup) wait(ctx context.Context) ([]any, error) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case err := <-g.firstErr:
		return nil, err
	case <-done:
		// A failure can land between the final Done and the select.
		select {
		case err := <-g.firstErr:
			return nil, err
		default:
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		return append([]any(nil), g.results...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waiter resolves once every background task queued during a dispatch
// has settled. Callers may wait on it for draining purposes but must
// not delay returning the primary response on it.
type Waiter struct {
	g *taskGroup
}

// Wait blocks until all background tasks for the dispatch have settled
// and returns their results in queue order. The first task failure is
// returned immediately; sibling tasks keep running unobserved.
func (w *Waiter) Wait(ctx context.Context) ([]any, error) {
	return w.g.wait(ctx)
}
