package worker

import "time"

// ScheduledEvent is dispatched for one timer-driven invocation. It has
// no response concept: listeners queue background work with WaitUntil
// and the dispatch resolves once all of it has settled.
type ScheduledEvent struct {
	baseEvent
	scheduledTime time.Time
	cron          string

	tasks *taskGroup
}

func newScheduledEvent(scheduledTime time.Time, cron string, pool Submitter) *ScheduledEvent {
	return &ScheduledEvent{
		baseEvent:     baseEvent{typ: TypeScheduled},
		scheduledTime: scheduledTime,
		cron:          cron,
		tasks:         newTaskGroup(pool),
	}
}

// ScheduledTime returns the time the invocation was scheduled for.
func (ev *ScheduledEvent) ScheduledTime() time.Time { return ev.scheduledTime }

// Cron returns the cron descriptor that triggered the invocation. It is
// carried verbatim; the runtime never parses it.
func (ev *ScheduledEvent) Cron() string { return ev.cron }

// WaitUntil queues background work for this invocation. The dispatch
// caller receives every task's result in queue order.
func (ev *ScheduledEvent) WaitUntil(t Task) error {
	return ev.tasks.spawn(t)
}
