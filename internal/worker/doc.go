/*
Package worker implements the event dispatch engine of a single-worker
serverless runtime.

A Scope is the facade one worker program observes. Inbound requests are
delivered with DispatchFetch, which dispatches a FetchEvent to the
registered fetch listeners under an "exactly one response, arbitrary
many background tasks" protocol: the first listener to call RespondWith
wins and halts the remaining listeners, WaitUntil queues background
work that settles after the response is returned, and
PassThroughOnException downgrades a later handler failure to the
upstream fallback path. Timer-driven invocations use the simpler
DispatchScheduled protocol, which has no response concept and resolves
once every queued background task has settled.

Programs address the runtime in one of two fixed modes chosen at
construction:

  - Imperative mode (New): the program registers listeners through
    AddEventListener / RemoveEventListener.
  - Module mode (NewModule): the program exports typed fetch and
    scheduled handlers; the imperative registration surface is disabled
    and fails with a ConfigurationError.

Dispatch is synchronous and single-threaded: listeners for one event
run strictly in registration order on the dispatching goroutine, and no
two listeners for the same event overlap. Background tasks queued with
WaitUntil run concurrently and are never awaited before the primary
response is produced.

Sandboxed script execution, persistent storage, and WebSocket pairing
are external collaborators and out of scope for this package.
*/
package worker
