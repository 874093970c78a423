package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_FetchHandler(t *testing.T) {
	bindings := map[string]any{"NAME": "worker"}
	resp := newTestResponse(http.StatusOK, "module")

	var gotURL string
	var gotEnv map[string]any
	s := NewModule(Options{Bindings: bindings}, Module{
		Fetch: func(ctx context.Context, req *http.Request, env map[string]any, fc *FetchContext) (*http.Response, error) {
			gotURL = req.URL.String()
			gotEnv = env
			return resp, nil
		},
	})

	result, err := s.DispatchFetch(context.Background(), newTestRequest(), false)
	require.NoError(t, err)
	assert.Same(t, resp, result.Response)
	assert.Equal(t, "http://worker.test/path", gotURL)
	assert.Equal(t, bindings, gotEnv)
}

func TestModule_FetchHandlerNilResponseIsUnhandled(t *testing.T) {
	fwd := &stubForwarder{resp: newTestResponse(http.StatusOK, "upstream")}
	s := NewModule(Options{Forwarder: fwd}, Module{
		Fetch: func(ctx context.Context, req *http.Request, env map[string]any, fc *FetchContext) (*http.Response, error) {
			return nil, nil
		},
	})

	result, err := s.DispatchFetch(context.Background(), newTestRequest(), true)
	require.NoError(t, err)
	assert.Same(t, fwd.resp, result.Response)
}

func TestModule_FetchContextCapabilities(t *testing.T) {
	fwd := &stubForwarder{resp: newTestResponse(http.StatusOK, "upstream")}
	s := NewModule(Options{Forwarder: fwd}, Module{
		Fetch: func(ctx context.Context, req *http.Request, env map[string]any, fc *FetchContext) (*http.Response, error) {
			require.NoError(t, fc.WaitUntil(func(context.Context) (any, error) { return "bg", nil }))
			fc.PassThroughOnException()
			return nil, errors.New("module handler exploded")
		},
	})

	result, err := s.DispatchFetch(context.Background(), newTestRequest(), true)
	require.NoError(t, err, "pass-through must downgrade the failure to the fallback path")
	assert.Same(t, fwd.resp, result.Response)

	results, err := result.Background.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"bg"}, results)
}

func TestModule_ScheduledHandler(t *testing.T) {
	at := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

	var gotCtrl ScheduledController
	s := NewModule(Options{}, Module{
		Scheduled: func(ctx context.Context, ctrl ScheduledController, env map[string]any, sc *ScheduledContext) (any, error) {
			gotCtrl = ctrl
			require.NoError(t, sc.WaitUntil(func(context.Context) (any, error) { return "queued", nil }))
			return "returned", nil
		},
	})

	results, err := s.DispatchScheduled(context.Background(), at, "*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, at, gotCtrl.ScheduledTime)
	assert.Equal(t, "*/5 * * * *", gotCtrl.Cron)

	// Tasks queued during the handler come first, the handler's return
	// value is appended after them.
	assert.Equal(t, []any{"queued", "returned"}, results)
}

func TestModule_ScheduledHandlerError(t *testing.T) {
	boom := errors.New("scheduled module exploded")
	s := NewModule(Options{}, Module{
		Scheduled: func(ctx context.Context, ctrl ScheduledController, env map[string]any, sc *ScheduledContext) (any, error) {
			return nil, boom
		},
	})

	_, err := s.DispatchScheduled(context.Background(), time.Time{}, "")
	assert.ErrorIs(t, err, boom)
}
