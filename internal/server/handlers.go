package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/drivly/miniflare/internal/worker"
)

// handleFetch dispatches the inbound request as a fetch event and
// writes the resolved response. The error taxonomy is mapped onto
// failure responses here; the dispatch core never formats responses.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	result, err := s.Scope().DispatchFetch(r.Context(), r, true)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	resp := result.Response
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.log.Error().Err(err).Msg("writing response body failed")
		}
		resp.Body.Close()
	}

	// Drain background tasks off the request path so the context can be
	// recycled; failures are logged, never surfaced to the client.
	go func() {
		if _, err := result.Background.Wait(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("background task failed")
		}
	}()
}

// handleScheduled triggers a scheduled dispatch. Optional query params:
// "time" (unix milliseconds) and "cron".
func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	var scheduledTime time.Time
	if v := r.URL.Query().Get("time"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "time must be unix milliseconds")
			return
		}
		scheduledTime = time.UnixMilli(ms)
	}
	cron := r.URL.Query().Get("cron")

	results, err := s.Scope().DispatchScheduled(r.Context(), scheduledTime, cron)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeHandlerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "completed": len(results)})
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var proxyErr *worker.ProxyError
	var stateErr *worker.StateError

	switch {
	case errors.Is(err, worker.ErrUnhandledRequest):
		writeError(w, http.StatusNotFound, errCodeUnhandledRequest, err.Error())
	case errors.As(err, &proxyErr):
		writeError(w, http.StatusBadGateway, errCodeProxyError, err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusInternalServerError, errCodeStateError, err.Error())
	default:
		s.log.Error().Err(err).Msg("fetch handler failed")
		writeError(w, http.StatusInternalServerError, errCodeHandlerError, err.Error())
	}
}
