package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward_RewritesOntoOrigin(t *testing.T) {
	var gotPath, gotHost, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHost = r.Host
		gotHeader = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "upstream body")
	}))
	defer srv.Close()

	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u := New(origin)

	req := httptest.NewRequest(http.MethodGet, "http://worker.test/some/path?q=1", nil)
	req.Host = ""
	req.Header.Set("X-Custom", "value")
	req.RequestURI = ""

	resp, err := u.Forward(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "/some/path", gotPath)
	assert.Equal(t, origin.Host, gotHost, "host must come from the origin, not the worker")
	assert.Equal(t, "value", gotHeader)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "upstream body", string(body))
}

func TestForward_RetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Kill the first connection mid-flight.
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u := New(origin, WithMaxElapsed(3*time.Second))

	req := httptest.NewRequest(http.MethodGet, "http://worker.test/", nil)
	req.RequestURI = ""
	resp, err := u.Forward(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestForward_BodyRequestsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u := New(origin)

	req := httptest.NewRequest(http.MethodPost, "http://worker.test/", strings.NewReader("payload"))
	req.RequestURI = ""
	_, err = u.Forward(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}
