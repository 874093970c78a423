package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

func newTestRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "http://worker.test/path", nil)
}

func newTestResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeClock returns a fixed time.
type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

// stubForwarder records forwarded requests and returns a canned
// response or error.
type stubForwarder struct {
	mu   sync.Mutex
	reqs []*http.Request
	resp *http.Response
	err  error
}

func (f *stubForwarder) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *stubForwarder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}
