// Package proxy forwards unhandled requests to an upstream origin.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Upstream is a worker.Forwarder backed by an HTTP client. Requests are
// rewritten onto the configured origin; the stripped own-host header is
// never restored, so the transport derives the Host from the origin.
type Upstream struct {
	origin *url.URL
	client *http.Client
	log    zerolog.Logger

	// maxElapsed bounds the total retry time for transient transport
	// failures on idempotent requests.
	maxElapsed time.Duration
}

// Option configures an Upstream.
type Option func(*Upstream)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(u *Upstream) { u.client = c }
}

// WithLogger attaches a logger for forward attempts.
func WithLogger(log zerolog.Logger) Option {
	return func(u *Upstream) { u.log = log }
}

// WithMaxElapsed bounds the total retry time for idempotent requests.
func WithMaxElapsed(d time.Duration) Option {
	return func(u *Upstream) { u.maxElapsed = d }
}

// New creates an Upstream forwarding to origin.
func New(origin *url.URL, opts ...Option) *Upstream {
	u := &Upstream{
		origin:     origin,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        zerolog.Nop(),
		maxElapsed: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Forward sends req to the upstream origin and returns its response.
// Idempotent requests without a body are retried with exponential
// backoff on transport failures; everything else is sent once.
func (u *Upstream) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.URL.Scheme = u.origin.Scheme
	out.URL.Host = u.origin.Host
	out.RequestURI = ""

	u.log.Debug().
		Str("method", out.Method).
		Stringer("url", out.URL).
		Msg("forwarding request upstream")

	if !retryable(out) {
		return u.client.Do(out)
	}

	var resp *http.Response
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = u.maxElapsed
	err := backoff.Retry(func() error {
		var doErr error
		resp, doErr = u.client.Do(out.Clone(ctx))
		if doErr != nil {
			u.log.Debug().Err(doErr).Msg("upstream attempt failed, retrying")
			return doErr
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("forward %s %s: %w", req.Method, out.URL, err)
	}
	return resp, nil
}

// retryable reports whether req can be replayed safely.
func retryable(req *http.Request) bool {
	if req.Body != nil && req.Body != http.NoBody {
		return false
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
