package worker

import "errors"

// ErrUnhandledRequest is returned by DispatchFetch when no listener
// responded and no upstream fallback is available for the dispatch.
var ErrUnhandledRequest = errors.New("no fetch handler responded and no upstream is configured")

// ConfigurationError reports use of an API that is disabled by the
// scope's addressing mode.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// StateError reports an operation that is illegal in the event's
// current lifecycle state, such as a duplicate or late RespondWith.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

// ProxyError wraps a failure to forward an unhandled request upstream.
type ProxyError struct {
	Err error
}

func (e *ProxyError) Error() string { return "proxy: " + e.Err.Error() }

func (e *ProxyError) Unwrap() error { return e.Err }

func errModuleMode(op string) *ConfigurationError {
	return &ConfigurationError{Msg: op + " is not available in module mode; export a fetch or scheduled handler instead"}
}
