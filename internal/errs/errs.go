// Package errs defines the error taxonomy shared across the grid engine.
//
// Every error that crosses a component boundary is classified into one of
// these kinds so the orchestrator can decide, without inspecting message
// text, whether a tick should be aborted, retried, or fatal.
package errs

import "errors"

// Kind classifies an error for the orchestrator's propagation policy.
type Kind string

const (
	// KindConfigInvalid fails startup; fatal, never retried.
	KindConfigInvalid Kind = "config_invalid"
	// KindTransport covers HTTP timeouts, 5xx, and network failures.
	KindTransport Kind = "transport"
	// KindParse covers malformed exchange responses.
	KindParse Kind = "parse"
	// KindRejected covers an order placement the exchange declined.
	KindRejected Kind = "rejected"
	// KindCancelled marks context cancellation; never logged as an error.
	KindCancelled Kind = "cancelled"
)

// Error wraps an underlying cause with a Kind for classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and an operation label describing where it occurred.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			return e.Kind == kind
		}
		return false
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindTransport for
// unclassified errors reaching the orchestrator boundary.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}
