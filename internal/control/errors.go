package control

import "errors"

var (
	// ErrExternalCallFailed wraps any failure talking to a dispatcher,
	// notifier or predictor endpoint.
	ErrExternalCallFailed = errors.New("control: external call failed")

	// ErrNotConfigured is returned by constructors given an empty URL.
	ErrNotConfigured = errors.New("control: endpoint not configured")
)
