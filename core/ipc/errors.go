package ipc

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called on a supervisor that
	// already owns a running worker. This signals a caller bug, not a state to
	// retry.
	ErrAlreadyStarted = errors.New("ipc: process already started")

	// ErrNotStarted is returned by Send and Request before Start has been
	// called.
	ErrNotStarted = errors.New("ipc: process not started")

	// ErrProcessStopped rejects pending requests when the supervisor is
	// stopped deliberately while they are in flight.
	ErrProcessStopped = errors.New("ipc: process stopped")

	// ErrProcessExited rejects pending requests when the worker exits before
	// responding; the replacement worker knows nothing about the old worker's
	// correlation ids.
	ErrProcessExited = errors.New("ipc: process exited")

	// ErrRestartsExhausted is returned once the restart budget is spent; the
	// supervisor is permanently stopped and no further forks are attempted.
	ErrRestartsExhausted = errors.New("ipc: restart limit reached")

	// ErrRequestTimeout rejects a request whose response did not arrive within
	// the configured timeout.
	ErrRequestTimeout = errors.New("ipc: request timed out")
)
