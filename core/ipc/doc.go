// Package ipc provides a supervised child-process channel: it forks one
// external worker process, exchanges enveloped JSON messages with it over a
// bidirectional stream, and layers a correlated request/response protocol
// with per-request timeouts and bounded auto-restart on top.
//
// # Envelope
//
// Every exchange is wrapped in a Message: {id, type, payload, timestamp}.
// The id correlates a response to its originating request; responses reuse
// the request id and carry the reserved type "response". The wire format is
// newline-delimited JSON on the worker's stdin/stdout.
//
// # Supervisor
//
// ManagedProcess owns exactly one worker. Send is fire-and-forget; Request
// blocks until the matching response, the timeout, context cancellation, or
// worker exit, whichever fires first; every later resumption source is a
// safe no-op. On unplanned worker exit all pending requests are rejected
// with ErrProcessExited before any restart attempt, because the replacement
// worker knows nothing about the old worker's correlation ids.
//
//	proc := ipc.NewManagedProcess("/usr/local/bin/task-worker", nil,
//	    ipc.WithTimeout(5*time.Second),
//	    ipc.WithAutoRestart(3),
//	)
//	if err := proc.Start(); err != nil {
//	    return err
//	}
//	defer proc.Stop(nil)
//
//	raw, err := proc.Request(ctx, "task", TaskInput{ID: "t1"})
//
// Lifecycle transitions (start, stop, exit, error, restart) are observable
// through OnLifecycle, backed by an internal event bus owned by the
// supervisor rather than a shared application bus.
//
// # Worker Side
//
// Worker implements the child half of the protocol: it reads envelopes from
// stdin, dispatches them to handlers registered by message type, and replies
// on stdout. The contract between supervisor and worker is bilateral; nothing
// at the process boundary enforces it.
//
// # Scope
//
// The channel assumes ordered, reliable, FIFO delivery as provided by OS
// pipes. There is no network transport, no cross-machine messaging, and no
// per-request cancellation of work already handed to the worker: cancellation
// granularity is the whole process.
package ipc
