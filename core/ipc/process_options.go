package ipc

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRequestTimeout bounds a Request when WithTimeout is not given.
const DefaultRequestTimeout = 30 * time.Second

// maxMessageBytes caps a single envelope line on the channel.
const maxMessageBytes = 4 * 1024 * 1024

// ProcessOption configures a ManagedProcess.
type ProcessOption func(*ManagedProcess)

// WithTimeout sets the per-request response timeout.
func WithTimeout(d time.Duration) ProcessOption {
	return func(p *ManagedProcess) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAutoRestart enables re-forking the worker on unplanned exit, up to
// maxRestarts attempts. The counter never resets; once spent, the supervisor
// is permanently stopped.
func WithAutoRestart(maxRestarts int) ProcessOption {
	return func(p *ManagedProcess) {
		p.autoRestart = true
		p.maxRestarts = maxRestarts
	}
}

// WithRestartBackoff sets the delay policy applied between an unplanned exit
// and the respawn attempt. Without it restarts are immediate.
//
// Example:
//
//	ipc.WithRestartBackoff(backoff.NewExponentialBackOff())
func WithRestartBackoff(b backoff.BackOff) ProcessOption {
	return func(p *ManagedProcess) {
		p.restartBackoff = b
	}
}

// WithEnv sets the worker's environment. When not given, the worker inherits
// the parent's environment.
func WithEnv(env []string) ProcessOption {
	return func(p *ManagedProcess) {
		p.env = env
	}
}

// WithDir sets the worker's working directory.
func WithDir(dir string) ProcessOption {
	return func(p *ManagedProcess) {
		p.dir = dir
	}
}

// WithProcessLogger sets the logger for supervisor diagnostics (malformed
// messages, restart attempts, failing lifecycle handlers). If not set,
// diagnostics are discarded; the supervisor never logs protocol traffic on
// its own.
func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(p *ManagedProcess) {
		p.logger = logger
	}
}
