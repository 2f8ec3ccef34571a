package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskpilot/taskpilot/core/bus"
	"github.com/taskpilot/taskpilot/pkg/async"
	"github.com/taskpilot/taskpilot/pkg/logger"
)

// State is the lifecycle state of a ManagedProcess.
type State string

const (
	// StateNotStarted means Start has not been called yet.
	StateNotStarted State = "not_started"
	// StateRunning means a worker is forked and the channel is live.
	StateRunning State = "running"
	// StateStopped is terminal: the supervisor was stopped deliberately or
	// exhausted its restart budget. No further forks are attempted.
	StateStopped State = "stopped"
)

// Lifecycle event names emitted on the supervisor's internal bus.
const (
	LifecycleStart   = "process.start"
	LifecycleStop    = "process.stop"
	LifecycleExit    = "process.exit"
	LifecycleError   = "process.error"
	LifecycleRestart = "process.restart"
)

// MessageHandler receives unsolicited inbound messages of a registered type.
// Handlers run on the channel reader goroutine and must not block; offload
// slow work to another goroutine.
type MessageHandler func(msg Message)

// ManagedProcess supervises one external worker process and multiplexes a
// correlated request/response protocol over its message channel. The channel
// is newline-delimited JSON envelopes on the worker's stdin/stdout; the
// worker's stderr passes through to the parent's stderr.
//
// A ManagedProcess owns its worker exclusively: nothing else may message or
// terminate the child directly. On worker exit every pending request is
// rejected, then the worker is optionally re-forked up to a bounded number of
// restarts.
type ManagedProcess struct {
	path string
	args []string

	timeout        time.Duration
	autoRestart    bool
	maxRestarts    int
	restartBackoff backoff.BackOff
	env            []string
	dir            string
	logger         *slog.Logger

	lifecycle *bus.Bus

	mu           sync.Mutex
	state        State
	stopping     bool
	exhausted    bool
	generation   int
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	pending      map[string]*pendingRequest
	listeners    map[string][]*messageListener
	restartCount int

	writeMu sync.Mutex
}

// pendingRequest is the per-request state machine. The future resolves exactly
// once; whichever resumption source fires first (matching response, timeout
// timer, context cancellation, process exit, Stop) wins, and every later
// source is a safe no-op.
type pendingRequest struct {
	msgType string
	future  *async.Future[json.RawMessage]
	timer   *time.Timer
}

func (p *pendingRequest) settle(payload json.RawMessage, err error) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.future.Complete(payload, err)
}

type messageListener struct {
	handler MessageHandler
	removed bool
}

// NewManagedProcess creates a supervisor for the worker executable at path.
// The worker is not forked until Start.
func NewManagedProcess(path string, args []string, opts ...ProcessOption) *ManagedProcess {
	p := &ManagedProcess{
		path:      path,
		args:      args,
		timeout:   DefaultRequestTimeout,
		state:     StateNotStarted,
		lifecycle: bus.New(),
		pending:   make(map[string]*pendingRequest),
		listeners: make(map[string][]*messageListener),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start forks the worker and wires the message, exit, and error handling.
// Calling Start while a worker is already running returns ErrAlreadyStarted;
// calling it after Stop returns ErrProcessStopped, and after the restart
// budget is spent it returns ErrRestartsExhausted.
// The process.start lifecycle event is emitted after the fork returns.
func (p *ManagedProcess) Start() error {
	p.mu.Lock()
	switch p.state {
	case StateRunning:
		p.mu.Unlock()
		return ErrAlreadyStarted
	case StateStopped:
		err := ErrProcessStopped
		if p.exhausted {
			err = ErrRestartsExhausted
		}
		p.mu.Unlock()
		return err
	}

	if err := p.spawnLocked(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("ipc: failed to start worker: %w", err)
	}
	p.state = StateRunning
	pid := p.cmd.Process.Pid
	p.mu.Unlock()

	p.emitLifecycle(LifecycleStart, pid)
	return nil
}

// spawnLocked forks the worker and attaches the reader and waiter goroutines.
// Caller holds mu. A new generation number ties the goroutines to this fork so
// a stale waiter cannot act on a replacement worker's state.
func (p *ManagedProcess) spawnLocked() error {
	cmd := exec.Command(p.path, p.args...)
	cmd.Stderr = os.Stderr
	if p.env != nil {
		cmd.Env = p.env
	}
	if p.dir != "" {
		cmd.Dir = p.dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	p.generation++
	gen := p.generation
	p.cmd = cmd
	p.stdin = stdin

	go p.readLoop(stdout)
	go func() {
		err := cmd.Wait()
		p.handleExit(gen, err)
	}()

	return nil
}

// Stop sends the given termination signal to the worker (SIGTERM when nil)
// and permanently marks the supervisor stopped. Every pending request is
// rejected with ErrProcessStopped. Stopping an already-stopped supervisor is
// a no-op.
func (p *ManagedProcess) Stop(sig os.Signal) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.state = StateStopped
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.state = StateStopped
	cmd := p.cmd
	flushed := p.flushPendingLocked()
	p.mu.Unlock()

	rejectAll(flushed, ErrProcessStopped)

	if sig == nil {
		sig = syscall.SIGTERM
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("ipc: failed to signal worker: %w", err)
	}

	p.emitLifecycle(LifecycleStop, cmd.Process.Pid)
	return nil
}

// Send writes a fire-and-forget envelope to the worker. It returns as soon as
// the message is handed to the channel; no reply is expected.
func (p *ManagedProcess) Send(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if err := p.checkRunningLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	stdin := p.stdin
	p.mu.Unlock()

	return p.write(stdin, msg)
}

// Request sends an enveloped message and blocks until the matching response
// arrives, the configured timeout elapses, the context ends, or the worker
// exits, whichever happens first. On timeout the pending record is removed
// before the error is delivered, so a late response is ignored rather than
// resolving a settled request.
func (p *ManagedProcess) Request(ctx context.Context, msgType string, payload any) (json.RawMessage, error) {
	future := p.RequestAsync(ctx, msgType, payload)
	return future.AwaitContext(ctx)
}

// RequestAsync is Request in future form: it returns immediately with a
// future that resolves with the response payload or rejects with the first
// failure source. The context bounds the request in addition to the
// per-request timeout.
func (p *ManagedProcess) RequestAsync(ctx context.Context, msgType string, payload any) *async.Future[json.RawMessage] {
	future := async.NewFuture[json.RawMessage]()

	msg, err := NewMessage(msgType, payload)
	if err != nil {
		future.Complete(nil, err)
		return future
	}

	pr := &pendingRequest{msgType: msgType, future: future}

	p.mu.Lock()
	if err := p.checkRunningLocked(); err != nil {
		p.mu.Unlock()
		future.Complete(nil, err)
		return future
	}
	stdin := p.stdin
	// The timer is armed before the record becomes visible in pending, so
	// every settlement path that pulls the record out under the lock sees a
	// fully built request. The timeout window therefore also covers the
	// envelope write below.
	pr.timer = time.AfterFunc(p.timeout, func() {
		if p.unregister(msg.ID) != nil {
			future.Complete(nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, msgType, p.timeout))
		}
	})
	p.pending[msg.ID] = pr
	p.mu.Unlock()

	if err := p.write(stdin, msg); err != nil {
		if p.unregister(msg.ID) != nil {
			pr.settle(nil, err)
		}
		return future
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				if p.unregister(msg.ID) != nil {
					pr.settle(nil, ctx.Err())
				}
			case <-future.Done():
			}
		}()
	}

	return future
}

// OnMessage registers a handler for unsolicited inbound messages of the given
// type and returns an idempotent unsubscribe capability. Messages of type
// "response" are consumed by the request correlation logic and never reach
// these handlers.
func (p *ManagedProcess) OnMessage(msgType string, h MessageHandler) func() {
	if h == nil {
		panic("ipc: message handler must not be nil")
	}

	l := &messageListener{handler: h}

	p.mu.Lock()
	p.listeners[msgType] = append(p.listeners[msgType], l)
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			l.removed = true
			regs := p.listeners[msgType]
			for i, reg := range regs {
				if reg == l {
					p.listeners[msgType] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
		})
	}
}

// OnLifecycle subscribes to a lifecycle event (LifecycleStart, LifecycleStop,
// LifecycleExit, LifecycleError, LifecycleRestart) on the supervisor's
// internal bus. The restart event payload is the new restart count; start and
// stop carry the worker pid; exit and error carry the causing error, which
// may be nil for a clean exit.
func (p *ManagedProcess) OnLifecycle(event string, h bus.Handler) func() {
	return p.lifecycle.On(event, h)
}

// IsRunning reports whether a worker is currently forked and supervised.
func (p *ManagedProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

// PID returns the worker's OS process id, or 0 when no worker is running.
func (p *ManagedProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the supervisor's lifecycle state.
func (p *ManagedProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RestartCount returns how many restart attempts have been used.
func (p *ManagedProcess) RestartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restartCount
}

func (p *ManagedProcess) checkRunningLocked() error {
	switch p.state {
	case StateNotStarted:
		return ErrNotStarted
	case StateStopped:
		if p.exhausted {
			return ErrRestartsExhausted
		}
		return ErrProcessStopped
	}
	return nil
}

// write serializes one envelope onto the channel as a single JSON line.
// A dedicated write lock keeps concurrent senders from interleaving lines
// without holding the supervisor lock across a possibly-blocking pipe write.
func (p *ManagedProcess) write(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: failed to encode message: %w", err)
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ipc: failed to write message: %w", err)
	}
	return nil
}

// readLoop decodes envelopes off the worker's stdout until the pipe closes.
func (p *ManagedProcess) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			p.logger.Warn("discarding malformed message", logger.Error(err))
			continue
		}

		p.dispatch(msg)
	}
}

// dispatch routes one inbound envelope: responses settle their pending
// request; everything else goes to the unsolicited-message handlers.
func (p *ManagedProcess) dispatch(msg Message) {
	if msg.Type == TypeResponse {
		if pr := p.unregister(msg.ID); pr != nil {
			pr.settle(msg.Payload, nil)
		} else {
			// Late or unknown correlation id: the request already timed out,
			// was cancelled, or belonged to a previous worker.
			p.logger.Debug("ignoring unmatched response",
				logger.CorrelationID(msg.ID))
		}
		return
	}

	p.mu.Lock()
	regs := make([]*messageListener, len(p.listeners[msg.Type]))
	copy(regs, p.listeners[msg.Type])
	p.mu.Unlock()

	for _, l := range regs {
		l.handler(msg)
	}
}

// unregister removes and returns the pending request for id, or nil if it was
// already settled by another resumption source.
func (p *ManagedProcess) unregister(id string) *pendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.pending[id]
	if !ok {
		return nil
	}
	delete(p.pending, id)
	return pr
}

// flushPendingLocked detaches the whole pending map. Caller holds mu and is
// responsible for rejecting the returned requests after unlocking.
func (p *ManagedProcess) flushPendingLocked() map[string]*pendingRequest {
	flushed := p.pending
	p.pending = make(map[string]*pendingRequest)
	return flushed
}

func rejectAll(pending map[string]*pendingRequest, err error) {
	for _, pr := range pending {
		pr.settle(nil, fmt.Errorf("%w: request %s", err, pr.msgType))
	}
}

// handleExit runs on the waiter goroutine when the worker terminates. Every
// pending request is rejected before any restart attempt, because a
// replacement worker knows nothing about the old worker's correlation ids.
func (p *ManagedProcess) handleExit(gen int, waitErr error) {
	p.mu.Lock()
	if p.generation != gen {
		// A stale waiter from a worker that was already replaced.
		p.mu.Unlock()
		return
	}

	flushed := p.flushPendingLocked()
	stopping := p.stopping

	if stopping {
		p.state = StateStopped
		p.mu.Unlock()
		rejectAll(flushed, ErrProcessStopped)
		p.emitLifecycle(LifecycleExit, waitErr)
		return
	}

	restart := p.autoRestart && p.restartCount < p.maxRestarts
	if restart {
		p.restartCount++
	} else {
		p.state = StateStopped
		// Only a spent restart budget counts as exhaustion; an exit without
		// auto-restart is reported as a plain stop.
		p.exhausted = p.autoRestart
	}
	attempt := p.restartCount
	p.mu.Unlock()

	rejectAll(flushed, ErrProcessExited)
	p.emitLifecycle(LifecycleExit, waitErr)

	if !restart {
		return
	}

	p.emitLifecycle(LifecycleRestart, attempt)
	p.logger.Info("restarting worker",
		logger.RestartCount(attempt),
		logger.Count("max_restarts", p.maxRestarts))

	if p.restartBackoff != nil {
		if delay := p.restartBackoff.NextBackOff(); delay > 0 && delay != backoff.Stop {
			time.Sleep(delay)
		}
	}

	p.mu.Lock()
	if p.stopping || p.state == StateStopped {
		// Stop won the race while we were waiting to respawn.
		p.state = StateStopped
		p.mu.Unlock()
		return
	}
	err := p.spawnLocked()
	if err != nil {
		p.state = StateStopped
	}
	var pid int
	if err == nil {
		pid = p.cmd.Process.Pid
	}
	p.mu.Unlock()

	if err != nil {
		p.emitLifecycle(LifecycleError, fmt.Errorf("ipc: restart failed: %w", err))
		return
	}
	p.emitLifecycle(LifecycleStart, pid)
}

func (p *ManagedProcess) emitLifecycle(event string, payload any) {
	if err := p.lifecycle.EmitSync(event, payload); err != nil {
		p.logger.Warn("lifecycle handler failed",
			logger.Event(event),
			logger.Error(err))
	}
}
