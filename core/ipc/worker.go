package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/taskpilot/taskpilot/pkg/logger"
)

// WorkerHandler processes one inbound request in the worker process. A nil
// result with a nil error means the message needs no reply; any non-nil
// result is marshaled and written back as a response envelope reusing the
// request's correlation id.
type WorkerHandler func(ctx context.Context, msg Message) (any, error)

// Worker is the child-process side of the bilateral envelope protocol. It
// reads enveloped messages off its inbound stream (stdin by default),
// dispatches them to registered handlers by message type, and writes replies
// to its outbound stream (stdout by default).
//
// A worker executable typically looks like:
//
//	func main() {
//	    w := ipc.NewWorker()
//	    w.Handle("task", func(ctx context.Context, msg ipc.Message) (any, error) {
//	        in, err := ipc.DecodePayload[TaskInput](msg)
//	        if err != nil {
//	            return nil, err
//	        }
//	        return runTask(ctx, in)
//	    })
//	    if err := w.Run(context.Background()); err != nil {
//	        os.Exit(1)
//	    }
//	}
type Worker struct {
	in      io.Reader
	out     io.Writer
	writeMu sync.Mutex

	handlers map[string]WorkerHandler
	logger   *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithStreams overrides the worker's inbound and outbound streams.
// Primarily useful for testing the loop in-process.
func WithStreams(in io.Reader, out io.Writer) WorkerOption {
	return func(w *Worker) {
		w.in = in
		w.out = out
	}
}

// WithWorkerLogger sets the logger for handler failures and malformed input.
// Workers log to stderr by default since stdout carries the protocol.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a worker loop bound to stdin/stdout.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		in:       os.Stdin,
		out:      os.Stdout,
		handlers: make(map[string]WorkerHandler),
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Handle registers the handler for a message type, replacing any previous
// registration. Registering after Run has begun is not supported.
func (w *Worker) Handle(msgType string, h WorkerHandler) {
	if msgType == TypeResponse {
		panic("ipc: cannot register a worker handler for the reserved response type")
	}
	w.handlers[msgType] = h
}

// Run reads envelopes until the inbound stream closes or the context ends.
// Cancellation is observed before the next message is served, not while
// blocked waiting for input; a closed stream returns nil, since the parent
// hanging up is the normal shutdown signal for a worker. Handler errors are
// logged, not returned; the parent observes them as a request timeout.
func (w *Worker) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(w.in)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			w.logger.Warn("discarding malformed message", logger.Error(err))
			continue
		}

		w.serve(ctx, msg)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ipc: worker read failed: %w", err)
	}
	return nil
}

func (w *Worker) serve(ctx context.Context, msg Message) {
	h, ok := w.handlers[msg.Type]
	if !ok {
		w.logger.Warn("no handler for message type",
			logger.MessageType(msg.Type))
		return
	}

	result, err := h(ctx, msg)
	if err != nil {
		w.logger.Error("handler failed",
			logger.MessageType(msg.Type),
			logger.CorrelationID(msg.ID),
			logger.Error(err))
		return
	}
	if result == nil {
		return
	}

	reply, err := msg.Response(result)
	if err != nil {
		w.logger.Error("failed to build response",
			logger.MessageType(msg.Type),
			logger.Error(err))
		return
	}

	if err := w.writeMessage(reply); err != nil {
		w.logger.Error("failed to write response",
			logger.MessageType(msg.Type),
			logger.Error(err))
	}
}

// Notify sends a worker-initiated fire-and-forget message to the parent.
func (w *Worker) Notify(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return w.writeMessage(msg)
}

func (w *Worker) writeMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: failed to encode message: %w", err)
	}
	data = append(data, '\n')

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("ipc: failed to write message: %w", err)
	}
	return nil
}
