package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/taskpilot/taskpilot/pkg/logger"
)

// DefaultMaxListeners is the per-event registration count above which the bus
// logs a leak warning. Override with WithMaxListeners.
const DefaultMaxListeners = 10

// Bus is an in-process publish/subscribe registry for named events.
// All methods are safe for concurrent use.
type Bus struct {
	mu           sync.Mutex
	persistent   map[string][]*registration
	once         map[string][]*registration
	maxListeners int
	logger       *slog.Logger
}

// registration tracks one subscribed handler. The pointer identity of the
// registration backs the idempotent unsubscribe capability; fnPtr carries the
// handler's code pointer for removal via Off.
type registration struct {
	handler Handler
	fnPtr   uintptr
	removed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxListeners sets the per-event registration count that triggers the
// leak warning. Zero disables the check entirely.
func WithMaxListeners(n int) Option {
	return func(b *Bus) {
		b.maxListeners = n
	}
}

// WithLogger sets the logger used for the listener-leak warning.
// If not set, warnings are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates an event bus with the given options.
func New(opts ...Option) *Bus {
	b := &Bus{
		persistent:   make(map[string][]*registration),
		once:         make(map[string][]*registration),
		maxListeners: DefaultMaxListeners,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// On registers a persistent handler for the event and returns an unsubscribe
// capability that removes exactly this registration. Calling the returned
// function more than once is a no-op.
func (b *Bus) On(event string, h Handler) func() {
	return b.subscribe(event, h, false)
}

// Once registers a single-fire handler for the event. The handler is removed
// unconditionally after the first dispatch that includes it, even if it
// returns an error or panics. The returned unsubscribe capability removes the
// registration before it fires; afterwards it is a no-op.
func (b *Bus) Once(event string, h Handler) func() {
	return b.subscribe(event, h, true)
}

func (b *Bus) subscribe(event string, h Handler, once bool) func() {
	if h == nil {
		panic("bus: handler must not be nil")
	}

	reg := &registration{
		handler: h,
		fnPtr:   reflect.ValueOf(h).Pointer(),
	}

	b.mu.Lock()
	if once {
		b.once[event] = append(b.once[event], reg)
	} else {
		b.persistent[event] = append(b.persistent[event], reg)
	}
	count := len(b.persistent[event]) + len(b.once[event])
	b.mu.Unlock()

	if b.maxListeners > 0 && count > b.maxListeners {
		b.logger.Warn("possible event listener leak",
			logger.Event(event),
			logger.Count("listeners", count),
			logger.Count("max", b.maxListeners))
	}

	var unsub sync.Once
	return func() {
		unsub.Do(func() {
			b.remove(event, reg)
		})
	}
}

// Off removes the handler from both the persistent and the once set for the
// event. Matching is by function identity of the originally registered
// handler; removing a handler that was never registered is a no-op.
//
// Note that Go closures created from the same function literal share a code
// pointer, so Off removes every registration made with that literal. Prefer
// the unsubscribe capability returned by On/Once when registrations must be
// distinguished.
func (b *Bus) Off(event string, h Handler) {
	if h == nil {
		return
	}
	ptr := reflect.ValueOf(h).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.persistent[event] = dropByPtr(b.persistent[event], ptr)
	b.once[event] = dropByPtr(b.once[event], ptr)
	b.compactLocked(event)
}

// Emit invokes all currently-registered persistent handlers and once-handlers
// for the event, in registration order within each group. The subscription set
// is snapshotted at entry, so mutations performed by handlers do not affect
// the current pass. Handlers fail independently; all failures (including
// recovered panics) are aggregated into the returned error. Every
// once-handler included in the pass is removed regardless of outcome.
func (b *Bus) Emit(ctx context.Context, event string, payload any) error {
	snapshot := b.takeSnapshot(event)

	var errs []error
	for _, reg := range snapshot {
		if err := safeInvoke(ctx, reg.handler, payload); err != nil {
			errs = append(errs, fmt.Errorf("bus: handler for %q failed: %w", event, err))
		}
	}

	return errors.Join(errs...)
}

// EmitSync dispatches like Emit for call sites that carry no context.
// Handlers run with context.Background().
func (b *Bus) EmitSync(event string, payload any) error {
	return b.Emit(context.Background(), event, payload)
}

// takeSnapshot copies the handler sets for the event and detaches every
// once-registration, so a once-handler fires at most once across any number
// of concurrent or re-entrant emits.
func (b *Bus) takeSnapshot(event string) []*registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	persistent := b.persistent[event]
	onceRegs := b.once[event]

	snapshot := make([]*registration, 0, len(persistent)+len(onceRegs))
	snapshot = append(snapshot, persistent...)
	snapshot = append(snapshot, onceRegs...)

	if len(onceRegs) > 0 {
		for _, reg := range onceRegs {
			reg.removed = true
		}
		b.once[event] = nil
		b.compactLocked(event)
	}

	return snapshot
}

// RemoveAllListeners clears the registrations for the named events, or for
// every event when called with no arguments.
func (b *Bus) RemoveAllListeners(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(events) == 0 {
		b.persistent = make(map[string][]*registration)
		b.once = make(map[string][]*registration)
		return
	}

	for _, event := range events {
		delete(b.persistent, event)
		delete(b.once, event)
	}
}

// ListenerCount returns the number of currently-registered handlers
// (persistent plus once) for the event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.persistent[event]) + len(b.once[event])
}

// EventNames returns the names of all events with at least one registration.
// Order is unspecified.
func (b *Bus) EventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{}, len(b.persistent)+len(b.once))
	for event, regs := range b.persistent {
		if len(regs) > 0 {
			seen[event] = struct{}{}
		}
	}
	for event, regs := range b.once {
		if len(regs) > 0 {
			seen[event] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for event := range seen {
		names = append(names, event)
	}
	return names
}

func (b *Bus) remove(event string, reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reg.removed {
		return
	}
	reg.removed = true

	b.persistent[event] = dropReg(b.persistent[event], reg)
	b.once[event] = dropReg(b.once[event], reg)
	b.compactLocked(event)
}

// compactLocked deletes empty map entries so EventNames stays accurate.
func (b *Bus) compactLocked(event string) {
	if len(b.persistent[event]) == 0 {
		delete(b.persistent, event)
	}
	if len(b.once[event]) == 0 {
		delete(b.once, event)
	}
}

func dropReg(regs []*registration, target *registration) []*registration {
	for i, reg := range regs {
		if reg == target {
			return append(regs[:i:i], regs[i+1:]...)
		}
	}
	return regs
}

func dropByPtr(regs []*registration, ptr uintptr) []*registration {
	kept := regs[:0:0]
	for _, reg := range regs {
		if reg.fnPtr == ptr {
			reg.removed = true
			continue
		}
		kept = append(kept, reg)
	}
	return kept
}

// safeInvoke runs a handler, converting panics to errors so a misbehaving
// handler cannot abort the dispatch pass.
func safeInvoke(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}
