// Package bus provides an in-process publish/subscribe event bus for decoupling
// producers and consumers of named events. Registrations come in two flavors:
// persistent handlers registered with On, and single-fire handlers registered
// with Once that are removed unconditionally after their first dispatch.
//
// The bus is an explicitly constructed value intended to be dependency-injected
// into the components that need shared access; process-wide lifetime belongs to
// the application entry point, not to a hidden package-level singleton.
//
// # Basic Usage
//
//	b := bus.New()
//
//	off := b.On("task.created", bus.HandlerFor(func(ctx context.Context, t TaskCreated) error {
//	    return index.Add(ctx, t.ID)
//	}))
//	defer off()
//
//	b.Once("task.created", func(ctx context.Context, payload any) error {
//	    firstTaskSeen = true
//	    return nil
//	})
//
//	if err := b.Emit(ctx, "task.created", TaskCreated{ID: "t1"}); err != nil {
//	    // err aggregates every failing handler; siblings still ran.
//	}
//
// # Dispatch Semantics
//
// Emit invokes all currently-registered persistent handlers and then all
// once-handlers for the event, in registration order within each group. The
// subscription set is snapshotted when Emit begins, so a handler that registers
// or removes listeners mid-dispatch never changes the set invoked by the
// current pass. Handlers fail independently: a handler error or panic does not
// prevent sibling handlers from running, and all failures are aggregated into
// the error returned to the Emit caller via errors.Join.
//
// # Listener Leak Guard
//
// When the number of handlers registered for a single event exceeds the
// configured maximum (default 10, configurable with WithMaxListeners, 0
// disables the check), the bus logs a warning through its slog logger. The
// registration still succeeds; the guard exists to surface accidental leak
// patterns, not to break functionality.
package bus
