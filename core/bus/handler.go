package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler processes one emitted payload. Handlers may block; Emit awaits each
// handler's completion before invoking the next.
type Handler func(ctx context.Context, payload any) error

// HandlerFor wraps a typed function as a Handler with payload conversion.
// The payload may already be a T, raw JSON bytes, or a map produced by a JSON
// round-trip; anything else fails with a conversion error.
//
// Example:
//
//	b.On("task.created", bus.HandlerFor(func(ctx context.Context, t TaskCreated) error {
//	    return notify(ctx, t.ID)
//	}))
func HandlerFor[T any](fn func(context.Context, T) error) Handler {
	return func(ctx context.Context, payload any) error {
		typed, err := convertPayload[T](payload)
		if err != nil {
			return err
		}
		return fn(ctx, typed)
	}
}

// convertPayload attempts to interpret payload as type T.
func convertPayload[T any](payload any) (T, error) {
	var zero T

	// Direct type match - payload is already the correct type
	if v, ok := payload.(T); ok {
		return v, nil
	}

	// Raw JSON bytes
	var data []byte
	switch raw := payload.(type) {
	case []byte:
		data = raw
	case json.RawMessage:
		data = raw
	}
	if data != nil {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return zero, fmt.Errorf("bus: failed to unmarshal payload: %w", err)
		}
		return v, nil
	}

	// Map produced by a JSON round-trip of an untyped payload. Re-marshal so
	// the decoder can populate the concrete type.
	if m, ok := payload.(map[string]any); ok {
		data, err := json.Marshal(m)
		if err != nil {
			return zero, fmt.Errorf("bus: failed to marshal map payload: %w", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return zero, fmt.Errorf("bus: failed to unmarshal map payload: %w", err)
		}
		return v, nil
	}

	return zero, fmt.Errorf("bus: unexpected payload type: %T", payload)
}
