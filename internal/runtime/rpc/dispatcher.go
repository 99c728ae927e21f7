package rpc

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
)

// Handler answers decoded requests. The returned value becomes the response
// result.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

// HandlerFunc handles a single operation.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Dispatcher routes requests by operation.
type Dispatcher map[Operation]HandlerFunc

// NewDispatcher copies entries into a Dispatcher. Entries with an invalid
// operation or a nil handler are rejected.
func NewDispatcher(entries map[Operation]HandlerFunc) (Dispatcher, error) {
	d := make(Dispatcher, len(entries))
	for op, fn := range entries {
		if !op.Valid() {
			return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownOperation, op)
		}
		if fn == nil {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrHandlerRequired, op)
		}
		d[op] = fn
	}
	return d, nil
}

// Handle runs the handler registered for req.Operation. Unregistered
// operations return ErrUnknownOperation.
func (d Dispatcher) Handle(ctx context.Context, req Request) (any, error) {
	fn, ok := d[req.Operation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownOperation, req.Operation)
	}
	return fn(ctx, req)
}

// Operations returns the registered operation tags.
func (d Dispatcher) Operations() []Operation {
	out := make([]Operation, 0, len(d))
	for op := range d {
		out = append(out, op)
	}
	return out
}
