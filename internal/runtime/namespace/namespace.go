// Package namespace exposes shared variables to local code and, through the
// RPC dispatch table, to remote monitors. Every successful write posts a
// ChangeEvent to the namespace runtime bus.
package namespace

import (
	"context"
	"encoding/json"
	"fmt"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/observability"
	"github.com/drblury/probeflow/internal/runtime/registry"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

// ChangeEventType is the event type posted after a variable is written.
const ChangeEventType = "namespace.change"

// Change is the payload of a change event.
type Change struct {
	Namespace string          `json:"namespace"`
	Variable  string          `json:"variable"`
	Previous  json.RawMessage `json:"previous"`
	Value     json.RawMessage `json:"value"`
}

// DecodeChange extracts the change carried by e.
func DecodeChange(e event.Event) (Change, error) {
	if e.Type != ChangeEventType {
		return Change{}, fmt.Errorf("not a change event: %q", e.Type)
	}
	return event.Decode[Change](e)
}

// Option configures a Namespace.
type Option func(*Namespace)

// WithRuntime posts change events to rt instead of a private runtime.
func WithRuntime(rt *registry.Runtime) Option {
	return func(n *Namespace) {
		n.runtime = rt
	}
}

// WithLogger sets the namespace logger.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(n *Namespace) {
		n.log = log
	}
}

// WithMetrics counts variable updates and RPC calls.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Namespace) {
		n.metrics = m
	}
}

// Namespace is a named table of variables. Writes are last-write-wins.
type Namespace struct {
	routingKey string
	store      VariableStore
	runtime    *registry.Runtime
	log        loggingpkg.ServiceLogger
	metrics    *observability.Metrics
	dispatcher rpc.Dispatcher
}

// New returns a namespace served under routingKey and backed by store.
func New(routingKey string, store VariableStore, opts ...Option) (*Namespace, error) {
	if routingKey == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	n := &Namespace{routingKey: routingKey, store: store}
	for _, opt := range opts {
		opt(n)
	}
	n.log = loggingpkg.OrNop(n.log).With(loggingpkg.LogFields{"namespace": routingKey})
	if n.runtime == nil {
		n.runtime = registry.New(registry.WithLogger(n.log)).Runtime(registry.RoleNamespace)
	}
	n.dispatcher = n.newDispatcher()
	return n, nil
}

// RoutingKey returns the key the namespace is served and published under.
func (n *Namespace) RoutingKey() string {
	return n.routingKey
}

// Runtime returns the bus change events are posted to.
func (n *Namespace) Runtime() *registry.Runtime {
	return n.runtime
}

// GetVariable returns the value of name. A missing variable is reported by
// ok == false, not by an error.
func (n *Namespace) GetVariable(ctx context.Context, name string) (value json.RawMessage, ok bool, err error) {
	if name == "" {
		return nil, false, errspkg.ErrVariableNameRequired
	}
	return n.store.Get(ctx, name)
}

// SetVariable stores value under name and returns the previous value, nil
// when the variable did not exist.
func (n *Namespace) SetVariable(ctx context.Context, name string, value any) (json.RawMessage, error) {
	if name == "" {
		return nil, errspkg.ErrVariableNameRequired
	}
	raw, err := jsoncodec.Raw(value)
	if err != nil {
		return nil, errspkg.Serialization("encode variable", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	if !jsoncodec.Valid(raw) {
		return nil, errspkg.Serialization("encode variable", fmt.Errorf("invalid JSON value for %q", name))
	}

	previous, err := n.store.Set(ctx, name, raw)
	if err != nil {
		return nil, err
	}
	n.metrics.VariableUpdated(name)

	change, err := event.New(ChangeEventType, Change{
		Namespace: n.routingKey,
		Variable:  name,
		Previous:  previous,
		Value:     raw,
	})
	if err != nil {
		n.log.Error("Failed to build change event", err, loggingpkg.LogFields{"variable": name})
		return previous, nil
	}
	n.runtime.PostEvent(ctx, change)
	return previous, nil
}

// Close closes the store.
func (n *Namespace) Close() error {
	return n.store.Close()
}
