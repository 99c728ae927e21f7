package namespace

import (
	"context"
	"encoding/json"

	"github.com/drblury/probeflow/internal/runtime/broker"
	"github.com/drblury/probeflow/internal/runtime/event"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

func (n *Namespace) newDispatcher() rpc.Dispatcher {
	d, err := rpc.NewDispatcher(map[rpc.Operation]rpc.HandlerFunc{
		rpc.NamespaceGetVariable: n.handleGet,
		rpc.NamespaceSetVariable: n.handleSet,
	})
	if err != nil {
		panic(err)
	}
	return d
}

func (n *Namespace) handleGet(ctx context.Context, req rpc.Request) (any, error) {
	var name string
	if err := req.Param(0, &name); err != nil {
		return nil, err
	}
	value, ok, err := n.GetVariable(ctx, name)
	if err != nil || !ok {
		return nil, err
	}
	return value, nil
}

func (n *Namespace) handleSet(ctx context.Context, req rpc.Request) (any, error) {
	var name string
	if err := req.Param(0, &name); err != nil {
		return nil, err
	}
	var value json.RawMessage
	if err := req.Param(1, &value); err != nil {
		return nil, err
	}
	previous, err := n.SetVariable(ctx, name, value)
	if err != nil || previous == nil {
		return nil, err
	}
	return previous, nil
}

// Handle answers a namespace request. It satisfies rpc.Handler.
func (n *Namespace) Handle(ctx context.Context, req rpc.Request) (any, error) {
	return n.dispatcher.Handle(ctx, req)
}

// NewServer returns an RPC server answering requests sent to the namespace
// routing key on endpoint.
func (n *Namespace) NewServer(endpoint *broker.Endpoint, deps rpc.ServerDependencies) (*rpc.Server, error) {
	if deps.Logger == nil {
		deps.Logger = n.log
	}
	if deps.Metrics == nil {
		deps.Metrics = n.metrics
	}
	return rpc.NewServer(endpoint.Publisher(), endpoint.Subscriber(), endpoint.Topic(n.routingKey), n, deps)
}

// Serve answers requests until ctx is cancelled.
func (n *Namespace) Serve(ctx context.Context, endpoint *broker.Endpoint, deps rpc.ServerDependencies) error {
	srv, err := n.NewServer(endpoint, deps)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}

// PublishChanges forwards the change events of this namespace to its routing
// key on endpoint, normally the namespace exchange.
func (n *Namespace) PublishChanges(endpoint *broker.Endpoint) *broker.Producer {
	producer := broker.NewProducer(endpoint, n.routingKey, n.log)
	n.runtime.RegisterEventListener(event.ListenerFunc(func(ctx context.Context, e event.Event) {
		if e.Type != ChangeEventType {
			return
		}
		if change, err := DecodeChange(e); err == nil && change.Namespace != n.routingKey {
			return
		}
		producer.OnEvent(ctx, e)
	}))
	return producer
}

// WatchChanges starts a consumer delivering the change events published for
// routingKey on endpoint to listener.
func WatchChanges(ctx context.Context, endpoint *broker.Endpoint, routingKey string, listener event.Listener, opts ...broker.ConsumerOption) (*broker.Consumer, error) {
	consumer, err := broker.NewConsumer(endpoint, routingKey, listener, opts...)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}
	return consumer, nil
}
