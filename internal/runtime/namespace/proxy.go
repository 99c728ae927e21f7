package namespace

import (
	"context"
	"encoding/json"

	"github.com/drblury/probeflow/internal/runtime/broker"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

// Caller sends one request and returns the decoded reply.
type Caller interface {
	Call(ctx context.Context, req rpc.Request) (rpc.Response, error)
}

// Proxy reads and writes the variables of a remote namespace. Failures are
// returned to the caller unchanged.
type Proxy struct {
	caller Caller
	log    loggingpkg.ServiceLogger
}

// NewProxy returns a proxy sending requests through caller.
func NewProxy(caller Caller, log loggingpkg.ServiceLogger) *Proxy {
	return &Proxy{caller: caller, log: loggingpkg.OrNop(log)}
}

// Dial creates an RPC client for the namespace served under routingKey on
// endpoint. The client is returned so the caller can close it.
func Dial(ctx context.Context, endpoint *broker.Endpoint, routingKey string, log loggingpkg.ServiceLogger, opts ...rpc.ClientOption) (*Proxy, *rpc.Client, error) {
	opts = append([]rpc.ClientOption{rpc.WithLogger(log)}, opts...)
	client, err := rpc.NewClient(ctx, endpoint.Publisher(), endpoint.Subscriber(), endpoint.Topic(routingKey), opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewProxy(client, log), client, nil
}

func (p *Proxy) call(ctx context.Context, op rpc.Operation, params ...any) (rpc.Response, error) {
	req, err := rpc.NewRequest(op, params...)
	if err != nil {
		return rpc.Response{}, err
	}
	resp, err := p.caller.Call(ctx, req)
	if err != nil {
		p.log.Debug("Namespace request failed", loggingpkg.LogFields{
			"operation": string(op),
			"error":     err.Error(),
		})
	}
	return resp, err
}

// GetVariable returns the remote value of name. A null reply means the
// variable is unset or the operation was not understood; both report
// ok == false.
func (p *Proxy) GetVariable(ctx context.Context, name string) (json.RawMessage, bool, error) {
	if name == "" {
		return nil, false, errspkg.ErrVariableNameRequired
	}
	resp, err := p.call(ctx, rpc.NamespaceGetVariable, name)
	if err != nil {
		return nil, false, err
	}
	if resp.IsNull() {
		return nil, false, nil
	}
	return resp.Result, true, nil
}

// SetVariable writes value remotely and returns the previous value.
func (p *Proxy) SetVariable(ctx context.Context, name string, value any) (json.RawMessage, error) {
	if name == "" {
		return nil, errspkg.ErrVariableNameRequired
	}
	resp, err := p.call(ctx, rpc.NamespaceSetVariable, name, value)
	if err != nil {
		return nil, err
	}
	if resp.IsNull() {
		return nil, nil
	}
	return resp.Result, nil
}

// GetAs decodes the remote value of name into a T.
func GetAs[T any](ctx context.Context, p *Proxy, name string) (T, bool, error) {
	var out T
	raw, ok, err := p.GetVariable(ctx, name)
	if err != nil || !ok {
		return out, ok, err
	}
	resp := rpc.Response{Result: raw}
	return out, true, resp.Decode(&out)
}
