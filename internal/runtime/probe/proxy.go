package probe

import (
	"context"

	"github.com/drblury/probeflow/internal/runtime/broker"
	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

// Caller sends one request and returns the decoded reply.
type Caller interface {
	Call(ctx context.Context, req rpc.Request) (rpc.Response, error)
}

// Proxy queries a remote probe. Every method is best effort: on failure the
// error is logged and returned together with a fallback value (false, 0 or
// an empty slice), so callers that ignore the error still get a usable result.
type Proxy struct {
	caller Caller
	log    loggingpkg.ServiceLogger
}

// NewProxy returns a proxy sending requests through caller.
func NewProxy(caller Caller, log loggingpkg.ServiceLogger) *Proxy {
	return &Proxy{caller: caller, log: loggingpkg.OrNop(log)}
}

// Dial creates an RPC client for the probe served under routingKey on
// endpoint and wraps it in a Proxy. The client is returned so the caller can
// close it.
func Dial(ctx context.Context, endpoint *broker.Endpoint, routingKey string, log loggingpkg.ServiceLogger, opts ...rpc.ClientOption) (*Proxy, *rpc.Client, error) {
	opts = append([]rpc.ClientOption{rpc.WithLogger(log)}, opts...)
	client, err := rpc.NewClient(ctx, endpoint.Publisher(), endpoint.Subscriber(), endpoint.Topic(routingKey), opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewProxy(client, log), client, nil
}

func (p *Proxy) call(ctx context.Context, op rpc.Operation, ts int64, out any) error {
	req, err := rpc.NewRequest(op, ts)
	if err == nil {
		var resp rpc.Response
		if resp, err = p.caller.Call(ctx, req); err == nil {
			err = resp.Decode(out)
		}
	}
	if err != nil {
		p.log.Error("Probe request failed", err, loggingpkg.LogFields{
			"operation": string(op),
			"timestamp": ts,
		})
	}
	return err
}

// CleanData removes the remote events in [ts, now].
func (p *Proxy) CleanData(ctx context.Context, ts int64) (bool, error) {
	var removed bool
	if err := p.call(ctx, rpc.ProbeClean, ts, &removed); err != nil {
		return false, err
	}
	return removed, nil
}

// Count counts the remote events in [ts, now].
func (p *Proxy) Count(ctx context.Context, ts int64) (int, error) {
	var n int
	if err := p.call(ctx, rpc.ProbeCount, ts, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountAndClean removes the remote events in [ts, now] and returns how many
// there were.
func (p *Proxy) CountAndClean(ctx context.Context, ts int64) (int, error) {
	var n int
	if err := p.call(ctx, rpc.ProbeCountAndClean, ts, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Fetch returns the remote events in [ts, now].
func (p *Proxy) Fetch(ctx context.Context, ts int64) ([]event.Event, error) {
	return p.fetch(ctx, rpc.ProbeFetch, ts)
}

// FetchAndClean removes and returns the remote events in [ts, now].
func (p *Proxy) FetchAndClean(ctx context.Context, ts int64) ([]event.Event, error) {
	return p.fetch(ctx, rpc.ProbeFetchAndClean, ts)
}

func (p *Proxy) fetch(ctx context.Context, op rpc.Operation, ts int64) ([]event.Event, error) {
	var events []event.Event
	if err := p.call(ctx, op, ts, &events); err != nil {
		return []event.Event{}, err
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}
