package probe

import (
	"context"

	"github.com/drblury/probeflow/internal/runtime/broker"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

func (p *Probe) newDispatcher() rpc.Dispatcher {
	d, err := rpc.NewDispatcher(map[rpc.Operation]rpc.HandlerFunc{
		rpc.ProbeClean:         sinceTimestamp(func(ts int64) any { return p.CleanData(ts) }),
		rpc.ProbeCount:         sinceTimestamp(func(ts int64) any { return p.Count(ts) }),
		rpc.ProbeCountAndClean: sinceTimestamp(func(ts int64) any { return p.CountAndClean(ts) }),
		rpc.ProbeFetch:         sinceTimestamp(func(ts int64) any { return p.Fetch(ts) }),
		rpc.ProbeFetchAndClean: sinceTimestamp(func(ts int64) any { return p.FetchAndClean(ts) }),
	})
	if err != nil {
		panic(err)
	}
	return d
}

func sinceTimestamp(fn func(ts int64) any) rpc.HandlerFunc {
	return func(_ context.Context, req rpc.Request) (any, error) {
		var ts int64
		if err := req.Param(0, &ts); err != nil {
			return nil, err
		}
		return fn(ts), nil
	}
}

// Handle answers a probe request. It satisfies rpc.Handler.
func (p *Probe) Handle(ctx context.Context, req rpc.Request) (any, error) {
	return p.dispatcher.Handle(ctx, req)
}

// NewServer returns an RPC server answering requests sent to the probe's
// routing key on endpoint.
func (p *Probe) NewServer(endpoint *broker.Endpoint, deps rpc.ServerDependencies) (*rpc.Server, error) {
	if deps.Logger == nil {
		deps.Logger = p.log
	}
	if deps.Metrics == nil {
		deps.Metrics = p.metrics
	}
	return rpc.NewServer(endpoint.Publisher(), endpoint.Subscriber(), endpoint.Topic(p.routingKey), p, deps)
}

// Serve answers requests until ctx is cancelled.
func (p *Probe) Serve(ctx context.Context, endpoint *broker.Endpoint, deps rpc.ServerDependencies) error {
	srv, err := p.NewServer(endpoint, deps)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}
