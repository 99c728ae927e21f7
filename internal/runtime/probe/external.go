package probe

import (
	"context"

	"github.com/drblury/probeflow/internal/runtime/broker"
)

// ExternalProbe is a probe fed by events other processes publish to its
// routing key on the probes exchange.
type ExternalProbe struct {
	*Probe
	consumer *broker.Consumer
}

// NewExternal creates the probe and starts consuming from probes. It returns
// once the subscription is active.
func NewExternal(ctx context.Context, probes *broker.Endpoint, routingKey string, opts ...Option) (*ExternalProbe, error) {
	p := New(routingKey, opts...)
	consumer, err := broker.NewConsumer(probes, routingKey, p,
		broker.WithConsumerLogger(p.log),
		broker.WithConsumerMetrics(p.metrics),
	)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}
	return &ExternalProbe{Probe: p, consumer: consumer}, nil
}

// Close stops consuming. Stored events stay queryable.
func (p *ExternalProbe) Close() error {
	return p.consumer.Close()
}
