package broker

import (
	"context"

	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
)

// Producer publishes every event it receives to one routing key. Register it
// on a runtime bus to forward local events to the broker.
type Producer struct {
	endpoint   *Endpoint
	routingKey string
	log        loggingpkg.ServiceLogger
}

// NewProducer returns a producer publishing to routingKey on endpoint.
func NewProducer(endpoint *Endpoint, routingKey string, log loggingpkg.ServiceLogger) *Producer {
	return &Producer{
		endpoint:   endpoint,
		routingKey: routingKey,
		log:        loggingpkg.OrNop(log).With(loggingpkg.LogFields{"routing_key": routingKey}),
	}
}

// RoutingKey returns the routing key events are published with.
func (p *Producer) RoutingKey() string {
	return p.routingKey
}

// Publish serialises e and publishes it.
func (p *Producer) Publish(ctx context.Context, e event.Event) error {
	payload, err := event.Marshal(e)
	if err != nil {
		return err
	}
	md := metadatapkg.New(metadatapkg.KeyEventType, e.Type)
	return p.endpoint.Publish(ctx, p.routingKey, payload, md)
}

// OnEvent publishes e, logging failures. Bus delivery has no error path.
func (p *Producer) OnEvent(ctx context.Context, e event.Event) {
	if err := p.Publish(ctx, e); err != nil {
		p.log.Error("Failed to publish event", err, loggingpkg.LogFields{
			"event_id":   e.ID,
			"event_type": e.Type,
		})
	}
}
