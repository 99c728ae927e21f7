package registry

import (
	"context"

	"github.com/drblury/probeflow/internal/runtime/event"
)

// EventProducer posts typed events of one type to a runtime bus.
type EventProducer struct {
	runtime   *Runtime
	eventType string
}

// NewEventProducer returns a producer posting events of eventType to rt.
func NewEventProducer(rt *Runtime, eventType string) *EventProducer {
	return &EventProducer{runtime: rt, eventType: eventType}
}

// Post wraps payload in a new event and posts it. The posted event is
// returned so callers can correlate it later.
func (p *EventProducer) Post(ctx context.Context, payload any) (event.Event, error) {
	e, err := event.New(p.eventType, payload)
	if err != nil {
		return event.Event{}, err
	}
	p.runtime.PostEvent(ctx, e)
	return e, nil
}
