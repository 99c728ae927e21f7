package event

import "context"

// Listener receives events posted to a runtime bus or emitted by a trigger.
type Listener interface {
	OnEvent(ctx context.Context, e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event)

func (f ListenerFunc) OnEvent(ctx context.Context, e Event) {
	f(ctx, e)
}
