// Package broker connects probeflow components to the message broker. An
// Endpoint scopes a transport to one exchange; Producers publish runtime
// events through it and Consumers feed published events back into a
// listener.
package broker

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	"github.com/drblury/probeflow/transport"
	_ "github.com/drblury/probeflow/transport/transports"
)

var buildTransport = transport.Build

// Endpoint is a publisher/subscriber pair bound to one exchange.
type Endpoint struct {
	exchange   string
	publisher  message.Publisher
	subscriber message.Subscriber
	log        loggingpkg.ServiceLogger

	closeOnce sync.Once
	closeErr  error
}

type exchangeConfig struct {
	*configpkg.Config
	exchange string
}

func (c exchangeConfig) GetExchange() string { return c.exchange }

// Open validates cfg and builds the configured transport for exchange.
func Open(ctx context.Context, cfg *configpkg.Config, exchange string, log loggingpkg.ServiceLogger) (*Endpoint, error) {
	if err := configpkg.ValidateConfig(cfg); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	log = loggingpkg.OrNop(log)

	tr, err := buildTransport(ctx, exchangeConfig{Config: cfg, exchange: exchange}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, errspkg.Transport("open "+cfg.PubSubSystem+" endpoint", err)
	}
	return NewEndpoint(tr.Publisher, tr.Subscriber, exchange, log)
}

// NewEndpoint wraps an existing publisher and subscriber. The endpoint owns
// both and closes them in Close.
func NewEndpoint(pub message.Publisher, sub message.Subscriber, exchange string, log loggingpkg.ServiceLogger) (*Endpoint, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	return &Endpoint{
		exchange:   exchange,
		publisher:  pub,
		subscriber: sub,
		log:        loggingpkg.OrNop(log).With(loggingpkg.LogFields{"exchange": exchange}),
	}, nil
}

// Exchange returns the exchange name.
func (e *Endpoint) Exchange() string {
	return e.exchange
}

// Topic maps a routing key onto the topic carrying it within the exchange.
func (e *Endpoint) Topic(routingKey string) string {
	if e.exchange == "" {
		return routingKey
	}
	return e.exchange + "." + routingKey
}

// Publisher returns the endpoint publisher.
func (e *Endpoint) Publisher() message.Publisher {
	return e.publisher
}

// Subscriber returns a view of the endpoint subscriber whose Close is a
// no-op, so routers and clients sharing it cannot close it for each other.
func (e *Endpoint) Subscriber() message.Subscriber {
	return sharedSubscriber{e.subscriber}
}

// Publish sends payload to the topic of routingKey.
func (e *Endpoint) Publish(ctx context.Context, routingKey string, payload []byte, md metadatapkg.Metadata) error {
	if routingKey == "" {
		return errspkg.ErrTopicRequired
	}
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md.With(metadatapkg.KeyRoutingKey, routingKey))
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return errspkg.Transport("publish", e.publisher.Publish(e.Topic(routingKey), msg))
}

// Close closes the publisher and subscriber once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = transport.Transport{Publisher: e.publisher, Subscriber: e.subscriber}.Close()
		e.log.Debug("Endpoint closed", nil)
	})
	return e.closeErr
}

type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }
