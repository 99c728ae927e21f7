package broker

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

// Consumer subscribes to one routing key and hands every decoded event to a
// listener. Undecodable messages are logged and acknowledged.
type Consumer struct {
	endpoint   *Endpoint
	routingKey string
	listener   event.Listener
	log        loggingpkg.ServiceLogger
	metrics    *observability.Metrics

	mu     sync.Mutex
	router *message.Router
	done   chan error
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(log loggingpkg.ServiceLogger) ConsumerOption {
	return func(c *Consumer) {
		c.log = log
	}
}

// WithConsumerMetrics counts ingested events.
func WithConsumerMetrics(m *observability.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// NewConsumer returns a consumer for routingKey on endpoint. Call Start to
// begin receiving.
func NewConsumer(endpoint *Endpoint, routingKey string, listener event.Listener, opts ...ConsumerOption) (*Consumer, error) {
	switch {
	case endpoint == nil:
		return nil, errspkg.ErrSubscriberRequired
	case routingKey == "":
		return nil, errspkg.ErrTopicRequired
	case listener == nil:
		return nil, errspkg.ErrHandlerRequired
	}
	c := &Consumer{endpoint: endpoint, routingKey: routingKey, listener: listener}
	for _, opt := range opts {
		opt(c)
	}
	c.log = loggingpkg.OrNop(c.log).With(loggingpkg.LogFields{
		"routing_key": routingKey,
		"exchange":    endpoint.Exchange(),
	})
	return c, nil
}

// Start subscribes and returns once the subscription is active, so events
// published afterwards are not missed.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.router != nil {
		return nil
	}

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(c.log))
	if err != nil {
		return err
	}
	router.AddMiddleware(middleware.Recoverer)
	topic := c.endpoint.Topic(c.routingKey)
	router.AddNoPublisherHandler("consumer-"+topic, topic, c.endpoint.Subscriber(), c.handle)

	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()

	select {
	case <-router.Running():
	case err := <-done:
		return errspkg.Transport("start consumer", err)
	case <-ctx.Done():
		_ = router.Close()
		return ctx.Err()
	}

	c.router, c.done = router, done
	c.log.Info("Consumer started", nil)
	return nil
}

func (c *Consumer) handle(msg *message.Message) error {
	e, err := event.Unmarshal(msg.Payload)
	if err != nil {
		c.log.Error("Dropping undecodable event", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	c.listener.OnEvent(msg.Context(), e)
	c.metrics.EventIngested(e.Type)
	return nil
}

// Close stops consuming. The endpoint stays open.
func (c *Consumer) Close() error {
	c.mu.Lock()
	router, done := c.router, c.done
	c.router, c.done = nil, nil
	c.mu.Unlock()

	if router == nil {
		return nil
	}
	err := router.Close()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}
