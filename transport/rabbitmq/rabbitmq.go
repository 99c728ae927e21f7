// Package rabbitmq provides the RabbitMQ/AMQP transport. Every transport
// built here publishes to one direct exchange; each topic is both the
// routing key and the name of a non-durable, exclusive, auto-deleted queue.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/probeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ExchangeType is the AMQP exchange type declared for every exchange.
const ExchangeType = "direct"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// TopologyConfig returns the AMQP configuration for exchange. An empty
// exchange name falls back to one exchange per topic.
func TopologyConfig(url, exchange string) amqp.Config {
	cfg := amqp.NewNonDurablePubSubConfig(url, QueueName)

	cfg.Exchange.Type = ExchangeType
	cfg.Exchange.Durable = false
	if exchange != "" {
		cfg.Exchange.GenerateName = func(string) string { return exchange }
	}

	cfg.Queue.Durable = false
	cfg.Queue.Exclusive = true
	cfg.Queue.AutoDelete = true

	cfg.QueueBind.GenerateRoutingKey = RoutingKey
	cfg.Publish.GenerateRoutingKey = RoutingKey
	return cfg
}

// QueueName names the queue consuming topic.
func QueueName(topic string) string {
	return topic
}

// RoutingKey maps a topic to its routing key.
func RoutingKey(topic string) string {
	return topic
}

// Build connects to the broker and returns a publisher/subscriber pair
// sharing one connection.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	amqpConfig := TopologyConfig(url, cfg.GetExchange())

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	logger.Info("Created RabbitMQ transport", watermill.LogFields{
		"exchange":      cfg.GetExchange(),
		"exchange_type": ExchangeType,
	})

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
