// Package kafka provides the Apache Kafka transport. Topics are created on
// subscribe with a single partition so requests and replies keep their order.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/probeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// SubscriberSaramaConfig starts fresh consumers at the oldest offset. Reply
// topics are created lazily, so a reply may land before the consumer joins.
func SubscriberSaramaConfig() *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.ClientID = "probeflow"
	return cfg
}

// TopicDetails describes topics created on subscribe.
func TopicDetails() *sarama.TopicDetail {
	return &sarama.TopicDetail{
		NumPartitions:     1,
		ReplicationFactor: 1,
	}
}

// Build creates a Kafka publisher and subscriber. An empty consumer group
// makes the subscriber read every partition without committing offsets.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	consumerGroup := cfg.GetKafkaConsumerGroup()

	publisherSarama := kafka.DefaultSaramaSyncPublisherConfig()
	publisherSarama.ClientID = "probeflow"

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherSarama,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:                brokers,
			Unmarshaler:            kafka.DefaultMarshaler{},
			ConsumerGroup:          consumerGroup,
			OverwriteSaramaConfig:  SubscriberSaramaConfig(),
			InitializeTopicDetails: TopicDetails(),
			OTELEnabled:            true,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	logger.Info("Created Kafka transport", watermill.LogFields{
		"brokers":        len(brokers),
		"consumer_group": consumerGroup,
		"exchange":       cfg.GetExchange(),
	})

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
