// Package transporttest provides a static transport configuration and
// inert publisher/subscriber doubles for transport tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StaticConfig satisfies transport.Config with plain fields.
type StaticConfig struct {
	PubSubSystem       string
	Exchange           string
	RabbitMQURL        string
	NATSURL            string
	KafkaBrokers       []string
	KafkaConsumerGroup string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *StaticConfig) GetPubSubSystem() string       { return c.PubSubSystem }
func (c *StaticConfig) GetExchange() string           { return c.Exchange }
func (c *StaticConfig) GetRabbitMQURL() string        { return c.RabbitMQURL }
func (c *StaticConfig) GetNATSURL() string            { return c.NATSURL }
func (c *StaticConfig) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c *StaticConfig) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }
func (c *StaticConfig) GetAWSRegion() string          { return c.AWSRegion }
func (c *StaticConfig) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *StaticConfig) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *StaticConfig) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *StaticConfig) GetAWSEndpoint() string        { return c.AWSEndpoint }

// Publisher records the topics it was asked to publish to.
type Publisher struct {
	mu     sync.Mutex
	Topics []string
	Closed bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for range messages {
		p.Topics = append(p.Topics, topic)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Subscriber records subscribed topics and returns closed channels.
type Subscriber struct {
	mu     sync.Mutex
	Topics []string
	Closed bool
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Topics = append(s.Topics, topic)
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
