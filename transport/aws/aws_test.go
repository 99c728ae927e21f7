package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/probeflow/transport"
	"github.com/drblury/probeflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "rpc_exchange-probe-1", TopicName("rpc_exchange.probe-1"))
	assert.Equal(t, "rpc-reply-01J0ABC", TopicName("rpc.reply.01J0ABC"))
	assert.Len(t, TopicName(string(make([]byte, 300))), 256)
}

func withFactories(t *testing.T) {
	t.Helper()
	loader, resolver := DefaultConfigLoader, TopicResolverFactory
	pubFactory, subFactory := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory = loader, resolver
		PublisherFactory, SubscriberFactory = pubFactory, subFactory
	})

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
}

func TestBuildRewritesTopics(t *testing.T) {
	withFactories(t)
	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}

	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.NotEmpty(t, cfg.OptFns)
		return pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.NotEmpty(t, sqsCfg.OptFns)
		return sub, nil
	}

	tr, err := Build(context.Background(), &transporttest.StaticConfig{
		AWSRegion:   "eu-west-1",
		AWSEndpoint: "http://localhost:4566",
	}, watermill.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("probes_exchange.cpu", message.NewMessage("1", nil)))
	_, err = tr.Subscriber.Subscribe(context.Background(), "rpc.reply.X")
	require.NoError(t, err)

	assert.Equal(t, []string{"probes_exchange-cpu"}, pub.Topics)
	assert.Equal(t, []string{"rpc-reply-X"}, sub.Topics)

	require.NoError(t, tr.Close())
	assert.True(t, pub.Closed)
	assert.True(t, sub.Closed)
}

func TestBuildErrors(t *testing.T) {
	withFactories(t)
	cfg := &transporttest.StaticConfig{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("config error")
	}
	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	assert.ErrorContains(t, err, "config error")

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	pub := &transporttest.Publisher{}
	PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("subscriber error")
	}
	_, err = Build(context.Background(), cfg, watermill.NopLogger{})
	assert.EqualError(t, err, "subscriber error")
	assert.True(t, pub.Closed)

	_, err = Build(context.Background(), &transporttest.StaticConfig{AWSEndpoint: "://bad"}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "failed to parse AWS endpoint")
}

func TestResolveAccountAndRegion(t *testing.T) {
	log := watermill.NopLogger{}

	account, region := resolveAccountAndRegion(&transporttest.StaticConfig{AWSAccountID: "123456789012", AWSRegion: "eu-west-1"}, log, "us-east-1")
	assert.Equal(t, "123456789012", account)
	assert.Equal(t, "eu-west-1", region)

	account, region = resolveAccountAndRegion(&transporttest.StaticConfig{AWSEndpoint: "http://localhost:4566"}, log, "us-east-1")
	assert.Equal(t, localstackAccountID, account)
	assert.Equal(t, "us-east-1", region)
}
