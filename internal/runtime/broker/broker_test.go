package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	"github.com/drblury/probeflow/transport"
	"github.com/drblury/probeflow/transport/channel"
	"github.com/drblury/probeflow/transport/transporttest"
)

func newEndpoint(t *testing.T, exchange string) (*Endpoint, *gochannel.GoChannel) {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	ep, err := NewEndpoint(ps, ps, exchange, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })
	return ep, ps
}

type recorder struct {
	events chan event.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event.Event, 16)}
}

func (r *recorder) OnEvent(_ context.Context, e event.Event) {
	r.events <- e
}

func (r *recorder) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return event.Event{}
	}
}

func TestEndpointTopic(t *testing.T) {
	ep, _ := newEndpoint(t, "probes_exchange")
	assert.Equal(t, "probes_exchange.cpu", ep.Topic("cpu"))
	assert.Equal(t, "probes_exchange", ep.Exchange())

	bare, _ := newEndpoint(t, "")
	assert.Equal(t, "cpu", bare.Topic("cpu"))
}

func TestNewEndpointValidation(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer ps.Close()

	_, err := NewEndpoint(nil, ps, "x", nil)
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
	_, err = NewEndpoint(ps, nil, "x", nil)
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
}

func TestEndpointPublishCarriesRoutingKey(t *testing.T) {
	ep, ps := newEndpoint(t, "probes_exchange")
	msgs, err := ps.Subscribe(context.Background(), "probes_exchange.cpu")
	require.NoError(t, err)

	require.NoError(t, ep.Publish(context.Background(), "cpu", []byte(`{}`), metadatapkg.New("k", "v")))

	select {
	case msg := <-msgs:
		assert.Equal(t, "cpu", msg.Metadata.Get(metadatapkg.KeyRoutingKey))
		assert.Equal(t, "v", msg.Metadata.Get("k"))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	assert.ErrorIs(t, ep.Publish(context.Background(), "", nil, nil), errspkg.ErrTopicRequired)
}

func TestEndpointPublishWrapsTransportErrors(t *testing.T) {
	ep, err := NewEndpoint(failingPublisher{}, &transporttest.Subscriber{}, "x", nil)
	require.NoError(t, err)

	err = ep.Publish(context.Background(), "cpu", nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrTransport)
}

func TestEndpointSharedSubscriberSurvivesClose(t *testing.T) {
	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
	ep, err := NewEndpoint(pub, sub, "x", nil)
	require.NoError(t, err)

	require.NoError(t, ep.Subscriber().Close())
	assert.False(t, sub.Closed)

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
	assert.True(t, sub.Closed)
	assert.True(t, pub.Closed)
}

func TestProducerToConsumer(t *testing.T) {
	ep, _ := newEndpoint(t, "probes_exchange")
	rec := newRecorder()

	consumer, err := NewConsumer(ep, "cpu", rec)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(context.Background()))
	t.Cleanup(func() { _ = consumer.Close() })

	producer := NewProducer(ep, "cpu", nil)
	e, err := event.At("cpu.load", 100, map[string]float64{"load": 0.5})
	require.NoError(t, err)
	producer.OnEvent(context.Background(), e)

	got := rec.next(t)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, int64(100), got.Timestamp)
	assert.JSONEq(t, `{"load":0.5}`, string(got.Payload))
}

func TestConsumerDropsUndecodableMessages(t *testing.T) {
	ep, ps := newEndpoint(t, "probes_exchange")
	rec := newRecorder()

	consumer, err := NewConsumer(ep, "cpu", rec)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Close()

	require.NoError(t, ps.Publish("probes_exchange.cpu", message.NewMessage("bad", []byte("not json"))))

	e, err := event.New("cpu.load", 1)
	require.NoError(t, err)
	require.NoError(t, NewProducer(ep, "cpu", nil).Publish(context.Background(), e))

	assert.Equal(t, e.ID, rec.next(t).ID)
}

func TestConsumerValidationAndIdempotentClose(t *testing.T) {
	ep, _ := newEndpoint(t, "x")

	_, err := NewConsumer(nil, "cpu", newRecorder())
	assert.Error(t, err)
	_, err = NewConsumer(ep, "", newRecorder())
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
	_, err = NewConsumer(ep, "cpu", nil)
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)

	consumer, err := NewConsumer(ep, "cpu", newRecorder())
	require.NoError(t, err)
	assert.NoError(t, consumer.Close())
}

func channelConfig(t *testing.T) *configpkg.Config {
	t.Helper()
	cfg, err := configpkg.DefaultEnvironment().Config()
	require.NoError(t, err)
	cfg.PubSubSystem = channel.TransportName
	return cfg
}

func TestOpenChannelTransport(t *testing.T) {
	t.Cleanup(func() { _ = channel.Reset() })
	cfg := channelConfig(t)

	probes, err := Open(context.Background(), cfg, cfg.ProbesExchange, nil)
	require.NoError(t, err)
	defer probes.Close()
	other, err := Open(context.Background(), cfg, cfg.ProbesExchange, nil)
	require.NoError(t, err)
	defer other.Close()

	rec := newRecorder()
	consumer, err := NewConsumer(other, "cpu", rec)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Close()

	e, err := event.New("cpu.load", 1)
	require.NoError(t, err)
	require.NoError(t, NewProducer(probes, "cpu", nil).Publish(context.Background(), e))
	assert.Equal(t, e.ID, rec.next(t).ID)
}

func TestOpenPassesExchange(t *testing.T) {
	original := buildTransport
	t.Cleanup(func() { buildTransport = original })

	var seen string
	buildTransport = func(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
		seen = cfg.GetExchange()
		return transport.Transport{}, errors.New("dial failed")
	}

	cfg := channelConfig(t)
	_, err := Open(context.Background(), cfg, "namespace_exchange", nil)
	assert.ErrorIs(t, err, errspkg.ErrTransport)
	assert.Equal(t, "namespace_exchange", seen)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := channelConfig(t)
	cfg.ProbesExchange = ""

	_, err := Open(context.Background(), cfg, "probes_exchange", nil)
	var cfgErr errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &cfgErr)
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broken pipe") }
func (failingPublisher) Close() error                              { return nil }
