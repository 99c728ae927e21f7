package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets how long a call waits for its reply.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log loggingpkg.ServiceLogger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithMetrics records call counts and latencies.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithReplyPrefix sets the prefix of the private reply topic.
func WithReplyPrefix(prefix string) ClientOption {
	return func(c *Client) {
		c.replyPrefix = prefix
	}
}

// Client sends requests to one server topic and waits for the correlated
// replies on a private reply topic. Calls may overlap; each one is matched
// by its own correlation id.
type Client struct {
	publisher    message.Publisher
	requestTopic string
	replyTopic   string
	replyPrefix  string
	timeout      time.Duration
	log          loggingpkg.ServiceLogger
	metrics      *observability.Metrics

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  bool
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClient subscribes to a fresh reply topic and returns a client sending
// requests to requestTopic.
func NewClient(ctx context.Context, pub message.Publisher, sub message.Subscriber, requestTopic string, opts ...ClientOption) (*Client, error) {
	switch {
	case pub == nil:
		return nil, errspkg.ErrPublisherRequired
	case sub == nil:
		return nil, errspkg.ErrSubscriberRequired
	case requestTopic == "":
		return nil, errspkg.ErrTopicRequired
	}

	c := &Client{
		publisher:    pub,
		requestTopic: requestTopic,
		timeout:      DefaultTimeout,
		pending:      make(map[string]chan []byte),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.replyTopic = idspkg.ReplyTopic(c.replyPrefix)
	c.log = loggingpkg.OrNop(c.log).With(loggingpkg.LogFields{
		"rpc_topic": requestTopic,
		"reply_to":  c.replyTopic,
	})

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	replies, err := sub.Subscribe(subCtx, c.replyTopic)
	if err != nil {
		cancel()
		return nil, errspkg.Transport("subscribe reply topic", err)
	}
	c.cancel = cancel

	c.wg.Add(1)
	go c.consume(replies)
	return c, nil
}

// ReplyTopic returns the private topic replies arrive on.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) consume(replies <-chan *message.Message) {
	defer c.wg.Done()
	for msg := range replies {
		c.deliver(msg)
		msg.Ack()
	}
}

func (c *Client) deliver(msg *message.Message) {
	correlationID := msg.Metadata.Get(metadatapkg.KeyCorrelationID)

	c.mu.Lock()
	ch, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("Dropping stray response", loggingpkg.LogFields{
			"correlation_id": correlationID,
			"message_uuid":   msg.UUID,
		})
		return
	}
	ch <- msg.Payload
}

// MakeRequest publishes payload with a fresh correlation id and waits for the
// matching reply payload.
func (c *Client) MakeRequest(ctx context.Context, payload []byte) ([]byte, error) {
	return c.roundTrip(ctx, payload, "")
}

// Call encodes req, sends it and decodes the reply. A reply carrying a
// remote error is returned together with an ErrRemote error.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	payload, err := EncodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	raw, err := c.roundTrip(ctx, payload, req.Operation)
	if err != nil {
		return Response{}, err
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		return Response{}, err
	}
	return resp, resp.Err()
}

func (c *Client) roundTrip(ctx context.Context, payload []byte, op Operation) (_ []byte, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	correlationID := idspkg.NewCorrelationID()

	ctx, span := observability.StartSpan(ctx, "rpc.call", trace.SpanKindClient, map[string]string{
		"rpc.topic":          c.requestTopic,
		"rpc.operation":      string(op),
		"rpc.correlation_id": correlationID,
	})
	defer func() {
		observability.EndSpan(span, err)
		c.metrics.ObserveClientCall(string(op), outcomeOf(err), time.Since(start))
	}()

	ch := make(chan []byte, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errspkg.ErrClientClosed
	}
	c.pending[correlationID] = ch
	c.mu.Unlock()
	defer c.forget(correlationID)

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(metadatapkg.KeyCorrelationID, correlationID)
	msg.Metadata.Set(metadatapkg.KeyReplyTo, c.replyTopic)
	if op != "" {
		msg.Metadata.Set(metadatapkg.KeyOperation, string(op))
	}
	msg.SetContext(ctx)

	if err := c.publisher.Publish(c.requestTopic, msg); err != nil {
		return nil, errspkg.Transport("publish request", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		c.log.Debug("Request timed out", loggingpkg.LogFields{
			"correlation_id": correlationID,
			"timeout":        c.timeout.String(),
		})
		return nil, fmt.Errorf("%w: no reply for %s within %s", errspkg.ErrTimeout, correlationID, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errspkg.ErrClientClosed
	}
}

func (c *Client) forget(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

// Pending returns the number of calls waiting for a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close unsubscribes from the reply topic and fails every waiting call.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, errspkg.ErrTimeout):
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeError
	}
}
