// Package brokertest wires endpoints to an in-memory Go channel for tests.
package brokertest

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/probeflow/internal/runtime/broker"
)

// NewPubSub returns a Go channel closed when the test ends.
func NewPubSub(t testing.TB) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// Endpoint returns an endpoint for exchange on ps. Closing it leaves ps open
// so several endpoints can share one channel.
func Endpoint(t testing.TB, ps *gochannel.GoChannel, exchange string) *broker.Endpoint {
	t.Helper()
	ep, err := broker.NewEndpoint(keepOpen{ps}, keepOpenSubscriber{ps}, exchange, nil)
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	return ep
}

type keepOpen struct{ *gochannel.GoChannel }

func (keepOpen) Close() error { return nil }

type keepOpenSubscriber struct{ *gochannel.GoChannel }

func (keepOpenSubscriber) Close() error { return nil }
