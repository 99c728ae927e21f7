// Package channel provides the in-memory Go channel transport. Every build in
// a process shares one GoChannel so probes, namespaces and monitors running
// side by side can reach each other.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/probeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

var (
	sharedMu  sync.Mutex
	sharedPub message.Publisher
	sharedSub message.Subscriber
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns the process-wide Go channel transport. Closing the returned
// transport has no effect; use Reset to discard the shared instance.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedPub == nil {
		sharedPub, sharedSub = Factory(gochannel.Config{}, logger)
	}
	return transport.Transport{
		Publisher:  nopClosePublisher{sharedPub},
		Subscriber: nopCloseSubscriber{sharedSub},
	}, nil
}

// Reset closes and forgets the shared instance.
func Reset() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedPub == nil {
		return nil
	}
	err := transport.Transport{Publisher: sharedPub, Subscriber: sharedSub}.Close()
	sharedPub, sharedSub = nil, nil
	return err
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type nopClosePublisher struct {
	message.Publisher
}

func (nopClosePublisher) Close() error { return nil }

type nopCloseSubscriber struct {
	message.Subscriber
}

func (nopCloseSubscriber) Close() error { return nil }
