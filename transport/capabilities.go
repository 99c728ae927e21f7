package transport

// Capabilities describes what a transport backend offers to the RPC and
// event layers.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// SupportsOrdering indicates messages on one topic are delivered in order.
	SupportsOrdering bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsAck and SupportsNack report explicit (negative) acknowledgment.
	SupportsAck  bool
	SupportsNack bool

	// SupportsExclusiveQueues indicates private, auto-deleted queues can back
	// reply topics.
	SupportsExclusiveQueues bool

	// SupportsRoutingKeys indicates topics map to routing keys on a shared
	// exchange.
	SupportsRoutingKeys bool

	// InProcess indicates publisher and subscriber only reach the current process.
	InProcess bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// CanCarry reports whether a payload of size bytes fits the transport limit.
func (c Capabilities) CanCarry(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		InProcess:        true,
	}

	// RabbitMQCapabilities for the RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                    "rabbitmq",
		SupportsOrdering:        true,
		SupportsTracing:         true,
		SupportsAck:             true,
		SupportsNack:            true,
		SupportsExclusiveQueues: true,
		SupportsRoutingKeys:     true,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576, // Default 1MB
	}

	// KafkaCapabilities for the Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	// AWSCapabilities for the AWS SNS/SQS transport.
	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsTracing: true,
		SupportsAck:     true,
		SupportsNack:    true,
		MaxMessageSize:  262144, // 256KB
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
