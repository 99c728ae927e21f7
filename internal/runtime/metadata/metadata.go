package metadata

// Reserved keys carried as transport-level message metadata.
const (
	// KeyCorrelationID links an RPC response to the request that caused it.
	KeyCorrelationID = "correlation_id"
	// KeyReplyTo names the topic an RPC response must be published to.
	KeyReplyTo = "reply_to"
	// KeyOperation duplicates the request operation for logging and routing.
	KeyOperation = "rpc_operation"
	// KeyEventType identifies the event type of a published event payload.
	KeyEventType = "event_type"
	// KeyRoutingKey records the routing key an event was published with.
	KeyRoutingKey = "routing_key"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// CorrelationID returns the correlation id header, if any.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}

// ReplyTo returns the reply topic header, if any.
func (m Metadata) ReplyTo() string {
	return m[KeyReplyTo]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
