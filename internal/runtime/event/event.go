// Package event holds the timestamped event value exchanged between probes,
// triggers and namespaces, and the ordered EventSet probes keep them in.
package event

import (
	"encoding/json"
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
)

// Event is an immutable timestamped value. Timestamp is in nanoseconds.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var lastStamp atomic.Int64

// Now returns a nanosecond timestamp strictly greater than every value it
// returned before in this process.
func Now() int64 {
	for {
		now := time.Now().UnixNano()
		prev := lastStamp.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// New builds an event of the given type stamped with Now and a fresh ULID.
func New(eventType string, payload any) (Event, error) {
	return At(eventType, Now(), payload)
}

// At builds an event with an explicit timestamp.
func At(eventType string, timestamp int64, payload any) (Event, error) {
	if eventType == "" {
		return Event{}, errspkg.ErrEventTypeRequired
	}
	raw, err := jsoncodec.Raw(payload)
	if err != nil {
		return Event{}, errspkg.Serialization("encode event payload", err)
	}
	return Event{
		ID:        idspkg.CreateULID(),
		Type:      eventType,
		Timestamp: timestamp,
		Payload:   raw,
	}, nil
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Before reports whether e sorts before other by (Timestamp, ID).
func (e Event) Before(other Event) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	return e.ID < other.ID
}

// Decode unmarshals the payload of e into a T.
func Decode[T any](e Event) (T, error) {
	var out T
	if jsoncodec.IsNull(e.Payload) {
		return out, nil
	}
	if err := jsoncodec.Unmarshal(e.Payload, &out); err != nil {
		return out, errspkg.Serialization("decode event payload", err)
	}
	return out, nil
}

// Marshal encodes e for the wire.
func Marshal(e Event) ([]byte, error) {
	data, err := jsoncodec.Marshal(e)
	if err != nil {
		return nil, errspkg.Serialization("encode event", err)
	}
	return data, nil
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := jsoncodec.Unmarshal(data, &e); err != nil {
		return Event{}, errspkg.Serialization("decode event", err)
	}
	if e.ID == "" || e.Type == "" {
		return Event{}, errspkg.Serialization("decode event", errspkg.ErrEventTypeRequired)
	}
	return e, nil
}
