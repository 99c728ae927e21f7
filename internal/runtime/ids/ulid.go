package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewCorrelationID returns the token that links an RPC request to its response.
func NewCorrelationID() string {
	return CreateULID()
}

// ReplyTopic returns a private reply topic name for one RPC client.
func ReplyTopic(prefix string) string {
	if prefix == "" {
		prefix = "rpc.reply"
	}
	return prefix + "." + CreateULID()
}

// UniqueKey derives a scheduler identity from base that does not collide with
// earlier keys derived from the same base.
func UniqueKey(base string) string {
	return base + "#" + CreateULID()
}

// Time extracts the millisecond timestamp encoded in a ULID string.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
