package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil || len(cloned) != 0 {
		t.Fatal("expected empty non-nil map")
	}
}

func TestWith(t *testing.T) {
	base := Metadata{KeyCorrelationID: "abc"}
	enriched := base.With(KeyReplyTo, "rpc.reply.1")
	if base.ReplyTo() != "" {
		t.Fatal("expected base map to remain unchanged")
	}
	if enriched.ReplyTo() != "rpc.reply.1" || enriched.CorrelationID() != "abc" {
		t.Fatalf("unexpected enriched map %#v", enriched)
	}
}

func TestNewPairs(t *testing.T) {
	md := New(KeyCorrelationID, "c1", KeyOperation, "PROBE_FETCH", "dangling")
	if len(md) != 2 {
		t.Fatalf("expected dangling key to be ignored, got %#v", md)
	}
	if md[KeyOperation] != "PROBE_FETCH" {
		t.Fatalf("unexpected operation %q", md[KeyOperation])
	}
}

func TestWatermillRoundTrip(t *testing.T) {
	wm := ToWatermill(Metadata{KeyReplyTo: "r"})
	if wm.Get(KeyReplyTo) != "r" {
		t.Fatalf("expected reply_to in watermill metadata, got %#v", wm)
	}
	back := FromWatermill(wm)
	if back.ReplyTo() != "r" {
		t.Fatalf("unexpected conversion %#v", back)
	}
	if len(FromWatermill(message.Metadata{})) != 0 || len(ToWatermill(nil)) != 0 {
		t.Fatal("expected empty conversions")
	}
}
