package probeflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestServiceExportValidatesConfig(t *testing.T) {
	if _, err := NewService(nil, nil, ServiceDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}

	cfg, err := DefaultEnvironment().Config()
	if err != nil {
		t.Fatalf("default environment: %v", err)
	}
	cfg.ProbesExchange = ""
	_, err = NewService(cfg, nil, ServiceDependencies{})
	var cfgErr ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigValidationError, got %v", err)
	}
}

func TestProbeExports(t *testing.T) {
	p := NewProbe("cpu", WithEventTypes("load"))
	e, err := NewEventAt("load", 10, 0.25)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if !p.Insert(e) {
		t.Fatal("expected insert to succeed")
	}

	other, _ := NewEvent("temperature", 20)
	if p.Insert(other) {
		t.Fatal("expected unaccepted event type to be rejected")
	}

	value, err := DecodeEvent[float64](e)
	if err != nil || value != 0.25 {
		t.Fatalf("decode = %v, %v", value, err)
	}
}

func TestNamespaceExports(t *testing.T) {
	n, err := NewNamespace("settings", NewMemoryStore())
	if err != nil {
		t.Fatalf("new namespace: %v", err)
	}
	ctx := context.Background()
	if _, err := n.SetVariable(ctx, "x", 42); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, err := n.GetVariable(ctx, "x")
	if err != nil || !ok || string(raw) != "42" {
		t.Fatalf("get = %s, %v, %v", raw, ok, err)
	}
	if _, err := NewNamespace("settings", nil); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected store required error, got %v", err)
	}
}

func TestTriggerExports(t *testing.T) {
	if _, err := NewTrigger(nil, EverySecond); !errors.Is(err, ErrTimerRequired) {
		t.Fatalf("expected timer required error, got %v", err)
	}
	if err := ParseExpression(Daily); err != nil {
		t.Fatalf("daily should parse: %v", err)
	}

	timer := NewCronTimer(nil)
	defer timer.Stop()
	tr, err := NewTrigger(timer, Hourly)
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	if err := tr.Pause(); err != nil || !tr.IsPaused() {
		t.Fatalf("pause: %v", err)
	}
	if err := tr.UpdateExpression("nonsense"); !IsScheduleKind(err, KindSchedule) {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	if md["key"] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestTransportRegistryExports(t *testing.T) {
	for _, name := range []string{"channel", "rabbitmq", "nats", "kafka", "aws"} {
		if !DefaultTransportRegistry.Has(name) {
			t.Fatalf("expected transport %q to be registered", name)
		}
	}
	if !GetCapabilities("rabbitmq").SupportsReliableDelivery() {
		t.Fatal("expected rabbitmq to support reliable delivery")
	}
	if WithRPCTimeout(time.Second) == nil {
		t.Fatal("expected client option")
	}
}
