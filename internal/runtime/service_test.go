package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/probeflow/internal/runtime/broker"
	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/namespace"
	"github.com/drblury/probeflow/internal/runtime/registry"
	"github.com/drblury/probeflow/internal/runtime/trigger"
	"github.com/drblury/probeflow/transport/channel"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func channelConfig(t *testing.T) *configpkg.Config {
	t.Helper()
	t.Cleanup(func() { _ = channel.Reset() })
	cfg, err := configpkg.DefaultEnvironment().Config()
	require.NoError(t, err)
	cfg.PubSubSystem = channel.TransportName
	return cfg
}

type manualTimer struct {
	mu   sync.Mutex
	jobs map[string]func()
}

func (m *manualTimer) Schedule(key, expr string, fn func()) (trigger.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = make(map[string]func())
	}
	m.jobs[key] = fn
	return trigger.Handle{Key: key, Expression: expr}, nil
}

func (m *manualTimer) Unschedule(h trigger.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, h.Key)
	return nil
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	jobs := make([]func(), 0, len(m.jobs))
	for _, fn := range m.jobs {
		jobs = append(jobs, fn)
	}
	m.mu.Unlock()
	for _, fn := range jobs {
		fn()
	}
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
}

func waitRunning(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitRunning(ctx))
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(nil, nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	cfg := channelConfig(t)
	cfg.RPCExchange = ""
	_, err = NewService(cfg, nil, ServiceDependencies{})
	var cfgErr errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEndpointIsOpenedOncePerExchange(t *testing.T) {
	cfg := channelConfig(t)
	svc, err := NewService(cfg, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	defer svc.Close()

	a, err := svc.Endpoint(context.Background(), cfg.RPCExchange)
	require.NoError(t, err)
	b, err := svc.Endpoint(context.Background(), cfg.RPCExchange)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "rpc_exchange.cpu", a.Topic("cpu"))
}

func TestEndpointErrorsPropagate(t *testing.T) {
	orig := openEndpoint
	t.Cleanup(func() { openEndpoint = orig })
	openEndpoint = func(context.Context, *configpkg.Config, string, loggingpkg.ServiceLogger) (*broker.Endpoint, error) {
		return nil, errspkg.Transport("dial", errors.New("refused"))
	}

	svc, err := NewService(channelConfig(t), nil, ServiceDependencies{})
	require.NoError(t, err)
	_, err = svc.ProbeProxy(context.Background(), "cpu")
	assert.ErrorIs(t, err, errspkg.ErrTransport)
}

func TestServiceServesProbeQueries(t *testing.T) {
	svc, err := NewService(channelConfig(t), newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	ctx := context.Background()

	p := svc.NewProbe("cpu")
	require.NoError(t, svc.ServeProbe(ctx, p))
	startService(t, svc)
	waitRunning(t, svc)

	e1, err := event.At("load", 100, 0.5)
	require.NoError(t, err)
	e2, err := event.At("load", 200, 0.7)
	require.NoError(t, err)
	svc.Registry().Runtime(registry.RoleProbe).PostEvent(ctx, e1)
	svc.Registry().Runtime(registry.RoleProbe).PostEvent(ctx, e2)

	proxy, err := svc.ProbeProxy(ctx, "cpu")
	require.NoError(t, err)

	events, err := proxy.Fetch(ctx, 150)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e2.ID, events[0].ID)

	count, err := proxy.Count(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestServicePublishesToExternalProbe(t *testing.T) {
	svc, err := NewService(channelConfig(t), newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	external, err := svc.NewExternalProbe(ctx, "latency")
	require.NoError(t, err)
	_, err = svc.PublishEvents(ctx, registry.RoleLibrary, "latency")
	require.NoError(t, err)

	e, err := event.New("latency", 12)
	require.NoError(t, err)
	svc.Registry().Runtime(registry.RoleLibrary).PostEvent(ctx, e)

	assert.Eventually(t, func() bool { return external.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServiceServesNamespace(t *testing.T) {
	svc, err := NewService(channelConfig(t), newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	ctx := context.Background()

	n, err := svc.NewNamespace(ctx, "settings")
	require.NoError(t, err)
	require.NoError(t, svc.ServeNamespace(ctx, n))

	changes := make(chan namespace.Change, 1)
	_, err = svc.WatchNamespace(ctx, "settings", event.ListenerFunc(func(_ context.Context, e event.Event) {
		if change, err := namespace.DecodeChange(e); err == nil {
			changes <- change
		}
	}))
	require.NoError(t, err)

	startService(t, svc)
	waitRunning(t, svc)

	proxy, err := svc.NamespaceProxy(ctx, "settings")
	require.NoError(t, err)
	_, err = proxy.SetVariable(ctx, "x", 42)
	require.NoError(t, err)

	got, ok, err := namespace.GetAs[int](ctx, proxy, "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	select {
	case change := <-changes:
		assert.Equal(t, "x", change.Variable)
	case <-time.After(2 * time.Second):
		t.Fatal("change event not delivered")
	}
}

func TestTriggerPostsToMonitorRuntime(t *testing.T) {
	timer := &manualTimer{}
	svc, err := NewService(channelConfig(t), nil, ServiceDependencies{Timer: timer})
	require.NoError(t, err)
	defer svc.Close()

	var received []event.Event
	svc.Registry().Runtime(registry.RoleMonitor).RegisterEventListener(event.ListenerFunc(func(_ context.Context, e event.Event) {
		received = append(received, e)
	}))

	tr, err := svc.NewTrigger(trigger.EverySecond)
	require.NoError(t, err)

	timer.fire()
	require.NoError(t, tr.Pause())
	timer.fire()

	require.Len(t, received, 1)
	assert.Equal(t, trigger.IntervalEventType, received[0].Type)
}

func TestStatusHandler(t *testing.T) {
	cfg := channelConfig(t)
	cfg.MetricsEnabled = true
	svc, err := NewService(cfg, newTestLogger(), ServiceDependencies{
		Registerer: prometheus.NewRegistry(),
		Timer:      &manualTimer{},
	})
	require.NoError(t, err)
	defer svc.Close()
	require.NotNil(t, svc.Metrics())

	_, err = svc.NewTrigger(trigger.Hourly)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.handleGetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status Status
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "channel", status.PubSubSystem)
	require.Len(t, status.Components, 1)
	assert.Equal(t, ComponentTrigger, status.Components[0].Kind)
	assert.Equal(t, trigger.Hourly, status.Components[0].Name)

	rec = httptest.NewRecorder()
	svc.handleGetStatus(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, err := NewService(channelConfig(t), nil, ServiceDependencies{})
	require.NoError(t, err)
	_, err = svc.NewTrigger(trigger.Hourly)
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.Error(t, svc.ServeProbe(context.Background(), svc.NewProbe("cpu")))
}
