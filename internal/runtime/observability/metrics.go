// Package observability provides the Prometheus collectors and OpenTelemetry
// spans recorded around RPC calls, probe ingestion and trigger firings.
package observability

import (
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "probeflow"

// Outcome labels recorded for RPC calls.
const (
	OutcomeOK               = "ok"
	OutcomeError            = "error"
	OutcomeTimeout          = "timeout"
	OutcomeUnknownOperation = "unknown_operation"
)

// Metrics groups the probeflow collectors. A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	clientRequests  *prometheus.CounterVec
	clientDuration  *prometheus.HistogramVec
	serverRequests  *prometheus.CounterVec
	serverDuration  *prometheus.HistogramVec
	eventsIngested  *prometheus.CounterVec
	triggerFirings  *prometheus.CounterVec
	variableUpdates *prometheus.CounterVec
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		labels,
	)
}

// NewMetrics creates the collectors. They are registered on registerer by
// Register; a nil registerer means the Prometheus default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:      registerer,
		clientRequests:  newCounterVec("rpc_client", "requests_total", "RPC requests issued by clients", []string{"operation", "outcome"}),
		clientDuration:  newHistogramVec("rpc_client", "request_duration_seconds", "Time from publishing a request to receiving its reply", []string{"operation"}),
		serverRequests:  newCounterVec("rpc_server", "requests_total", "RPC requests dispatched by servers", []string{"operation", "outcome"}),
		serverDuration:  newHistogramVec("rpc_server", "dispatch_duration_seconds", "Time spent dispatching a request", []string{"operation"}),
		eventsIngested:  newCounterVec("probe", "events_ingested_total", "Events accepted into probe event sets", []string{"event_type"}),
		triggerFirings:  newCounterVec("trigger", "firings_total", "Periodic trigger firings", []string{"state"}),
		variableUpdates: newCounterVec("namespace", "variable_updates_total", "Namespace variable writes", []string{"variable"}),
	}
}

// Register registers every collector. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.clientRequests,
		m.clientDuration,
		m.serverRequests,
		m.serverDuration,
		m.eventsIngested,
		m.triggerFirings,
		m.variableUpdates,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// ObserveClientCall records one client call.
func (m *Metrics) ObserveClientCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.clientRequests.WithLabelValues(operation, outcome).Inc()
	m.clientDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveServerDispatch records one dispatched request.
func (m *Metrics) ObserveServerDispatch(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(operation, outcome).Inc()
	m.serverDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// EventIngested counts an event accepted by a probe.
func (m *Metrics) EventIngested(eventType string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

// TriggerFired counts a trigger firing; paused is true when the firing was
// suppressed.
func (m *Metrics) TriggerFired(paused bool) {
	if m == nil {
		return
	}
	state := "active"
	if paused {
		state = "paused"
	}
	m.triggerFirings.WithLabelValues(state).Inc()
}

// VariableUpdated counts a namespace variable write.
func (m *Metrics) VariableUpdated(variable string) {
	if m == nil {
		return
	}
	m.variableUpdates.WithLabelValues(variable).Inc()
}

// InstrumentRouter decorates the publishers and subscribers of router with
// Watermill's Prometheus metrics and returns the handler timing middleware.
func InstrumentRouter(router *message.Router, registerer prometheus.Registerer, subsystem string) message.HandlerMiddleware {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	builder := metrics.NewPrometheusMetricsBuilder(registerer, namespace, subsystem)
	router.AddPublisherDecorators(builder.DecoratePublisher)
	router.AddSubscriberDecorators(builder.DecorateSubscriber)
	return builder.NewRouterMiddleware().Middleware
}
