package runtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

// ComponentKind names what a Service component does.
type ComponentKind string

const (
	ComponentProbe          ComponentKind = "probe"
	ComponentExternalProbe  ComponentKind = "external_probe"
	ComponentNamespace      ComponentKind = "namespace"
	ComponentProducer       ComponentKind = "producer"
	ComponentWatcher        ComponentKind = "namespace_watcher"
	ComponentProbeProxy     ComponentKind = "probe_proxy"
	ComponentNamespaceProxy ComponentKind = "namespace_proxy"
	ComponentTrigger        ComponentKind = "trigger"
)

// ComponentInfo describes one component hosted by a Service.
type ComponentInfo struct {
	Kind      ComponentKind `json:"kind"`
	Name      string        `json:"name"`
	Exchange  string        `json:"exchange,omitempty"`
	Topic     string        `json:"topic,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func newComponentInfo(kind ComponentKind, name, exchange, topic string) *ComponentInfo {
	return &ComponentInfo{
		Kind:      kind,
		Name:      name,
		Exchange:  exchange,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
}

// Status is the document served on /api/status.
type Status struct {
	PubSubSystem string          `json:"pubsub_system"`
	Components   []ComponentInfo `json:"components"`
	Resources    ResourceUsage   `json:"resources"`
}

// Components returns a copy of the components hosted so far.
func (s *Service) Components() []ComponentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ComponentInfo, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, *c)
	}
	return out
}

// Status returns the current status document.
func (s *Service) Status() Status {
	return Status{
		PubSubSystem: strings.ToLower(s.Conf.PubSubSystem),
		Components:   s.Components(),
		Resources:    s.resourceTracker.Snapshot(),
	}
}

// registerObservabilityHandlers mounts /metrics and /api/status on the
// metrics port when metrics are enabled.
func (s *Service) registerObservabilityHandlers() {
	if !s.Conf.MetricsEnabled || s.Conf.MetricsPort == 0 {
		return
	}
	port := s.Conf.MetricsPort
	s.RegisterHTTPHandler(port, "/metrics", observability.MetricsHandler(s.gatherer))
	s.RegisterHTTPHandler(port, "/api/status", http.HandlerFunc(s.handleGetStatus))
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, loggingpkg.LogFields{"path": r.URL.Path})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
