// Package probe keeps timestamped events per type and answers windowed
// queries about them, locally and over RPC.
//
// The remote operations take a single timestamp and cover [ts, now]; an upper
// bound can only be given through the local window methods.
package probe

import (
	"context"
	"sort"
	"sync"

	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/observability"
	"github.com/drblury/probeflow/internal/runtime/rpc"
)

// Option configures a Probe.
type Option func(*Probe)

// WithEventTypes restricts the probe to the given event types. Without it
// every type is accepted.
func WithEventTypes(types ...string) Option {
	return func(p *Probe) {
		for _, t := range types {
			if t == "" {
				continue
			}
			if _, ok := p.sets[t]; !ok {
				p.sets[t] = event.NewSet()
			}
		}
		p.acceptAll = len(p.sets) == 0
	}
}

// WithLogger sets the probe logger.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(p *Probe) {
		p.log = log
	}
}

// WithMetrics records RPC and ingestion metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Probe) {
		p.metrics = m
	}
}

// WithClock replaces the source of "now" for the one-sided operations.
func WithClock(now func() int64) Option {
	return func(p *Probe) {
		if now != nil {
			p.now = now
		}
	}
}

// Probe holds one event set per accepted event type.
type Probe struct {
	routingKey string
	acceptAll  bool
	now        func() int64
	log        loggingpkg.ServiceLogger
	metrics    *observability.Metrics
	dispatcher rpc.Dispatcher

	mu   sync.RWMutex
	sets map[string]*event.Set
}

// New returns a probe reachable under routingKey.
func New(routingKey string, opts ...Option) *Probe {
	p := &Probe{
		routingKey: routingKey,
		acceptAll:  true,
		now:        event.Now,
		sets:       make(map[string]*event.Set),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = loggingpkg.OrNop(p.log).With(loggingpkg.LogFields{"probe": routingKey})
	p.dispatcher = p.newDispatcher()
	return p
}

// RoutingKey returns the key the probe is served and fed under.
func (p *Probe) RoutingKey() string {
	return p.routingKey
}

// EventTypes returns the accepted types in sorted order, or nil when every
// type is accepted.
func (p *Probe) EventTypes() []string {
	if p.acceptAll {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]string, 0, len(p.sets))
	for t := range p.sets {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Accepts reports whether events of eventType are stored.
func (p *Probe) Accepts(eventType string) bool {
	if p.acceptAll {
		return eventType != ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sets[eventType]
	return ok
}

// Insert stores e. It returns false for duplicates and unaccepted types.
func (p *Probe) Insert(e event.Event) bool {
	if !p.Accepts(e.Type) {
		return false
	}
	return p.setFor(e.Type).Insert(e)
}

// OnEvent inserts e so the probe can listen on a runtime bus or consumer.
func (p *Probe) OnEvent(_ context.Context, e event.Event) {
	if !p.Insert(e) {
		p.log.Debug("Event not stored", loggingpkg.LogFields{
			"event_id":   e.ID,
			"event_type": e.Type,
		})
	}
}

func (p *Probe) setFor(eventType string) *event.Set {
	p.mu.RLock()
	s, ok := p.sets[eventType]
	p.mu.RUnlock()
	if ok {
		return s
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok = p.sets[eventType]; !ok {
		s = event.NewSet()
		p.sets[eventType] = s
	}
	return s
}

func (p *Probe) snapshot() []*event.Set {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*event.Set, 0, len(p.sets))
	for _, s := range p.sets {
		out = append(out, s)
	}
	return out
}

// FetchWindow returns the events in [start, end] across all types, ordered
// by (Timestamp, ID).
func (p *Probe) FetchWindow(start, end int64) []event.Event {
	sets := p.snapshot()
	groups := make([][]event.Event, 0, len(sets))
	for _, s := range sets {
		groups = append(groups, s.Fetch(start, end))
	}
	return event.Merge(groups...)
}

// CountWindow counts the events in [start, end].
func (p *Probe) CountWindow(start, end int64) int {
	total := 0
	for _, s := range p.snapshot() {
		total += s.Count(start, end)
	}
	return total
}

// CleanWindow removes the events in [start, end] and returns them in order.
func (p *Probe) CleanWindow(start, end int64) []event.Event {
	sets := p.snapshot()
	groups := make([][]event.Event, 0, len(sets))
	for _, s := range sets {
		groups = append(groups, s.FetchAndClean(start, end))
	}
	return event.Merge(groups...)
}

// Len returns the number of stored events.
func (p *Probe) Len() int {
	total := 0
	for _, s := range p.snapshot() {
		total += s.Len()
	}
	return total
}

// CleanData removes the events in [ts, now] and reports whether any were removed.
func (p *Probe) CleanData(ts int64) bool {
	return len(p.CleanWindow(ts, p.now())) > 0
}

// Count counts the events in [ts, now].
func (p *Probe) Count(ts int64) int {
	return p.CountWindow(ts, p.now())
}

// CountAndClean removes the events in [ts, now] and returns how many there were.
func (p *Probe) CountAndClean(ts int64) int {
	return len(p.CleanWindow(ts, p.now()))
}

// Fetch returns the events in [ts, now].
func (p *Probe) Fetch(ts int64) []event.Event {
	return p.FetchWindow(ts, p.now())
}

// FetchAndClean removes and returns the events in [ts, now].
func (p *Probe) FetchAndClean(ts int64) []event.Event {
	return p.CleanWindow(ts, p.now())
}
