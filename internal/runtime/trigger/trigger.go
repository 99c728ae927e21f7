// Package trigger emits interval events on a cron schedule. A trigger can be
// paused and resumed; while paused nothing is scheduled and nothing fires.
package trigger

import (
	"context"
	"sync"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

// IntervalEventType is the type of the events emitted on every firing.
const IntervalEventType = "interval"

// Interval is the payload of an interval event.
type Interval struct {
	Expression string `json:"expression"`
}

// Resumable is implemented by sources that can be paused.
type Resumable interface {
	Pause() error
	Resume() error
	IsPaused() bool
}

// Option configures a PeriodicTrigger.
type Option func(*PeriodicTrigger)

// WithLogger sets the trigger logger.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(t *PeriodicTrigger) {
		t.log = log
	}
}

// WithMetrics counts firings.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *PeriodicTrigger) {
		t.metrics = m
	}
}

// WithListener registers l before the first firing can happen.
func WithListener(l event.Listener) Option {
	return func(t *PeriodicTrigger) {
		t.listeners = append(t.listeners, l)
	}
}

// PeriodicTrigger owns at most one TimerService job. It holds a handle
// exactly when it is active.
type PeriodicTrigger struct {
	timer   TimerService
	log     loggingpkg.ServiceLogger
	metrics *observability.Metrics

	mu         sync.Mutex
	expression string
	handle     *Handle
	closed     bool

	listenersMu sync.RWMutex
	listeners   []event.Listener
}

var _ Resumable = (*PeriodicTrigger)(nil)

// New returns an active trigger firing on expr.
func New(timer TimerService, expr string, opts ...Option) (*PeriodicTrigger, error) {
	if timer == nil {
		return nil, errspkg.ErrTimerRequired
	}
	t := &PeriodicTrigger{timer: timer, expression: expr}
	for _, opt := range opts {
		opt(t)
	}
	t.log = loggingpkg.OrNop(t.log)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.scheduleLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Expression returns the current cron expression.
func (t *PeriodicTrigger) Expression() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expression
}

// IsPaused reports whether the trigger has no scheduled job.
func (t *PeriodicTrigger) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle == nil
}

// AddListener registers l. Listeners receive events in registration order.
func (t *PeriodicTrigger) AddListener(l event.Listener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Pause unschedules the job. Pausing a paused trigger does nothing.
func (t *PeriodicTrigger) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unscheduleLocked()
}

// Resume schedules a new job. Resuming an active trigger does nothing.
func (t *PeriodicTrigger) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &errspkg.ScheduleError{Kind: errspkg.KindSchedule, Expression: t.expression, Err: ErrTriggerClosed}
	}
	if t.handle != nil {
		return nil
	}
	return t.scheduleLocked()
}

// UpdateExpression replaces the expression. An active trigger is rescheduled
// under the lock, so no firing of the old expression is observed after it
// returns. A paused trigger stays paused.
func (t *PeriodicTrigger) UpdateExpression(expr string) error {
	if err := ParseExpression(expr); err != nil {
		return &errspkg.ScheduleError{Kind: errspkg.KindSchedule, Expression: expr, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle == nil {
		t.expression = expr
		return nil
	}
	if err := t.unscheduleLocked(); err != nil {
		return err
	}
	t.expression = expr
	return t.scheduleLocked()
}

// Close pauses the trigger for good.
func (t *PeriodicTrigger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.unscheduleLocked()
}

func (t *PeriodicTrigger) scheduleLocked() error {
	expr := t.expression
	key := idspkg.UniqueKey(expr)
	h, err := t.timer.Schedule(key, expr, func() { t.fire(key, expr) })
	if err != nil {
		return &errspkg.ScheduleError{Kind: errspkg.KindSchedule, Expression: expr, Err: err}
	}
	t.handle = &h
	t.log.Debug("Trigger scheduled", loggingpkg.LogFields{"expression": expr, "key": key})
	return nil
}

func (t *PeriodicTrigger) unscheduleLocked() error {
	if t.handle == nil {
		return nil
	}
	if err := t.timer.Unschedule(*t.handle); err != nil {
		return &errspkg.ScheduleError{Kind: errspkg.KindUnschedule, Expression: t.handle.Expression, Err: err}
	}
	t.log.Debug("Trigger unscheduled", loggingpkg.LogFields{"expression": t.handle.Expression, "key": t.handle.Key})
	t.handle = nil
	return nil
}

// fire runs on the timer goroutine. Firings of a job that has since been
// unscheduled are dropped.
func (t *PeriodicTrigger) fire(key, expr string) {
	t.mu.Lock()
	current := t.handle != nil && t.handle.Key == key
	t.mu.Unlock()
	if !current {
		t.metrics.TriggerFired(true)
		return
	}
	t.metrics.TriggerFired(false)

	e, err := event.New(IntervalEventType, Interval{Expression: expr})
	if err != nil {
		t.log.Error("Failed to build interval event", err, loggingpkg.LogFields{"expression": expr})
		return
	}

	t.listenersMu.RLock()
	listeners := append([]event.Listener(nil), t.listeners...)
	t.listenersMu.RUnlock()

	ctx := context.Background()
	for _, l := range listeners {
		l.OnEvent(ctx, e)
	}
}
