package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
)

// Named expressions for common periods.
const (
	EverySecond = "@every 1s"
	EveryMinute = "0 * * * * *"
	Hourly      = "@hourly"
	Daily       = "@daily"
)

var (
	ErrDuplicateKey  = errors.New("timer: key already scheduled")
	ErrUnknownHandle = errors.New("timer: handle is not scheduled")
	ErrTriggerClosed = errors.New("trigger: closed")
)

// Handle identifies one scheduled job.
type Handle struct {
	Key        string
	Expression string
}

// TimerService runs fn every time expr fires until the returned handle is
// unscheduled. Keys must be unique among the scheduled jobs.
type TimerService interface {
	Schedule(key, expr string, fn func()) (Handle, error)
	Unschedule(h Handle) error
}

// Parser accepts five or six field expressions (seconds optional) and the
// @every / @hourly style descriptors.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseExpression reports whether expr is a valid schedule.
func ParseExpression(expr string) error {
	if _, err := Parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// CronTimer is a TimerService backed by robfig/cron.
type CronTimer struct {
	cron *cron.Cron
	log  loggingpkg.ServiceLogger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewCronTimer returns a started timer. Panics raised by jobs are recovered
// and logged.
func NewCronTimer(log loggingpkg.ServiceLogger) *CronTimer {
	log = loggingpkg.OrNop(log)
	adapter := cronLogger{log: log}
	t := &CronTimer{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
	t.cron.Start()
	return t
}

func (t *CronTimer) Schedule(key, expr string, fn func()) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	id, err := t.cron.AddFunc(expr, fn)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	t.entries[key] = id
	t.log.Debug("Job scheduled", loggingpkg.LogFields{"key": key, "expression": expr})
	return Handle{Key: key, Expression: expr}, nil
}

func (t *CronTimer) Unschedule(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.entries[h.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h.Key)
	}
	t.cron.Remove(id)
	delete(t.entries, h.Key)
	t.log.Debug("Job unscheduled", loggingpkg.LogFields{"key": h.Key})
	return nil
}

// Len returns the number of scheduled jobs.
func (t *CronTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop stops the scheduler. The returned context is done once running jobs
// have completed.
func (t *CronTimer) Stop() context.Context {
	return t.cron.Stop()
}

// cronLogger routes cron's key/value logging to a ServiceLogger.
type cronLogger struct {
	log loggingpkg.ServiceLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, toFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, err, toFields(keysAndValues))
}

func toFields(keysAndValues []any) loggingpkg.LogFields {
	fields := make(loggingpkg.LogFields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
