package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrPublisherRequired    = sterrors.New("probeflow: publisher is required")
	ErrSubscriberRequired   = sterrors.New("probeflow: subscriber is required")
	ErrTopicRequired        = sterrors.New("probeflow: topic is required")
	ErrHandlerRequired      = sterrors.New("probeflow: handler is required")
	ErrConfigRequired       = sterrors.New("probeflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("probeflow: logger is required")
	ErrTimerRequired        = sterrors.New("probeflow: timer service is required")
	ErrStoreRequired        = sterrors.New("probeflow: variable store is required")
	ErrVariableNameRequired = sterrors.New("probeflow: variable name is required")
	ErrEventTypeRequired    = sterrors.New("probeflow: event type is required")
)

// RPC failure taxonomy. Callers classify with errors.Is.
var (
	// ErrTransport marks broker failures: publish, subscribe or closed connections.
	ErrTransport = sterrors.New("probeflow: transport failure")
	// ErrTimeout marks a call that received no correlated response in time.
	ErrTimeout = sterrors.New("probeflow: rpc timeout")
	// ErrSerialization marks payloads that cannot be encoded or decoded.
	ErrSerialization = sterrors.New("probeflow: serialization failure")
	// ErrUnknownOperation marks requests whose operation is not in the dispatch table.
	ErrUnknownOperation = sterrors.New("probeflow: unknown operation")
	// ErrClientClosed is returned by calls on a closed RPC client.
	ErrClientClosed = sterrors.New("probeflow: rpc client closed")
	// ErrRemote wraps an error reported by the remote handler.
	ErrRemote = sterrors.New("probeflow: remote handler error")
)

// Transport wraps err as a transport failure.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Serialization wraps err as a serialization failure.
func Serialization(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSerialization, err)
}

// ScheduleKind distinguishes which scheduler interaction failed.
type ScheduleKind string

const (
	KindSchedule   ScheduleKind = "schedule"
	KindUnschedule ScheduleKind = "unschedule"
)

// ScheduleError reports a TimerService failure.
type ScheduleError struct {
	Kind       ScheduleKind
	Expression string
	Err        error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("probeflow: %s %q failed: %v", e.Kind, e.Expression, e.Err)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// IsScheduleKind reports whether err is a ScheduleError of the given kind.
func IsScheduleKind(err error, kind ScheduleKind) bool {
	var se *ScheduleError
	return sterrors.As(err, &se) && se.Kind == kind
}

// ConfigValidationError groups configuration problems found by Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "probeflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
