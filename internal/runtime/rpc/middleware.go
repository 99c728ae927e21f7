package rpc

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/trace"

	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

// MiddlewareBuilder constructs a handler middleware for a server.
type MiddlewareBuilder func(*Server) (message.HandlerMiddleware, error)

// MiddlewareRegistration describes a middleware added to a server router.
// Exactly one of Middleware or Builder is set.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the chain every server starts with.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RecovererMiddleware(),
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
	}
}

// RecovererMiddleware turns handler panics into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// CorrelationIDMiddleware stamps requests that arrive without a correlation
// id so the reply can still be traced.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Builder: func(s *Server) (message.HandlerMiddleware, error) {
			return s.correlationIDMiddleware(), nil
		},
	}
}

// LogMessagesMiddleware logs the payload and metadata of every request.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Server) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.log
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps request handling in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(s *Server) (message.HandlerMiddleware, error) {
			return s.tracerMiddleware(), nil
		},
	}
}

// MetricsMiddleware adds Watermill's Prometheus router metrics when the
// server was given a registerer.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Server) (message.HandlerMiddleware, error) {
			if s.registerer == nil {
				return nil, nil
			}
			return observability.InstrumentRouter(s.router, s.registerer, "rpc_server"), nil
		},
	}
}

// RegisterMiddleware attaches cfg to the server router.
func (s *Server) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}

func (s *Server) correlationIDMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
				id := idspkg.NewCorrelationID()
				s.log.Debug("Request without correlation id", loggingpkg.LogFields{
					"message_uuid":   msg.UUID,
					"correlation_id": id,
				})
				msg.Metadata.Set(metadatapkg.KeyCorrelationID, id)
			}
			return h(msg)
		}
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing request", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

func (s *Server) tracerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := observability.StartSpan(msg.Context(), "rpc.serve", trace.SpanKindServer, map[string]string{
				"message.uuid":       msg.UUID,
				"rpc.topic":          s.topic,
				"rpc.operation":      msg.Metadata.Get(metadatapkg.KeyOperation),
				"rpc.correlation_id": msg.Metadata.Get(metadatapkg.KeyCorrelationID),
			})
			msg.SetContext(ctx)
			out, err := h(msg)
			observability.EndSpan(span, err)
			return out, err
		}
	}
}
