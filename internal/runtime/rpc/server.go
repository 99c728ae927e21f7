package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	"github.com/drblury/probeflow/internal/runtime/observability"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServerDependencies holds the optional collaborators of a Server.
type ServerDependencies struct {
	Logger  loggingpkg.ServiceLogger
	Metrics *observability.Metrics
	// Registerer enables Watermill router metrics when set.
	Registerer                prometheus.Registerer
	Middlewares               []MiddlewareRegistration // Appended after the default chain.
	DisableDefaultMiddlewares bool
	// HandleSignals closes the router on SIGINT/SIGTERM.
	HandleSignals bool
}

// Server consumes requests from one topic, dispatches them one at a time and
// publishes each response to the reply topic named in the request metadata.
type Server struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	handler    Handler

	log        loggingpkg.ServiceLogger
	metrics    *observability.Metrics
	registerer prometheus.Registerer
	router     *message.Router

	dispatchMu sync.Mutex
}

// NewServer builds a server for topic. Call Run to start serving.
func NewServer(pub message.Publisher, sub message.Subscriber, topic string, handler Handler, deps ServerDependencies) (*Server, error) {
	switch {
	case pub == nil:
		return nil, errspkg.ErrPublisherRequired
	case sub == nil:
		return nil, errspkg.ErrSubscriberRequired
	case topic == "":
		return nil, errspkg.ErrTopicRequired
	case handler == nil:
		return nil, errspkg.ErrHandlerRequired
	}

	log := loggingpkg.OrNop(deps.Logger).With(loggingpkg.LogFields{"rpc_topic": topic})
	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	if deps.HandleSignals {
		router.AddPlugin(plugin.SignalsHandler)
	}

	s := &Server{
		publisher:  pub,
		subscriber: sub,
		topic:      topic,
		handler:    handler,
		log:        log,
		metrics:    deps.Metrics,
		registerer: deps.Registerer,
		router:     router,
	}

	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	for _, reg := range append(defaults, deps.Middlewares...) {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return nil, fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}

	router.AddNoPublisherHandler("rpc-server-"+topic, topic, sub, s.handleMessage)
	return s, nil
}

// Topic returns the request topic the server consumes.
func (s *Server) Topic() string {
	return s.topic
}

// Run serves requests until ctx is cancelled or Close is called.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("Starting RPC server", nil)
	return routerRun(s.router, ctx)
}

// Running is closed once the server is consuming requests.
func (s *Server) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the server.
func (s *Server) Close() error {
	return s.router.Close()
}

// handleMessage never returns an error: every request is acked so the loop
// keeps serving after a bad payload or a failing handler.
func (s *Server) handleMessage(msg *message.Message) error {
	md := metadatapkg.FromWatermill(msg.Metadata)
	replyTo := md.ReplyTo()
	correlationID := md.CorrelationID()
	fields := loggingpkg.LogFields{
		"correlation_id": correlationID,
		"message_uuid":   msg.UUID,
	}

	if replyTo == "" {
		s.log.Error("Dropping request without reply address", errspkg.ErrTopicRequired, fields)
		return nil
	}

	start := time.Now()
	resp, op, outcome := s.dispatch(msg.Context(), msg.Payload, fields)
	s.metrics.ObserveServerDispatch(string(op), outcome, time.Since(start))

	payload, err := EncodeResponse(resp)
	if err != nil {
		s.log.Error("Failed to encode response", err, fields)
		payload, _ = EncodeResponse(ErrorResponse(err))
	}

	reply := message.NewMessage(idspkg.CreateULID(), payload)
	reply.Metadata.Set(metadatapkg.KeyCorrelationID, correlationID)
	reply.Metadata.Set(metadatapkg.KeyOperation, string(op))
	if err := s.publisher.Publish(replyTo, reply); err != nil {
		s.log.Error("Failed to publish response", errspkg.Transport("publish response", err), loggingpkg.LogFields{
			"correlation_id": correlationID,
			"reply_to":       replyTo,
		})
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, payload []byte, fields loggingpkg.LogFields) (resp Response, op Operation, outcome string) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	req, err := DecodeRequest(payload)
	if err != nil {
		s.log.Error("Failed to decode request", err, fields)
		return ErrorResponse(err), "", observability.OutcomeError
	}
	op = req.Operation

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("handler panic: %v", r)
			s.log.Error("Handler panicked", panicErr, fields)
			resp, outcome = ErrorResponse(panicErr), observability.OutcomeError
		}
	}()

	result, err := s.handler.Handle(ctx, req)
	switch {
	case errors.Is(err, errspkg.ErrUnknownOperation):
		s.log.Info("Unknown operation, replying with null result", loggingpkg.LogFields{
			"correlation_id": fields["correlation_id"],
			"operation":      string(op),
		})
		return Response{}, op, observability.OutcomeUnknownOperation
	case err != nil:
		s.log.Error("Handler failed", err, fields)
		return ErrorResponse(err), op, observability.OutcomeError
	}

	resp, err = NewResponse(result)
	if err != nil {
		s.log.Error("Failed to encode result", err, fields)
		return ErrorResponse(err), op, observability.OutcomeError
	}
	return resp, op, observability.OutcomeOK
}
