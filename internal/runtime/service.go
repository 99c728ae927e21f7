package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/probeflow/internal/runtime/broker"
	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	"github.com/drblury/probeflow/internal/runtime/namespace"
	"github.com/drblury/probeflow/internal/runtime/observability"
	"github.com/drblury/probeflow/internal/runtime/probe"
	"github.com/drblury/probeflow/internal/runtime/registry"
	"github.com/drblury/probeflow/internal/runtime/rpc"
	"github.com/drblury/probeflow/internal/runtime/trigger"
)

var openEndpoint = broker.Open

var errServiceClosed = errors.New("probeflow: service is closed")

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	Registry *registry.Registry
	// Metrics overrides the collectors created when metrics are enabled.
	Metrics    *observability.Metrics
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Timer drives triggers. Defaults to a CronTimer owned by the Service.
	Timer                     trigger.TimerService
	Middlewares               []rpc.MiddlewareRegistration // Appended to every RPC server chain.
	DisableDefaultMiddlewares bool
	ClientOptions             []rpc.ClientOption
}

// Service hosts the probes, namespaces, proxies and triggers of one process
// on the exchanges named in its configuration.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	registry   *registry.Registry
	metrics    *observability.Metrics
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	serverDeps rpc.ServerDependencies
	clientOpts []rpc.ClientOption

	timerMu   sync.Mutex
	timer     trigger.TimerService
	ownsTimer bool

	endpointsMu sync.Mutex
	endpoints   map[string]*broker.Endpoint

	mu         sync.Mutex
	servers    []*rpc.Server
	closers    []io.Closer
	components []*ComponentInfo
	runCtx     context.Context
	closed     bool

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker
}

// NewService validates conf and returns a Service. Brokers are connected
// lazily, the first time a component needs an exchange.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	log = loggingpkg.OrNop(log)
	log.Info("Creating probeflow service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		registry:        deps.Registry,
		metrics:         deps.Metrics,
		registerer:      deps.Registerer,
		gatherer:        deps.Gatherer,
		timer:           deps.Timer,
		endpoints:       make(map[string]*broker.Endpoint),
		resourceTracker: newResourceTracker(),
	}
	if s.registry == nil {
		s.registry = registry.New(registry.WithLogger(log))
	}
	if s.metrics == nil && conf.MetricsEnabled {
		s.metrics = observability.NewMetrics(deps.Registerer)
	}
	if err := s.metrics.Register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.serverDeps = rpc.ServerDependencies{
		Logger:                    log,
		Metrics:                   s.metrics,
		Middlewares:               deps.Middlewares,
		DisableDefaultMiddlewares: deps.DisableDefaultMiddlewares,
	}
	if conf.MetricsEnabled {
		s.serverDeps.Registerer = s.registerer
		if s.serverDeps.Registerer == nil {
			s.serverDeps.Registerer = prometheus.DefaultRegisterer
		}
	}

	s.clientOpts = append([]rpc.ClientOption{
		rpc.WithTimeout(conf.Timeout()),
		rpc.WithLogger(log),
		rpc.WithMetrics(s.metrics),
	}, deps.ClientOptions...)

	return s, nil
}

// Registry returns the registry whose runtimes carry the local event buses.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Metrics returns the collectors, nil when metrics are disabled.
func (s *Service) Metrics() *observability.Metrics {
	return s.metrics
}

// Endpoint returns the endpoint bound to exchange, connecting on first use.
func (s *Service) Endpoint(ctx context.Context, exchange string) (*broker.Endpoint, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errServiceClosed
	}

	s.endpointsMu.Lock()
	defer s.endpointsMu.Unlock()

	if ep, ok := s.endpoints[exchange]; ok {
		return ep, nil
	}
	ep, err := openEndpoint(ctx, s.Conf, exchange, s.Logger)
	if err != nil {
		return nil, err
	}
	s.endpoints[exchange] = ep
	return ep, nil
}

// NewProbe returns a probe that receives the events posted to the probe
// runtime bus. Call ServeProbe to answer remote queries.
func (s *Service) NewProbe(routingKey string, opts ...probe.Option) *probe.Probe {
	p := probe.New(routingKey, s.probeOptions(opts)...)
	s.registry.Runtime(registry.RoleProbe).RegisterEventListener(p)
	return p
}

// NewExternalProbe returns a probe fed by events published to routingKey on
// the probes exchange.
func (s *Service) NewExternalProbe(ctx context.Context, routingKey string, opts ...probe.Option) (*probe.ExternalProbe, error) {
	ep, err := s.Endpoint(ctx, s.Conf.ProbesExchange)
	if err != nil {
		return nil, err
	}
	p, err := probe.NewExternal(ctx, ep, routingKey, s.probeOptions(opts)...)
	if err != nil {
		return nil, err
	}
	s.track(p, ComponentExternalProbe, routingKey, s.Conf.ProbesExchange)
	return p, nil
}

func (s *Service) probeOptions(opts []probe.Option) []probe.Option {
	return append([]probe.Option{probe.WithLogger(s.Logger), probe.WithMetrics(s.metrics)}, opts...)
}

// ServeProbe answers the queries sent to the probe routing key on the RPC
// exchange while the Service runs.
func (s *Service) ServeProbe(ctx context.Context, p *probe.Probe) error {
	ep, err := s.Endpoint(ctx, s.Conf.RPCExchange)
	if err != nil {
		return err
	}
	srv, err := p.NewServer(ep, s.serverDeps)
	if err != nil {
		return err
	}
	return s.addServer(srv, ComponentProbe, p.RoutingKey())
}

// PublishEvents forwards every event posted to the role runtime bus to
// routingKey on the probes exchange.
func (s *Service) PublishEvents(ctx context.Context, role registry.Role, routingKey string) (*broker.Producer, error) {
	ep, err := s.Endpoint(ctx, s.Conf.ProbesExchange)
	if err != nil {
		return nil, err
	}
	producer := broker.NewProducer(ep, routingKey, s.Logger)
	s.registry.Runtime(role).RegisterEventListener(producer)
	s.record(ComponentProducer, routingKey, s.Conf.ProbesExchange)
	return producer, nil
}

// NewNamespace opens the configured variable store for routingKey and
// returns a namespace posting its changes to the namespace runtime bus.
func (s *Service) NewNamespace(ctx context.Context, routingKey string) (*namespace.Namespace, error) {
	store, err := namespace.OpenStore(ctx, s.Conf, routingKey)
	if err != nil {
		return nil, err
	}
	n, err := namespace.New(routingKey, store,
		namespace.WithRuntime(s.registry.Runtime(registry.RoleNamespace)),
		namespace.WithLogger(s.Logger),
		namespace.WithMetrics(s.metrics),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.addCloser(n)
	return n, nil
}

// ServeNamespace answers variable requests on the RPC exchange and publishes
// change events to the namespace exchange while the Service runs.
func (s *Service) ServeNamespace(ctx context.Context, n *namespace.Namespace) error {
	rpcEndpoint, err := s.Endpoint(ctx, s.Conf.RPCExchange)
	if err != nil {
		return err
	}
	nsEndpoint, err := s.Endpoint(ctx, s.Conf.NamespaceExchange)
	if err != nil {
		return err
	}
	srv, err := n.NewServer(rpcEndpoint, s.serverDeps)
	if err != nil {
		return err
	}
	n.PublishChanges(nsEndpoint)
	return s.addServer(srv, ComponentNamespace, n.RoutingKey())
}

// WatchNamespace delivers the change events of the namespace served under
// routingKey to listener.
func (s *Service) WatchNamespace(ctx context.Context, routingKey string, listener event.Listener) (*broker.Consumer, error) {
	ep, err := s.Endpoint(ctx, s.Conf.NamespaceExchange)
	if err != nil {
		return nil, err
	}
	consumer, err := namespace.WatchChanges(ctx, ep, routingKey, listener,
		broker.WithConsumerLogger(s.Logger),
		broker.WithConsumerMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	s.track(consumer, ComponentWatcher, routingKey, s.Conf.NamespaceExchange)
	return consumer, nil
}

// ProbeProxy returns a proxy to the probe served under routingKey.
func (s *Service) ProbeProxy(ctx context.Context, routingKey string) (*probe.Proxy, error) {
	ep, err := s.Endpoint(ctx, s.Conf.RPCExchange)
	if err != nil {
		return nil, err
	}
	proxy, client, err := probe.Dial(ctx, ep, routingKey, s.Logger, s.clientOpts...)
	if err != nil {
		return nil, err
	}
	s.track(client, ComponentProbeProxy, routingKey, s.Conf.RPCExchange)
	return proxy, nil
}

// NamespaceProxy returns a proxy to the namespace served under routingKey.
func (s *Service) NamespaceProxy(ctx context.Context, routingKey string) (*namespace.Proxy, error) {
	ep, err := s.Endpoint(ctx, s.Conf.RPCExchange)
	if err != nil {
		return nil, err
	}
	proxy, client, err := namespace.Dial(ctx, ep, routingKey, s.Logger, s.clientOpts...)
	if err != nil {
		return nil, err
	}
	s.track(client, ComponentNamespaceProxy, routingKey, s.Conf.RPCExchange)
	return proxy, nil
}

// NewTrigger returns an active trigger whose interval events are posted to
// the monitor runtime bus, after the listeners given in opts.
func (s *Service) NewTrigger(expr string, opts ...trigger.Option) (*trigger.PeriodicTrigger, error) {
	monitor := s.registry.Runtime(registry.RoleMonitor)
	opts = append([]trigger.Option{
		trigger.WithLogger(s.Logger),
		trigger.WithMetrics(s.metrics),
	}, opts...)
	opts = append(opts, trigger.WithListener(event.ListenerFunc(monitor.PostEvent)))

	t, err := trigger.New(s.timerService(), expr, opts...)
	if err != nil {
		return nil, err
	}
	s.track(t, ComponentTrigger, expr, "")
	return t, nil
}

func (s *Service) timerService() trigger.TimerService {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer == nil {
		s.timer = trigger.NewCronTimer(s.Logger)
		s.ownsTimer = true
	}
	return s.timer
}

func (s *Service) addServer(srv *rpc.Server, kind ComponentKind, routingKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = srv.Close()
		return errServiceClosed
	}
	s.servers = append(s.servers, srv)
	s.components = append(s.components, newComponentInfo(kind, routingKey, s.Conf.RPCExchange, srv.Topic()))
	if s.runCtx != nil {
		s.runServer(s.runCtx, srv)
	}
	return nil
}

func (s *Service) track(c io.Closer, kind ComponentKind, name, exchange string) {
	s.addCloser(c)
	s.record(kind, name, exchange)
}

func (s *Service) record(kind ComponentKind, name, exchange string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, newComponentInfo(kind, name, exchange, ""))
}

func (s *Service) addCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Start runs every RPC server, including the ones added later, and the HTTP
// servers until ctx is cancelled, then closes the Service.
func (s *Service) Start(ctx context.Context) error {
	s.registerObservabilityHandlers()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errServiceClosed
	}
	s.runCtx = ctx
	servers := append([]*rpc.Server(nil), s.servers...)
	for _, srv := range servers {
		s.runServer(ctx, srv)
	}
	s.mu.Unlock()

	s.startHTTPServers(ctx)

	<-ctx.Done()
	return s.Close()
}

func (s *Service) runServer(ctx context.Context, srv *rpc.Server) {
	go func() {
		if err := srv.Run(ctx); err != nil {
			s.Logger.Error("RPC server stopped", err, loggingpkg.LogFields{"rpc_topic": srv.Topic()})
		}
	}()
}

// WaitRunning blocks until every RPC server added so far consumes requests.
func (s *Service) WaitRunning(ctx context.Context) error {
	s.mu.Lock()
	servers := append([]*rpc.Server(nil), s.servers...)
	s.mu.Unlock()

	for _, srv := range servers {
		select {
		case <-srv.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops servers, closes tracked components in reverse order, then the
// endpoints and the owned timer.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	servers := s.servers
	closers := s.closers
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.endpointsMu.Lock()
	for exchange, ep := range s.endpoints {
		if err := ep.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s endpoint: %w", exchange, err))
		}
	}
	s.endpoints = make(map[string]*broker.Endpoint)
	s.endpointsMu.Unlock()

	s.timerMu.Lock()
	if s.ownsTimer {
		if cron, ok := s.timer.(*trigger.CronTimer); ok {
			<-cron.Stop().Done()
		}
	}
	s.timerMu.Unlock()

	return errors.Join(errs...)
}

// RegisterHTTPHandler mounts handler on the HTTP server listening on port.
// Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}()
	}
}
