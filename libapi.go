package probeflow

import (
	"context"

	runtimepkg "github.com/drblury/probeflow/internal/runtime"
	"github.com/drblury/probeflow/internal/runtime/broker"
	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	eventpkg "github.com/drblury/probeflow/internal/runtime/event"
	idspkg "github.com/drblury/probeflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/probeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/probeflow/internal/runtime/metadata"
	nspkg "github.com/drblury/probeflow/internal/runtime/namespace"
	"github.com/drblury/probeflow/internal/runtime/observability"
	probepkg "github.com/drblury/probeflow/internal/runtime/probe"
	registrypkg "github.com/drblury/probeflow/internal/runtime/registry"
	"github.com/drblury/probeflow/internal/runtime/rpc"
	triggerpkg "github.com/drblury/probeflow/internal/runtime/trigger"
	newtransport "github.com/drblury/probeflow/transport"
)

type (
	Config              = configpkg.Config
	Environment         = configpkg.Environment
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	ComponentInfo       = runtimepkg.ComponentInfo
	Status              = runtimepkg.Status

	Event         = eventpkg.Event
	EventSet      = eventpkg.Set
	EventListener = eventpkg.Listener
	ListenerFunc  = eventpkg.ListenerFunc

	Probe         = probepkg.Probe
	ProbeOption   = probepkg.Option
	ExternalProbe = probepkg.ExternalProbe
	ProbeProxy    = probepkg.Proxy

	Namespace       = nspkg.Namespace
	NamespaceOption = nspkg.Option
	NamespaceProxy  = nspkg.Proxy
	VariableStore   = nspkg.VariableStore
	ChangeEvent     = nspkg.Change

	PeriodicTrigger = triggerpkg.PeriodicTrigger
	TriggerOption   = triggerpkg.Option
	TimerService    = triggerpkg.TimerService
	TimerHandle     = triggerpkg.Handle
	CronTimer       = triggerpkg.CronTimer
	Interval        = triggerpkg.Interval
	Resumable       = triggerpkg.Resumable

	Registry = registrypkg.Registry
	Runtime  = registrypkg.Runtime
	Role     = registrypkg.Role

	Operation          = rpc.Operation
	Request            = rpc.Request
	Response           = rpc.Response
	RPCServer          = rpc.Server
	RPCClient          = rpc.Client
	RPCClientOption    = rpc.ClientOption
	RPCMiddleware      = rpc.MiddlewareRegistration
	ServerDependencies = rpc.ServerDependencies

	Endpoint = broker.Endpoint
	Producer = broker.Producer
	Consumer = broker.Consumer

	Metadata      = metadatapkg.Metadata
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
	Metrics       = observability.Metrics

	ScheduleError         = errspkg.ScheduleError
	ConfigValidationError = errspkg.ConfigValidationError

	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig

	LoadEnvironment    = configpkg.LoadEnvironment
	DefaultEnvironment = configpkg.DefaultEnvironment

	NewEvent    = eventpkg.New
	NewEventAt  = eventpkg.At
	NewEventSet = eventpkg.NewSet
	Now         = eventpkg.Now

	NewProbe         = probepkg.New
	NewExternalProbe = probepkg.NewExternal
	DialProbe        = probepkg.Dial
	WithEventTypes   = probepkg.WithEventTypes

	NewNamespace   = nspkg.New
	DialNamespace  = nspkg.Dial
	NewMemoryStore = nspkg.NewMemoryStore
	OpenStore      = nspkg.OpenStore
	DecodeChange   = nspkg.DecodeChange

	NewTrigger      = triggerpkg.New
	NewCronTimer    = triggerpkg.NewCronTimer
	ParseExpression = triggerpkg.ParseExpression
	WithListener    = triggerpkg.WithListener

	NewRegistry  = registrypkg.New
	OpenEndpoint = broker.Open

	WithRPCTimeout = rpc.WithTimeout

	NewMetrics = observability.NewMetrics

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrTimerRequired        = errspkg.ErrTimerRequired
	ErrStoreRequired        = errspkg.ErrStoreRequired
	ErrVariableNameRequired = errspkg.ErrVariableNameRequired
	ErrTransport            = errspkg.ErrTransport
	ErrTimeout              = errspkg.ErrTimeout
	ErrSerialization        = errspkg.ErrSerialization
	ErrUnknownOperation     = errspkg.ErrUnknownOperation
	ErrClientClosed         = errspkg.ErrClientClosed
	ErrRemote               = errspkg.ErrRemote
	IsScheduleKind          = errspkg.IsScheduleKind

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	NewMetadata = metadatapkg.New
	CreateULID  = idspkg.CreateULID
)

// Runtime roles.
const (
	RoleMonitor   = registrypkg.RoleMonitor
	RoleProbe     = registrypkg.RoleProbe
	RoleNamespace = registrypkg.RoleNamespace
	RoleLibrary   = registrypkg.RoleLibrary
)

// RPC operations.
const (
	OpProbeClean           = rpc.ProbeClean
	OpProbeCount           = rpc.ProbeCount
	OpProbeCountAndClean   = rpc.ProbeCountAndClean
	OpProbeFetch           = rpc.ProbeFetch
	OpProbeFetchAndClean   = rpc.ProbeFetchAndClean
	OpNamespaceGetVariable = rpc.NamespaceGetVariable
	OpNamespaceSetVariable = rpc.NamespaceSetVariable
)

// Cron expressions and event types.
const (
	EverySecond = triggerpkg.EverySecond
	EveryMinute = triggerpkg.EveryMinute
	Hourly      = triggerpkg.Hourly
	Daily       = triggerpkg.Daily

	IntervalEventType = triggerpkg.IntervalEventType
	ChangeEventType   = nspkg.ChangeEventType
)

// Schedule error kinds.
const (
	KindSchedule   = errspkg.KindSchedule
	KindUnschedule = errspkg.KindUnschedule
)

// DecodeEvent decodes the payload of e into T.
func DecodeEvent[T any](e Event) (T, error) {
	return eventpkg.Decode[T](e)
}

// GetVariableAs reads a remote variable and decodes it into T. ok is false
// when the variable does not exist.
func GetVariableAs[T any](ctx context.Context, p *NamespaceProxy, name string) (T, bool, error) {
	return nspkg.GetAs[T](ctx, p, name)
}
