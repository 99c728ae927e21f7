// Package registry holds one Runtime per role. A Runtime carries the
// in-process event bus and the environment configuration shared by the
// components of that role.
package registry

import (
	"context"
	"fmt"
	"sync"

	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	"github.com/drblury/probeflow/internal/runtime/event"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
)

// Role identifies the context a Runtime serves.
type Role string

const (
	RoleMonitor   Role = "monitor"
	RoleProbe     Role = "probe"
	RoleNamespace Role = "namespace"
	RoleLibrary   Role = "library"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleMonitor, RoleProbe, RoleNamespace, RoleLibrary}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMonitor, RoleProbe, RoleNamespace, RoleLibrary:
		return true
	}
	return false
}

// Option configures a Registry.
type Option func(*Registry)

// WithEnvironmentFile sets the file the environment is loaded from.
func WithEnvironmentFile(path string) Option {
	return func(r *Registry) {
		r.envPath = path
	}
}

// WithEnvironment uses env instead of loading a file. Missing keys still get
// their defaults.
func WithEnvironment(env configpkg.Environment) Option {
	return func(r *Registry) {
		r.preset = env
	}
}

// WithLogger sets the logger handed to every runtime.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// Registry lazily creates one Runtime per Role. It is meant to be created
// once and passed to the components that need it.
type Registry struct {
	mu       sync.Mutex
	runtimes map[Role]*Runtime
	envPath  string
	preset   configpkg.Environment
	log      loggingpkg.ServiceLogger
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{runtimes: make(map[Role]*Runtime)}
	for _, opt := range opts {
		opt(r)
	}
	r.log = loggingpkg.OrNop(r.log)
	return r
}

// Runtime returns the runtime for role, creating it on first use.
func (r *Registry) Runtime(role Role) *Runtime {
	if !role.Valid() {
		panic(fmt.Sprintf("probeflow: unknown runtime role %q", role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.runtimes[role]; ok {
		return rt
	}
	rt := &Runtime{
		role:    role,
		envPath: r.envPath,
		preset:  r.preset,
		log:     r.log.With(loggingpkg.LogFields{"runtime": string(role)}),
	}
	r.runtimes[role] = rt
	return rt
}

// Runtime is the per-role event bus and environment.
type Runtime struct {
	role Role
	log  loggingpkg.ServiceLogger

	listenersMu sync.RWMutex
	listeners   []event.Listener

	envOnce sync.Once
	envPath string
	preset  configpkg.Environment
	env     configpkg.Environment
}

// Role returns the role this runtime serves.
func (rt *Runtime) Role() Role {
	return rt.role
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() loggingpkg.ServiceLogger {
	return rt.log
}

// RegisterEventListener appends l to the delivery list. Registering the same
// listener twice delivers every event to it twice.
func (rt *Runtime) RegisterEventListener(l event.Listener) {
	if l == nil {
		return
	}
	rt.listenersMu.Lock()
	rt.listeners = append(rt.listeners, l)
	rt.listenersMu.Unlock()
}

// PostEvent delivers e to every registered listener on the caller's
// goroutine, in registration order.
func (rt *Runtime) PostEvent(ctx context.Context, e event.Event) {
	rt.listenersMu.RLock()
	listeners := make([]event.Listener, len(rt.listeners))
	copy(listeners, rt.listeners)
	rt.listenersMu.RUnlock()

	rt.log.Trace("Posting event", loggingpkg.LogFields{
		"event_id":   e.ID,
		"event_type": e.Type,
		"listeners":  len(listeners),
	})
	for _, l := range listeners {
		l.OnEvent(ctx, e)
	}
}

// Environment returns the configuration map, loading it on first access.
func (rt *Runtime) Environment() configpkg.Environment {
	rt.envOnce.Do(func() {
		if rt.preset != nil {
			env := configpkg.DefaultEnvironment()
			for k, v := range rt.preset {
				env[k] = v
			}
			rt.env = env
			return
		}
		rt.env = configpkg.LoadEnvironment(rt.envPath, rt.log)
	})
	return rt.env
}

// Config converts the environment into a typed Config. Malformed values are
// logged and replaced with defaults.
func (rt *Runtime) Config() *configpkg.Config {
	cfg, err := rt.Environment().Config()
	if err != nil {
		rt.log.Error("Invalid configuration values, using defaults", err, nil)
	}
	return cfg
}
