package namespace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	configpkg "github.com/drblury/probeflow/internal/runtime/config"
)

// VariableStore persists namespace variables as raw JSON. Set replaces the
// stored value and returns the previous one, or nil when there was none.
type VariableStore interface {
	Get(ctx context.Context, name string) (json.RawMessage, bool, error)
	Set(ctx context.Context, name string, value json.RawMessage) (json.RawMessage, error)
	Close() error
}

// Store backend names accepted by OpenStore.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// OpenStore opens the backend selected by cfg.VariableStore. Keys of
// namespaceKey are kept apart from other namespaces sharing the backend.
func OpenStore(ctx context.Context, cfg *configpkg.Config, namespaceKey string) (VariableStore, error) {
	switch strings.ToLower(cfg.VariableStore) {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite:
		return OpenSQLStore(ctx, SQLiteDialect, cfg.VariableStoreDSN, namespaceKey)
	case StorePostgres:
		return OpenSQLStore(ctx, PostgresDialect, cfg.VariableStoreDSN, namespaceKey)
	case StoreRedis:
		return OpenRedisStore(ctx, cfg.VariableStoreDSN, namespaceKey)
	default:
		return nil, fmt.Errorf("variable store: unknown backend %q", cfg.VariableStore)
	}
}

// MemoryStore keeps variables in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	vars map[string]json.RawMessage
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vars: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(_ context.Context, name string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	if !ok {
		return nil, false, nil
	}
	return cloneRaw(v), true, nil
}

func (s *MemoryStore) Set(_ context.Context, name string, value json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.vars[name]
	s.vars[name] = cloneRaw(value)
	return previous, nil
}

// Names returns the stored variable names.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	return names
}

func (s *MemoryStore) Close() error { return nil }

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
