package namespace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect captures the driver specific parts of the SQL store.
type Dialect struct {
	Driver string
	// Placeholder returns the bind marker for the n-th argument, starting at 1.
	Placeholder func(n int) string
}

var (
	SQLiteDialect = Dialect{
		Driver:      "sqlite3",
		Placeholder: func(int) string { return "?" },
	}
	PostgresDialect = Dialect{
		Driver:      "postgres",
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// SQLTable is the table holding namespace variables.
const SQLTable = "probeflow_variables"

// SQLStore keeps variables in a SQL table keyed by (namespace, name).
type SQLStore struct {
	db        *sql.DB
	namespace string
	ownsDB    bool

	selectQuery string
	upsertQuery string
}

// OpenSQLStore opens dsn with the dialect driver and creates the table when
// missing.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn, namespace string) (*SQLStore, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Driver, err)
	}
	if dialect.Driver == SQLiteDialect.Driver {
		db.SetMaxOpenConns(1)
	}

	store := NewSQLStore(db, dialect, namespace)
	store.ownsDB = true
	if err := store.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLStore wraps an open database. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, dialect Dialect, namespace string) *SQLStore {
	p := dialect.Placeholder
	return &SQLStore{
		db:        db,
		namespace: namespace,
		selectQuery: fmt.Sprintf(`SELECT value FROM %s WHERE namespace = %s AND name = %s`,
			SQLTable, p(1), p(2)),
		upsertQuery: fmt.Sprintf(`INSERT INTO %s (namespace, name, value) VALUES (%s, %s, %s)
ON CONFLICT (namespace, name) DO UPDATE SET value = excluded.value`,
			SQLTable, p(1), p(2), p(3)),
	}
}

// InitSchema creates the variables table.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	namespace TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (namespace, name)
)`, SQLTable))
	return err
}

func (s *SQLStore) Get(ctx context.Context, name string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.selectQuery, s.namespace, name).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get variable %q: %w", name, err)
	}
	return json.RawMessage(value), true, nil
}

func (s *SQLStore) Set(ctx context.Context, name string, value json.RawMessage) (json.RawMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("set variable %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous json.RawMessage
	var stored string
	err = tx.QueryRowContext(ctx, s.selectQuery, s.namespace, name).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("set variable %q: %w", name, err)
	default:
		previous = json.RawMessage(stored)
	}

	if _, err := tx.ExecContext(ctx, s.upsertQuery, s.namespace, name, string(value)); err != nil {
		return nil, fmt.Errorf("set variable %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("set variable %q: %w", name, err)
	}
	return previous, nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
