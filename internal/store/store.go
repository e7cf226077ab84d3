package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/querysql"
	"github.com/roach88/criteria/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

//go:embed seed.sql
var seedSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added indexes on foreign key columns used by fetches and joins
const currentSchemaVersion = 1

// Store runs generated criteria queries on a relational database and
// materializes the rows as entities.
type Store struct {
	db     *sql.DB
	d      dialect.Dialect
	reg    *schema.Registry
	sql    *querysql.SQLCompiler
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry replaces the demo registry.
func WithRegistry(reg *schema.Registry) Option {
	return func(s *Store) {
		s.reg = reg
	}
}

// WithLogger sets the logger for executed statements.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open connects to the database named by dsn using the dialect's driver.
//
// A SQLite database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// and gets the demo schema and its migrations applied. Other databases are
// expected to hold the tables already.
func Open(ctx context.Context, d dialect.Dialect, dsn string, opts ...Option) (*Store, error) {
	if d.DriverName() == "" {
		return nil, fmt.Errorf("dialect %s has no database driver", d.Name())
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d.Name() == dialect.NameSQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return New(db, d, opts...), nil
}

// New wraps an open database. The registry defaults to DemoRegistry.
func New(db *sql.DB, d dialect.Dialect, opts ...Option) *Store {
	s := &Store{
		db:     db,
		d:      d,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = DemoRegistry()
	}
	s.sql = querysql.NewSQLCompiler(s.reg, d)
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Registry returns the entity registry rows are materialized with.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// Dialect returns the database dialect.
func (s *Store) Dialect() dialect.Dialect {
	return s.d
}

// Seed inserts the demo data set unless subjects already exist.
func (s *Store) Seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subject").Scan(&n); err != nil {
		return fmt.Errorf("count subjects: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, seedSQL); err != nil {
		return fmt.Errorf("insert demo data: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Debug("seeded demo data")
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the foreign keys that collection loads filter on.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_resource_parent ON resource(parent_resource_id);
		CREATE INDEX IF NOT EXISTS idx_resource_type ON resource(resource_type_id);
		CREATE INDEX IF NOT EXISTS idx_alert_definition_resource ON alert_definition(resource_id);
		CREATE INDEX IF NOT EXISTS idx_alert_condition_definition ON alert_condition(alert_definition_id, position);
		CREATE INDEX IF NOT EXISTS idx_alert_notification_definition ON alert_notification(alert_definition_id);
		CREATE INDEX IF NOT EXISTS idx_group_resource_resource ON resource_group_resource(resource_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
