// Package store is the durable journal backing the workflow driver's
// invariants and startup orphan recovery. It is scoped strictly to the
// tables those components read or write (execution_processes,
// workflow_executions, station_executions, drafts, approval_requests, plus
// a narrow tasks/task_attempts slice carrying only the status and current
// station pointer) — it is not a general CRUD/ORM layer for the broader
// projects/tasks surface, which lives with an external collaborator.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/wardenhq/warden/backend/internal/store/migrations"
)

// Store is the sqlite-backed journal. A single shared connection is used
// (SetMaxOpenConns(1)) so concurrent writers serialize through Go rather
// than fighting over sqlite's file lock.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a Store backed by the sqlite file at path (":memory:" for an
// ephemeral in-process database, used by tests).
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Migrate applies every pending embedded migration. It does not close the
// migrator: doing so via golang-migrate's sqlite driver would close the
// shared *sql.DB underneath this long-lived Store.
func (s *Store) Migrate() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// Migrator exposes the underlying golang-migrate handle for callers that
// need finer control than Migrate's "apply everything" (the migrate CLI
// subcommand's down/version/force/goto). Unlike Migrate, the caller owns
// the returned handle and closing it also closes this Store's db
// connection — intended for short-lived CLI invocations, not the daemon.
func (s *Store) Migrator() (*migrate.Migrate, error) {
	return s.migrator()
}

func (s *Store) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("store: open migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("store: build migrator: %w", err)
	}
	return m, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new task row with the given initial status, used by
// the external task-creation flow to seed the narrow slice this Store owns.
func (s *Store) CreateTask(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (id, status) VALUES (?, ?)`, id, status)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// CreateTaskAttempt inserts a new task_attempt row owned by taskID.
func (s *Store) CreateTaskAttempt(ctx context.Context, id, taskID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO task_attempts (id, task_id) VALUES (?, ?)`, id, taskID)
	if err != nil {
		return fmt.Errorf("store: create task attempt: %w", err)
	}
	return nil
}
