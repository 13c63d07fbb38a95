// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultLimit caps RecentRuns when no limit is given.
const DefaultLimit = 20

// Outcome is how a login run ended.
type Outcome string

const (
	OutcomeLoggedIn             Outcome = "logged_in"
	OutcomeAlreadyAuthenticated Outcome = "already_authenticated"
	OutcomeFailed               Outcome = "failed"
)

// Run is one recorded login attempt.
type Run struct {
	ID         uuid.UUID
	Service    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	// Error is the failure message, empty on success.
	Error string
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store keeps the login run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for url and wraps it in a Store. The returned func closes the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

const sqlSchema = `
    CREATE TABLE IF NOT EXISTS login_runs (
        id          UUID PRIMARY KEY,
        service     TEXT NOT NULL,
        started_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL,
        outcome     TEXT NOT NULL,
        error       TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS login_runs_service_started_idx ON login_runs (service, started_at DESC);
`

// EnsureSchema creates the run table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const sqlInsertRun = `
    INSERT INTO login_runs (id, service, started_at, finished_at, outcome, error)
    VALUES ($1, $2, $3, $4, $5, $6);
`

// RecordRun inserts run. A zero ID is replaced with a random one.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.ID.String(), run.Service,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		string(run.Outcome), run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	s.log.Debug("Run recorded.", zap.String("service", run.Service), zap.String("outcome", string(run.Outcome)))
	return nil
}

const sqlRecentRuns = `
    SELECT id, service, started_at, finished_at, outcome, error
    FROM login_runs
    WHERE ($1 = '' OR service = $1)
    ORDER BY started_at DESC
    LIMIT $2;
`

// RecentRuns returns the newest runs first. An empty service matches all services.
func (s *Store) RecentRuns(ctx context.Context, service string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r       Run
			id      string
			outcome string
		)
		if err := rows.Scan(&id, &r.Service, &r.StartedAt, &r.FinishedAt, &outcome, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		r.Outcome = Outcome(outcome)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
