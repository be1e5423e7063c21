package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agent_runs (
    run_id          TEXT PRIMARY KEY,
    objective       TEXT NOT NULL,
    start_url       TEXT NOT NULL,
    max_steps       INTEGER NOT NULL,
    outcome         TEXT NOT NULL,
    error_kind      TEXT,
    error_message   TEXT,
    final_url       TEXT,
    screenshot_path TEXT,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_steps (
    run_id         TEXT NOT NULL REFERENCES agent_runs (run_id) ON DELETE CASCADE,
    step_index     INTEGER NOT NULL,
    url            TEXT NOT NULL,
    visible_text   TEXT NOT NULL,
    truncated      BOOLEAN NOT NULL,
    thought        TEXT NOT NULL,
    action         TEXT NOT NULL,
    target         TEXT NOT NULL,
    outcome_status TEXT NOT NULL,
    outcome_detail TEXT NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL,
    PRIMARY KEY (run_id, step_index)
);`

const sqlInsertRun = `
    INSERT INTO agent_runs (run_id, objective, start_url, max_steps, outcome, error_kind, error_message, final_url, screenshot_path, started_at, finished_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    ON CONFLICT (run_id) DO NOTHING;`

const sqlInsertStep = `
    INSERT INTO agent_steps (run_id, step_index, url, visible_text, truncated, thought, action, target, outcome_status, outcome_detail, started_at, duration_ms)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

// ErrDuplicateRun is returned when a run ID was already saved.
var ErrDuplicateRun = errors.New("run already persisted")

// Store persists finished runs to PostgreSQL.
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

// Connect opens a pgx pool for url and wraps it in a Store. The returned close
// function releases the pool.
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

// EnsureSchema creates the run tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes the run row and all of its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, res schemas.LoopResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var errKind, errMsg, finalURL *string
	if res.Error != nil {
		errKind, errMsg = &res.Error.Kind, &res.Error.Message
	}
	if res.FinalObservation != nil {
		finalURL = &res.FinalObservation.URL
	}

	tag, err := tx.Exec(ctx, sqlInsertRun,
		res.RunID, res.Objective, res.StartURL, res.MaxSteps, string(res.Outcome),
		errKind, errMsg, finalURL, nullable(res.ScreenshotPath),
		res.StartedAt.UTC(), res.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, res.RunID)
	}

	for _, step := range res.Transcript {
		_, err := tx.Exec(ctx, sqlInsertStep,
			res.RunID, step.StepIndex,
			step.Observation.URL, step.Observation.VisibleText, step.Observation.Truncated,
			step.Proposal.Thought, step.Proposal.Action, step.Proposal.Target,
			string(step.Outcome.Status), step.Outcome.Detail,
			step.StartedAt.UTC(), step.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d of run %s: %w", step.StepIndex, res.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", res.RunID), zap.Int("steps", len(res.Transcript)))
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
