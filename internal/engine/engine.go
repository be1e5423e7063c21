// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/agent"
)

// -- Interfaces for Dependency Inversion --

// Runner executes one agent run. *agent.Loop satisfies it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) schemas.LoopResult
}

// Store persists finished runs. *store.Store satisfies it.
type Store interface {
	SaveRun(ctx context.Context, res schemas.LoopResult) error
}

// Engine runs independent objectives concurrently, one browser session per run.
type Engine struct {
	runner         Runner
	store          Store
	concurrency    int
	persistTimeout time.Duration
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists every finished run. Persistence failures are logged and
// never change a run's outcome.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// New creates an Engine running at most concurrency runs at a time.
func New(runner Runner, concurrency int, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	e := &Engine{
		runner:         runner,
		concurrency:    concurrency,
		persistTimeout: 30 * time.Second,
		logger:         logger.With(zap.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes a single request and persists its result.
func (e *Engine) Run(ctx context.Context, req agent.RunRequest) schemas.LoopResult {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	res := e.runner.Run(ctx, req)
	e.persist(ctx, res)
	return res
}

// RunAll executes every request and returns the results in request order. A
// failed run never aborts its siblings; cancelling ctx makes the remaining runs
// end as CANCELED.
func (e *Engine) RunAll(ctx context.Context, reqs []agent.RunRequest) []schemas.LoopResult {
	results := make([]schemas.LoopResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	e.logger.Info("Starting batch", zap.Int("runs", len(reqs)), zap.Int("concurrency", e.concurrency))
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[schemas.RunOutcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	e.logger.Info("Batch finished",
		zap.Int("completed", counts[schemas.RunCompleted]),
		zap.Int("max_steps_reached", counts[schemas.RunMaxStepsReached]),
		zap.Int("errored", counts[schemas.RunErrored]))
	return results
}

func (e *Engine) persist(ctx context.Context, res schemas.LoopResult) {
	if e.store == nil {
		return
	}
	// Save even when the batch context was cancelled during shutdown.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
	defer cancel()

	logger := e.logger.With(zap.String("run_id", res.RunID))
	if err := e.store.SaveRun(persistCtx, res); err != nil {
		logger.Error("Failed to persist run", zap.Error(err))
		return
	}
	logger.Debug("Run persisted.")
}
