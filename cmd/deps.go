// File: cmd/deps.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/browser"
	"github.com/kanakapalli/nova-act/internal/config"
	"github.com/kanakapalli/nova-act/internal/engine"
	"github.com/kanakapalli/nova-act/internal/llmclient"
	"github.com/kanakapalli/nova-act/internal/metrics"
	"github.com/kanakapalli/nova-act/internal/store"
)

// dependencies bundles the long-lived collaborators a command needs.
type dependencies struct {
	sessions schemas.SessionFactory
	llm      schemas.LLMClient
	store    engine.Store
	recorder *metrics.Recorder
	closers  []func(ctx context.Context)
}

// newDependencies is a variable so tests can swap in fakes.
var newDependencies = buildDependencies

func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{recorder: metrics.New()}

	manager := browser.NewManager(cfg.Browser, logger)
	deps.sessions = manager
	deps.closers = append(deps.closers, func(ctx context.Context) {
		if err := manager.Shutdown(ctx); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	})

	llm, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	deps.llm = llm
	deps.closers = append(deps.closers, func(context.Context) {
		if err := llm.Close(); err != nil {
			logger.Warn("LLM client close failed", zap.Error(err))
		}
	})

	if cfg.Database.URL == "" {
		logger.Debug("No database configured; run history is not persisted.")
		return deps, nil
	}
	st, closePool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.closers = append(deps.closers, func(context.Context) { closePool() })
	if err := st.EnsureSchema(ctx); err != nil {
		deps.Close()
		return nil, err
	}
	deps.store = st
	return deps, nil
}

// engineOptions wires persistence when a store is configured.
func (d *dependencies) engineOptions() []engine.Option {
	if d.store == nil {
		return nil
	}
	return []engine.Option{engine.WithStore(d.store)}
}

// flushMetrics writes the metrics textfile when one is configured. Failures are logged only.
func (d *dependencies) flushMetrics(cfg *config.Config, logger *zap.Logger) {
	if cfg.Metrics.Textfile == "" || d.recorder == nil {
		return
	}
	if err := d.recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("Could not write metrics", zap.Error(err))
	}
}

// Close releases resources in reverse order of acquisition.
func (d *dependencies) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i](ctx)
	}
}
