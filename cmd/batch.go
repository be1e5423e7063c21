// File: cmd/batch.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/agent"
	"github.com/kanakapalli/nova-act/internal/engine"
	"github.com/kanakapalli/nova-act/internal/observability"
)

// newBatchCmd creates the `batch` command. The file holds a JSON array of run
// requests; each run gets its own browser session.
func newBatchCmd(v *viper.Viper) *cobra.Command {
	var (
		file   string
		output string
	)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run many objectives concurrently from a JSON file",
		Example: `  novact batch --file runs.json --concurrency 4 -o results.json

runs.json:
  [{"objective": "find the docs", "start_url": "https://example.com", "max_steps": 4}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var reqs []agent.RunRequest
			if err := readJSONFile(cmd, file, &reqs); err != nil {
				return err
			}
			if len(reqs) == 0 {
				return errors.New("batch file contains no run requests")
			}

			deps, err := newDependencies(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			loop, err := agent.NewLoopFromConfig(cfg, deps.sessions, deps.llm, logger, agent.WithRecorder(deps.recorder))
			if err != nil {
				return fmt.Errorf("failed to build agent loop: %w", err)
			}
			eng, err := engine.New(loop, cfg.Batch.Concurrency, logger, deps.engineOptions()...)
			if err != nil {
				return err
			}

			results := eng.RunAll(ctx, reqs)
			deps.flushMetrics(cfg, logger)
			if err := writeJSON(cmd, output, results); err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if res.Outcome == schemas.RunErrored {
					failed++
				}
			}
			if failed > 0 {
				logger.Warn("Some runs failed", zap.Int("failed", failed), zap.Int("total", len(results)))
				return fmt.Errorf("%d of %d runs ended with an error", failed, len(results))
			}
			return nil
		},
	}

	batchCmd.Flags().StringVarP(&file, "file", "f", "", `JSON file with an array of run requests ("-" reads stdin)`)
	batchCmd.Flags().Int("concurrency", 0, "maximum concurrent runs (overrides batch.concurrency)")
	batchCmd.Flags().StringVarP(&output, "output", "o", "", "write the JSON results to this file instead of stdout")
	_ = batchCmd.MarkFlagRequired("file")
	// Flag values override file and env; an unset flag falls through to them.
	_ = v.BindPFlag("batch.concurrency", batchCmd.Flags().Lookup("concurrency"))
	return batchCmd
}
