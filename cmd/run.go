// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/agent"
	"github.com/kanakapalli/nova-act/internal/engine"
	"github.com/kanakapalli/nova-act/internal/observability"
)

// newRunCmd creates the `run` command, which drives one agent run.
func newRunCmd() *cobra.Command {
	var (
		req    agent.RunRequest
		output string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a browser toward an objective and print the run transcript",
		Example: `  novact run --objective "find the pricing page" --url https://example.com
  novact run --objective "search for gophers" --url https://duckduckgo.com --max-steps 5 -o run.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
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
			eng, err := engine.New(loop, 1, logger, deps.engineOptions()...)
			if err != nil {
				return err
			}

			res := eng.Run(ctx, req)
			deps.flushMetrics(cfg, logger)
			if err := writeJSON(cmd, output, res); err != nil {
				return err
			}

			logger.Info("Run finished",
				zap.String("run_id", res.RunID),
				zap.String("outcome", string(res.Outcome)),
				zap.Int("steps", len(res.Transcript)))
			if res.Outcome == schemas.RunErrored {
				return fmt.Errorf("run %s ended with %s: %s", res.RunID, res.Error.Kind, res.Error.Message)
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&req.Objective, "objective", "", "natural-language goal for the agent")
	runCmd.Flags().StringVarP(&req.StartURL, "url", "u", "", "absolute http(s) URL to start from")
	runCmd.Flags().IntVar(&req.MaxSteps, "max-steps", 0, "step budget (0 uses agent.max_steps)")
	runCmd.Flags().StringVar(&req.ScreenshotPath, "screenshot", "", "write a final screenshot to this path")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "write the JSON result to this file instead of stdout")
	_ = runCmd.MarkFlagRequired("objective")
	_ = runCmd.MarkFlagRequired("url")
	return runCmd
}
