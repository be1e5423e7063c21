// File: cmd/extract.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kanakapalli/nova-act/internal/extract"
	"github.com/kanakapalli/nova-act/internal/observability"
)

// newExtractCmd creates the `extract` command: load one page and answer a question about it.
func newExtractCmd() *cobra.Command {
	var (
		req    extract.Request
		output string
	)

	extractCmd := &cobra.Command{
		Use:     "extract",
		Short:   "Load a page and answer an objective from its text in a single oracle call",
		Example: `  novact extract --objective "list the plan prices" --url https://example.com/pricing --readability`,
		Args:    cobra.NoArgs,
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

			extractor, err := extract.NewExtractor(deps.sessions, deps.llm, cfg.Agent.Extraction, logger)
			if err != nil {
				return err
			}
			res, err := extractor.Extract(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, output, res)
		},
	}

	extractCmd.Flags().StringVar(&req.Objective, "objective", "", "what to extract from the page")
	extractCmd.Flags().StringVarP(&req.URL, "url", "u", "", "absolute http(s) URL of the page")
	extractCmd.Flags().BoolVar(&req.Readability, "readability", false, "extract the main article instead of the whole body text")
	extractCmd.Flags().StringVarP(&output, "output", "o", "", "write the JSON result to this file instead of stdout")
	_ = extractCmd.MarkFlagRequired("objective")
	_ = extractCmd.MarkFlagRequired("url")
	return extractCmd
}
