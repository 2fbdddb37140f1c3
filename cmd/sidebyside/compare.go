package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/api"
)

var (
	outputFile string
	refresh    bool
)

var compareCmd = &cobra.Command{
	Use:   "compare FROM TO",
	Short: "Compare the release notes between two Trino versions",
	Long: `Prints the classified changes between two versions as JSON, in the same
shape the API serves. The result is cached like an API comparison.

Example:
  sidebyside compare 405 410 --output changes.json`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the JSON to this file instead of stdout")
	compareCmd.Flags().BoolVar(&refresh, "refresh", false, "ignore any cached result")
}

func runCompare(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	run := app.Comparator.Compare
	if refresh {
		run = app.Comparator.Refresh
	}
	cmp, err := run(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(api.NewCompareResponse(cmp), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal comparison: %w", err)
	}
	if outputFile == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write comparison to %s: %w", outputFile, err)
	}
	logger.Info("Wrote comparison",
		zap.String("file", outputFile),
		zap.String("from", cmp.FromVersion),
		zap.String("to", cmp.ToVersion),
		zap.Int("changes", cmp.Summary.Total))
	return nil
}
