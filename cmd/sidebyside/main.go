package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside"
	"github.com/kringz/sidebyside/pkg/config"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	logLevel   string
	dsn        string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sidebyside",
	Short: "Compare Trino releases by their release notes",
	Long: `sidebyside fetches the Trino release notes of every version between two
releases, classifies each item (breaking change, new feature,
deprecated/removed, other; split by connector) and caches the result per
version pair.

Run "sidebyside serve" for the HTTP API or "sidebyside compare 405 406" for a
one-off comparison.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if dsn != "" {
			cfg.Database.DSN = dsn
		}
		logger, err = sidebyside.NewLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sidebyside version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "database DSN, a SQLite path or a postgres:// URL")

	rootCmd.AddCommand(serveCmd, compareCmd, versionsCmd, cacheCmd, versionCmd)
}

func openApp() (*sidebyside.App, error) {
	return sidebyside.New(cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
