package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached comparisons",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cached comparisons, or all of them with --all",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		purge := app.Comparator.PurgeExpired
		if purgeAll {
			purge = app.Comparator.Clear
		}
		n, err := purge()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cached comparisons\n", n)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&purgeAll, "all", false, "delete unexpired comparisons too")
	cacheCmd.AddCommand(cachePurgeCmd)
}
