package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	trinoversion "github.com/kringz/sidebyside/pkg/version"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage the catalog of known Trino versions",
}

var versionsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Seed the catalog and add every version listed on the release index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.Catalog.Seed(); err != nil {
			return err
		}
		n, err := app.Catalog.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d versions\n", n)
		return nil
	},
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known versions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Catalog.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tLTS\tRELEASED\tURL")
		for _, e := range entries {
			released := ""
			if e.ReleaseDate != nil {
				released = e.ReleaseDate.Format("2006-01-02")
			}
			lts := ""
			if e.LTS {
				lts = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Version, lts, released, e.URL)
		}
		return w.Flush()
	},
}

var versionsCheckCmd = &cobra.Command{
	Use:   "check VERSION...",
	Short: "Check that release notes are published for each version",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		missing := 0
		for _, arg := range args {
			v, err := trinoversion.CanonicalString(arg)
			if err != nil {
				return err
			}
			ok, err := app.Fetcher.Probe(cmd.Context(), v)
			if err != nil {
				return err
			}
			status := "ok"
			if !ok {
				status = "missing"
				missing++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", v, status, app.Fetcher.URL(v))
		}
		if missing > 0 {
			return fmt.Errorf("%d of %d versions have no release notes", missing, len(args))
		}
		return nil
	},
}

func init() {
	versionsCmd.AddCommand(versionsSyncCmd, versionsListCmd, versionsCheckCmd)
}
