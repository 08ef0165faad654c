package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mediagw/internal/app"
)

func newReconcileCmd(root *rootOptions) *cobra.Command {
	var (
		prune  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report objects without records and records without objects",
		Long: "Compares the metadata store with the bucket listing. Objects with no\n" +
			"record are orphans; records with no object are dangling. With --prune,\n" +
			"orphans are deleted from the bucket and dangling records are dropped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}

			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Controller.Reconcile(cmd.Context(), prune)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			for _, key := range report.Orphans {
				fmt.Fprintf(out, "orphan\t%s\n", key)
			}
			for _, id := range report.Dangling {
				fmt.Fprintf(out, "dangling\t%s\n", id)
			}

			switch {
			case report.Clean():
				fmt.Fprintln(out, "metadata and storage agree")
			case report.Pruned:
				fmt.Fprintf(out, "pruned %d orphan(s) and %d dangling record(s)\n", len(report.Orphans), len(report.Dangling))
			default:
				fmt.Fprintf(out, "%d orphan(s), %d dangling record(s); rerun with --prune to repair\n", len(report.Orphans), len(report.Dangling))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "delete orphan objects and drop dangling records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
