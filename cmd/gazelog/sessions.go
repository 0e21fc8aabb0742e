package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazelog/pkg/catalog"
)

func sessionsCmd(g *globals) *cobra.Command {
	var (
		limit   int
		scan    bool
		pending bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(g.cfg.CatalogPath)
			if err != nil {
				return err
			}
			defer cat.Close()

			ctx := cmd.Context()
			if scan {
				n, err := cat.Scan(ctx, g.cfg.Session.Dir)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Some logs could not be read:\n%v\n", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %d logs from %s\n", n, g.cfg.Session.Dir)
			}

			var entries []catalog.Entry
			if pending {
				entries, err = cat.Pending(ctx)
			} else {
				entries, err = cat.List(ctx, limit)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max results (0 = no limit)")
	cmd.Flags().BoolVar(&scan, "scan", false, "Index logs in the session directory first")
	cmd.Flags().BoolVar(&pending, "pending", false, "Only sessions not yet uploaded")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tSTARTED\tROWS\tDURATION\tSTATUS\tFILE")
	for _, e := range entries {
		status := "complete"
		if e.Incomplete() {
			status = "incomplete: " + e.Reason
		}
		if e.Uploaded() {
			status += ", uploaded"
		}
		fmt.Fprintf(tw, "%03d\t%s\t%d\t%.1fs\t%s\t%s\n",
			e.Serial,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Rows,
			e.Duration.Seconds(),
			status,
			filepath.Base(e.Path))
	}
	tw.Flush()
}
