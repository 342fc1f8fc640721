package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history [ITEM]",
		Short: "Show recent sync runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			item := ""
			if len(args) == 1 {
				item = args[0]
			}
			runs, err := svc.History().Recent(item, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tITEM\tSTATUS\tTO TARGET\tTO SOURCE\tDELETED\tFAILED\tBYTES")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Item, statusLabel(run.Status),
					run.ToTarget, run.ToSource, run.Deleted, run.Failed,
					humanize.Bytes(uint64(run.Bytes)))
			}
			return w.Flush()
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Most recent runs to show (default 20)")
	historyCmd.AddCommand(newHistoryPruneCmd())
	return historyCmd
}

func newHistoryPruneCmd() *cobra.Command {
	var keepDays int

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop run records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			removed, err := svc.History().Prune(keepDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d run record(s) older than %d day(s)\n", removed, keepDays)
			return nil
		},
	}

	pruneCmd.Flags().IntVar(&keepDays, "keep-days", 90, "Keep runs newer than this many days")
	return pruneCmd
}
