package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/KasumiKitsune/odyssey-sync/internal/service"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var dryRun bool

	runCmd := &cobra.Command{
		Use:   "run [ITEM...]",
		Short: "Sync all enabled items, or just the named ones",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			progress := newRunProgress()
			svc, err := service.New(service.Options{
				Config:     cfg,
				OnProgress: progress.update,
			})
			if err != nil {
				return err
			}
			defer svc.Close()

			if dryRun {
				return showPlan(cmd, svc, args)
			}

			var results []*sync.RunResult
			if len(args) > 0 {
				results, err = svc.RunItems(cmd.Context(), args)
			} else {
				results, err = svc.RunAll(cmd.Context())
			}
			progress.finish()

			if err != nil {
				return err
			}
			return printResults(results)
		},
	}

	runCmd.Flags().SortFlags = false
	runCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what a run would do without touching files")
	runCmd.Flags().StringP("policy", "p", "", "Conflict policy: newer, source or target")
	runCmd.Flags().IntP("workers", "w", 0, "Copy worker count")
	runCmd.Flags().Bool("verify", false, "Verify every copy with a checksum")

	return runCmd
}

func showPlan(cmd *cobra.Command, svc *service.Service, args []string) error {
	names := args
	if len(names) == 0 {
		for _, it := range svc.Registry().Enabled() {
			names = append(names, it.Name)
		}
	}

	for _, name := range names {
		actions, err := svc.Plan(cmd.Context(), name)
		if err != nil {
			return err
		}

		skipped := 0
		fmt.Printf("%s\n", cyan(name))
		for _, act := range actions {
			if act.Direction == sync.Skip {
				skipped++
				continue
			}
			fmt.Printf("  %s  %s (%s)\n", dirLabel(act.Direction), act.RelPath, humanize.Bytes(uint64(act.Size)))
		}
		fmt.Printf("  %d in sync or skipped\n", skipped)
	}
	return nil
}

func dirLabel(d sync.Direction) string {
	switch d {
	case sync.ToTarget:
		return green("-> target")
	case sync.ToSource:
		return cyan("<- target")
	case sync.DeleteFromTarget, sync.DeleteFromSource:
		return red("delete")
	default:
		return "skip"
	}
}

func printResults(results []*sync.RunResult) error {
	failedItems := 0
	for _, res := range results {
		status := string(res.Status)
		switch res.Status {
		case sync.StatusSuccess:
			status = green(status)
		case sync.StatusPartial, sync.StatusCancelled:
			status = yellow(status)
		case sync.StatusFailed:
			status = red(status)
		}

		fmt.Printf("%s: %s (%d to target, %d to source, %d deleted, %d skipped, %d failed, %s, %s)\n",
			cyan(res.Item), status,
			res.ToTarget, res.ToSource, res.Deleted, res.Skipped, res.Failed,
			humanize.Bytes(uint64(res.Bytes)),
			res.Duration().Round(time.Millisecond))

		for _, f := range res.Failures {
			fmt.Printf("  %s %s: %s\n", red("!"), f.RelPath, f.Message)
		}

		if res.Failed > 0 || res.Status == sync.StatusFailed {
			failedItems++
		}
	}

	if failedItems > 0 {
		return fmt.Errorf("%d item(s) finished with failures", failedItems)
	}
	return nil
}

// runProgress drives one bar per item. On non-terminals it stays quiet
// and leaves output to the logger.
type runProgress struct {
	enabled bool
	item    string
	bar     *pb.ProgressBar
}

func newRunProgress() *runProgress {
	return &runProgress{enabled: isatty.IsTerminal(os.Stdout.Fd())}
}

func (p *runProgress) update(ev sync.ProgressEvent) {
	if !p.enabled {
		return
	}

	if p.bar == nil || p.item != ev.Item {
		p.finish()
		p.item = ev.Item
		p.bar = pb.New(ev.Total)
		p.bar.SetTemplate(`{{string . "item"}} {{counters .}} {{bar .}} {{percent .}}`)
		p.bar.Set("item", ev.Item)
		p.bar.Start()
	}

	p.bar.SetCurrent(int64(ev.Done))
	if ev.Done >= ev.Total {
		p.finish()
	}
}

func (p *runProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
		p.item = ""
	}
}
