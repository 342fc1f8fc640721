package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KasumiKitsune/odyssey-sync/internal/registry"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newItemsCmd())
}

func newItemsCmd() *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "List and manage the synced folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			return printItems(cmd, svc.Registry().List())
		},
	}

	itemsCmd.AddCommand(
		newItemsAddCmd(),
		newItemsRemoveCmd(),
		newItemsEnableCmd(),
		newItemsDisableCmd(),
		newItemsRenameCmd(),
	)
	return itemsCmd
}

func newItemsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME [PATH]",
		Short: "Register a folder under the app root as a new item",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			sourcePath := ""
			if len(args) == 2 {
				sourcePath = args[1]
			}
			it, err := svc.Registry().Add(args[0], sourcePath)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s (%s)\n", cyan(it.Name), it.SourcePath)
			return nil
		},
	}
}

func newItemsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Drop an item from the sync set, keeping its folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Registry().Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", cyan(args[0]))
			return nil
		},
	}
}

func newItemsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable NAME",
		Short: "Include an item in sync runs again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Registry().Enable(args[0]); err != nil {
				return err
			}
			fmt.Printf("Enabled %s\n", cyan(args[0]))
			return nil
		},
	}
}

func newItemsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable NAME",
		Short: "Pause an item without forgetting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Registry().Disable(args[0]); err != nil {
				return err
			}
			fmt.Printf("Disabled %s\n", cyan(args[0]))
			return nil
		},
	}
}

func newItemsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a custom item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Registry().Rename(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", cyan(args[0]), cyan(args[1]))
			return nil
		},
	}
}

func printItems(cmd *cobra.Command, items []*registry.Item) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tENABLED\tBUILTIN\tLAST RUN\tSTATUS")
	for _, it := range items {
		lastRun := "never"
		if !it.LastRunAt.IsZero() {
			lastRun = it.LastRunAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\t%s\n",
			it.Name, it.SourcePath, it.Enabled, it.Builtin, lastRun, statusLabel(it.LastStatus))
	}
	return w.Flush()
}

func statusLabel(s sync.RunStatus) string {
	switch s {
	case sync.StatusSuccess:
		return green(string(s))
	case sync.StatusPartial, sync.StatusCancelled:
		return yellow(string(s))
	case sync.StatusFailed:
		return red(string(s))
	default:
		return string(s)
	}
}
