package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newTargetCmd())
}

func newTargetCmd() *cobra.Command {
	targetCmd := &cobra.Command{
		Use:   "target",
		Short: "Show or change the backup target folder",
		RunE:  showTarget,
	}

	targetCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the configured target folder",
			Args:  cobra.NoArgs,
			RunE:  showTarget,
		},
		newTargetSetCmd(),
		newTargetCheckCmd(),
	)
	return targetCmd
}

func showTarget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.TargetRoot == "" {
		fmt.Println(yellow("No target folder set. Use 'odyssey-sync target set PATH'."))
		return nil
	}
	fmt.Println(cfg.TargetRoot)
	return nil
}

func newTargetSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set PATH",
		Short: "Point backups at a new target folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.SetTargetRoot(args[0]); err != nil {
				return err
			}
			// A saved target may be a drive that is not plugged in right
			// now, so a failed probe is a note, not an error.
			if err := svc.TestTargetWritable(cmd.Context()); err != nil {
				fmt.Printf("%s target saved, but not writable right now: %s\n", yellow("WARN"), err)
				return nil
			}
			fmt.Printf("%s target set to %s\n", green("OK"), svc.Config().TargetRoot)
			return nil
		},
	}
}

func newTargetCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the target folder with a real write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.TestTargetWritable(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s %s is writable\n", green("OK"), svc.Config().TargetRoot)
			return nil
		},
	}
}
