package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newClearCmd())
}

func newClearCmd() *cobra.Command {
	var yes bool

	clearCmd := &cobra.Command{
		Use:   "clear ITEM",
		Short: "Delete the target-side copy of one item",
		Long:  "Removes every file under the target folder for ITEM. The source folder under the app root is never touched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if svc.Config().TargetRoot == "" {
				return workspace.ErrTargetNotSet
			}

			name := args[0]
			if !yes && !confirmClear(cmd, svc.Config().TargetRoot, name) {
				fmt.Println("Aborted.")
				return nil
			}

			res, err := svc.ClearTarget(cmd.Context(), name, true)
			if err != nil {
				return err
			}
			return printResults([]*sync.RunResult{res})
		},
	}

	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return clearCmd
}

func confirmClear(cmd *cobra.Command, targetRoot, name string) bool {
	fmt.Printf("This deletes everything under %s for %s. The source folder stays as it is.\n",
		targetRoot, cyan(name))
	fmt.Print("Continue? [y/N] ")

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
