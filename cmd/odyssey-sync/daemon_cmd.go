package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiKitsune/odyssey-sync/internal/service"
	"github.com/KasumiKitsune/odyssey-sync/internal/version"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var interval time.Duration

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Watch the app root and keep the target converged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("odyssey-sync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if interval > 0 {
				svc.Config().FullSyncIntervalSecs = int(interval.Seconds())
			}

			slog.Info("daemon using config", "path", svc.Config().Path)

			defer slog.Info("Bye!")
			daemon := service.NewDaemon(svc)
			if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Full sync interval (overrides the config)")
	return daemonCmd
}
