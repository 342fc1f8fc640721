package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KasumiKitsune/odyssey-sync/internal/config"
	"github.com/KasumiKitsune/odyssey-sync/internal/service"
	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
	"github.com/KasumiKitsune/odyssey-sync/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	defaultAppRoot = filepath.Join(home, "PhonAcq")
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "odyssey-sync",
	Short:         "Two-way backup for PhonAcq data folders",
	Long:          "Odyssey Sync keeps named folders under the app root and a backup target converged, copying in both directions and never deleting on its own.",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().String("app-root", "", "app root holding the item folders")
	rootCmd.PersistentFlags().String("target", "", "backup target folder")
}

func main() {
	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red("ERROR"), err)
		}
		os.Exit(1)
	}
}

func resolveConfigPath(cmd *cobra.Command) string {
	if cmd.Flag("config").Changed {
		path, _ := cmd.Flags().GetString("config")
		return path
	}
	return config.DefaultConfigPath
}

// loadConfig reads the config file, then lets ODYSSEY_* environment
// variables and any bound flags override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(cmd))
	if err != nil {
		return nil, err
	}

	viper.SetEnvPrefix("ODYSSEY")
	viper.AutomaticEnv()

	bindFlag(cmd, "app_root", "app-root")
	bindFlag(cmd, "target_root", "target")
	bindFlag(cmd, "policy", "policy")
	bindFlag(cmd, "workers", "workers")
	bindFlag(cmd, "verify", "verify")

	if v := viper.GetString("app_root"); v != "" {
		cfg.AppRoot = v
	}
	if v := viper.GetString("target_root"); v != "" {
		cfg.TargetRoot = v
	}
	if v := viper.GetString("policy"); v != "" {
		cfg.Policy = v
	}
	if viper.IsSet("workers") && viper.GetInt("workers") > 0 {
		cfg.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("verify") {
		cfg.Verify = viper.GetBool("verify")
	}

	if cfg.AppRoot == "" {
		cfg.AppRoot = defaultAppRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openService builds a Service over the resolved config. Commands that
// want progress callbacks construct their own instead.
func openService(cmd *cobra.Command) (*service.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return service.New(service.Options{Config: cfg})
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		viper.BindPFlag(key, f)
	}
}
