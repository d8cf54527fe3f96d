package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lucasew/backupclean/internal/app"
	"github.com/lucasew/backupclean/internal/copier"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "backupclean <sourceDir> <destDir> [sizeLimitGB]",
	Short: "Backs up recent files and trims the backup folder to a size limit",
	Long: `backupclean copies the files of sourceDir modified in the last 24 hours into
destDir, then deletes the oldest files of destDir until its total size is at
most sizeLimitGB gigabytes (default 128).`,
	Args:              cobra.MaximumNArgs(3),
	PersistentPreRunE: setupLogging,
	SilenceUsage:      true,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, ok := configFromArgs(cmd, args)
		if !ok {
			return
		}
		// Failures were already logged by the components; a run never
		// changes the exit status.
		_, _ = app.Run(cmd.Context(), cfg)
	},
}

// Execute runs the root command. Problems are reported on stderr but the
// process always exits with status 0.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if _, printErr := fmt.Fprintln(os.Stderr, err); printErr != nil {
			errutil.ReportError(printErr, "Failed to print error to stderr")
		}
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.Duration("lookback", copier.DefaultLookback, "Copy source files modified within this window")
	flags.Bool("follow-symlinks", false, "Follow symlinks when computing folder sizes")
	flags.Int("delete-attempts", 1, "Delete attempts per file before it is skipped")
	flags.Int64("min-free-space", 0, "Also evict while free disk space is below this many bytes (0 disables)")
	flags.Bool("verify", false, "Verify every copy by hashing it")
	flags.String("hash", "sha256", "Hash algorithm used by --verify")
	flags.Bool("progress", false, "Show a progress bar per copied file")
	flags.Bool("dry-run", false, "Report evictions without deleting")
	flags.Bool("skip-backup", false, "Only enforce the size limit")
	flags.String("history-db", "", "Record runs in this sqlite database")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file after each run")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")

	for _, name := range []string{
		"lookback", "follow-symlinks", "delete-attempts", "min-free-space",
		"verify", "hash", "progress", "dry-run", "skip-backup",
		"history-db", "metrics-file", "log-level", "log-format",
	} {
		mustBindPFlag(name, flags.Lookup(name))
	}
}

func initConfig() {
	viper.SetEnvPrefix("BACKUPCLEAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", key, err))
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logger, err := logging.Setup(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
	if logger == nil {
		return err
	}
	errutil.LogMsg(err, "Falling back to info logging")
	return nil
}

// loadConfig resolves flags and environment into a run configuration.
func loadConfig() app.Config {
	cfg := app.DefaultConfig()
	cfg.Lookback = viper.GetDuration("lookback")
	cfg.FollowSymlinks = viper.GetBool("follow-symlinks")
	cfg.DeleteAttempts = viper.GetInt("delete-attempts")
	cfg.MinFreeSpace = viper.GetInt64("min-free-space")
	cfg.Verify = viper.GetBool("verify")
	cfg.HashAlgo = viper.GetString("hash")
	cfg.Progress = viper.GetBool("progress")
	cfg.DryRun = viper.GetBool("dry-run")
	cfg.SkipBackup = viper.GetBool("skip-backup")
	cfg.HistoryDB = viper.GetString("history-db")
	cfg.MetricsFile = viper.GetString("metrics-file")
	return cfg
}

// configFromArgs builds the run configuration. Argument errors are reported
// and the caller returns without doing anything.
func configFromArgs(cmd *cobra.Command, args []string) (app.Config, bool) {
	cfg := loadConfig()
	err := cfg.ApplyArgs(args)
	switch {
	case errors.Is(err, app.ErrMissingArgs):
		cmd.Println("No parameters specified")
		_ = cmd.Usage()
		return cfg, false
	case err != nil:
		slog.Error("Invalid arguments", "error", err)
		return cfg, false
	}
	return cfg, true
}
