package main

import (
	"context"
	"log/slog"

	"github.com/lucasew/backupclean/internal/app"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/schedule"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <sourceDir> <destDir> [sizeLimitGB]",
	Short: "Runs backup and cleanup on a cron schedule until interrupted",
	Args:  cobra.MaximumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, ok := configFromArgs(cmd, args)
		if !ok {
			return
		}

		s, err := schedule.New(viper.GetString("cron"), func(ctx context.Context) error {
			_, err := app.Run(ctx, cfg)
			return err
		})
		if err != nil {
			errutil.ReportError(err, "Failed to create scheduler")
			return
		}

		ctx := cmd.Context()
		if viper.GetBool("run-now") {
			errutil.LogMsg(s.Trigger(ctx), "Initial run finished with errors")
		}

		if err := s.Start(ctx); err != nil {
			errutil.ReportError(err, "Failed to start scheduler")
			return
		}
		slog.Info("Waiting for next run", "next", s.NextRun())

		<-ctx.Done()
		s.Stop()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("cron", "0 3 * * *", "Standard five field cron expression")
	scheduleCmd.Flags().Bool("run-now", false, "Run once immediately before waiting for the schedule")

	mustBindPFlag("cron", scheduleCmd.Flags().Lookup("cron"))
	mustBindPFlag("run-now", scheduleCmd.Flags().Lookup("run-now"))
}
