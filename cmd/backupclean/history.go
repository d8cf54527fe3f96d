package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/history"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Lists recorded runs, or the evictions of one run",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := viper.GetString("history-db")
		if path == "" {
			cmd.Println("No history database configured (use --history-db)")
			return
		}

		db, err := history.Open(path)
		if err != nil {
			errutil.ReportError(err, "Failed to open history database", "path", path)
			return
		}
		defer func() { errutil.LogMsg(db.Close(), "Failed to close history database") }()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer func() { errutil.LogMsg(w.Flush(), "Failed to flush output") }()

		if runID := viper.GetString("run"); runID != "" {
			evictions, err := db.Evictions(cmd.Context(), runID)
			if err != nil {
				errutil.ReportError(err, "Failed to load evictions", "run", runID)
				return
			}
			fmt.Fprintln(w, "OUTCOME\tSIZE\tMODIFIED\tPATH\tERROR")
			for _, e := range evictions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Outcome, humanize.IBytes(uint64(e.Size)), e.ModTime.Format(time.RFC3339), e.Path, e.Error)
			}
			return
		}

		runs, err := db.ListRuns(cmd.Context(), viper.GetInt("limit"))
		if err != nil {
			errutil.ReportError(err, "Failed to list runs")
			return
		}
		fmt.Fprintln(w, "RUN\tSTARTED\tCOPIED\tDELETED\tFREED\tSIZE\tBUDGET\tDRY RUN")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%t\n",
				r.ID, r.StartedAt.Format(time.RFC3339), r.Copied, r.Deleted,
				humanize.IBytes(uint64(r.DeletedBytes)), humanize.IBytes(uint64(r.FinalSize)),
				humanize.IBytes(uint64(r.BudgetBytes)), r.DryRun)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.Flags().String("run", "", "Show the evictions of this run")

	mustBindPFlag("limit", historyCmd.Flags().Lookup("limit"))
	mustBindPFlag("run", historyCmd.Flags().Lookup("run"))
}
