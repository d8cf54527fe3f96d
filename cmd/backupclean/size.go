package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/lucasew/backupclean/internal/dirsize"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sizeCmd = &cobra.Command{
	Use:   "size <dir>",
	Short: "Prints the recursive size of a folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		calc := dirsize.Calculator{FollowSymlinks: viper.GetBool("follow-symlinks")}
		total, err := calc.Calculate(cmd.Context(), args[0])
		if err != nil {
			errutil.ReportError(err, "Failed to compute folder size", "path", args[0])
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", total, humanize.IBytes(uint64(total)), args[0])
	},
}

func init() {
	rootCmd.AddCommand(sizeCmd)
}
