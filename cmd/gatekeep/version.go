package main

import (
	"github.com/spf13/cobra"

	"github.com/bobmcallan/gatekeep/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("gatekeep %s (build %s, commit %s)\n", common.GetVersion(), common.GetBuild(), common.GetGitCommit())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
