package cmd

import (
	"github.com/spf13/cobra"
)

// decisionsCmd represents the decisions command
var decisionsCmd = &cobra.Command{
	Use:     "decisions",
	Aliases: []string{"decision"},
	Short:   "List, export and inspect recorded decisions",
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
}
