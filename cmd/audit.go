package cmd

import (
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify, read and checkpoint the audit ledger",
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
