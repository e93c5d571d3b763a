package cmd

import (
	"github.com/spf13/cobra"
)

// entitlementsCmd represents the entitlements command
var entitlementsCmd = &cobra.Command{
	Use:     "entitlements",
	Aliases: []string{"entitlement", "grants"},
	Short:   "Manage entitlement grants",
	Long: `Administrative surface for entitlements: explicit grants that rules can
require on top of policy conditions.

Note: these commands require admin authentication.`,
}

func init() {
	rootCmd.AddCommand(entitlementsCmd)
}
