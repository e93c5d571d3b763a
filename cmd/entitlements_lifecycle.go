package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lifecycleReason string

func newLifecycleCmd(action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     action + " ENTITLEMENT-ID",
		Short:   short,
		Example: fmt.Sprintf("  custodia entitlements %s e2h4k5l6m7n8 --reason 'incident 4711'", action),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}

			e, correlation, err := cli.EntitlementAction(cmd.Context(), args[0], action, lifecycleReason)
			if err != nil {
				return logError(err, correlation, "failed to "+action+" grant")
			}

			logSuccess("%s is now %s", bold(e.Name), bold(string(e.Status)))
			return nil
		},
	}
	cmd.Flags().StringVar(&lifecycleReason, "reason", "", "Reason for the change, recorded in the audit trail")
	return cmd
}

func init() {
	entitlementsCmd.AddCommand(
		newLifecycleCmd("activate", "Activate a pending or suspended grant"),
		newLifecycleCmd("suspend", "Temporarily suspend an active grant"),
		newLifecycleCmd("revoke", "Permanently revoke a grant"),
	)
}
