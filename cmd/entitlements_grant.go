package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/service"
)

var (
	grantSubject  string
	grantResource string
	grantExpires  string
	grantActivate bool
)

var entitlementsGrantCmd = &cobra.Command{
	Use:   "grant NAME",
	Short: "Create a new entitlement grant",
	Long: `Creates a grant in PENDING state; pass --activate to activate it
immediately. The grant's name is what rules reference in their
entitlement conditions.`,
	Example: `  custodia entitlements grant premium-features --subject alice --activate
  custodia entitlements grant deploy-access --subject bob --resource repo:core --expires 2026-12-31T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.GrantRequest{
			Name:      args[0],
			SubjectID: grantSubject,
			Activate:  grantActivate,
		}
		if grantResource != "" {
			req.ResourceID = grantResource
		}
		if grantExpires != "" {
			expires, err := time.Parse(time.RFC3339, grantExpires)
			if err != nil {
				return fmt.Errorf("parsing --expires: %w", err)
			}
			req.ExpiresAt = &expires
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		e, correlation, err := cli.GrantEntitlement(cmd.Context(), req)
		if err != nil {
			return logError(err, correlation, "failed to create grant")
		}

		logSuccess("granted %s to %s (id: %s, status: %s)",
			bold(e.Name), bold(e.SubjectID), e.ID, e.Status)
		return nil
	},
}

func init() {
	entitlementsCmd.AddCommand(entitlementsGrantCmd)

	entitlementsGrantCmd.Flags().StringVar(&grantSubject, "subject", "", "Subject holding the grant")
	entitlementsGrantCmd.Flags().StringVar(&grantResource, "resource", "", "Resource the grant is scoped to (default: any)")
	entitlementsGrantCmd.Flags().StringVar(&grantExpires, "expires", "", "Expiry as RFC3339 time (default: never)")
	entitlementsGrantCmd.Flags().BoolVar(&grantActivate, "activate", false, "Activate the grant immediately")

	_ = entitlementsGrantCmd.MarkFlagRequired("subject")
}
