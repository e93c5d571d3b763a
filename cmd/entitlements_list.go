package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/core"
)

var entitlementsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all entitlement grants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving entitlements...")
		entitlements, err := cli.ListEntitlements(cmd.Context())
		if err != nil {
			return logError(err, "", "failed to list entitlements")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Subject", "Resource", "Status", "Expires"})

		for _, e := range entitlements {
			status := string(e.Status)
			switch e.Status {
			case core.EntitlementActive:
				status = color.GreenString(status)
			case core.EntitlementSuspended:
				status = color.YellowString(status)
			case core.EntitlementRevoked, core.EntitlementExpired:
				status = color.RedString(status)
			}

			expires := "never"
			if e.ExpiresAt != nil {
				expires = e.ExpiresAt.Format(time.RFC3339)
			}

			resource := e.ResourceID
			if resource == "" {
				resource = "(any)"
			}

			t.AppendRow(table.Row{
				e.ID,
				bold(e.Name),
				truncate(e.SubjectID, 25),
				truncate(resource, 30),
				status,
				expires,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	entitlementsCmd.AddCommand(entitlementsListCmd)
}
