package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// policiesCmd represents the policies command
var policiesCmd = &cobra.Command{
	Use:     "policies",
	Aliases: []string{"policy"},
	Short:   "List the policies known to the server",
	Long: `Lists the server's policies with their scope and failure mode.

Note: this command requires admin authentication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving policies...")
		policies, err := cli.ListPolicies(cmd.Context())
		if err != nil {
			return logError(err, "", "failed to list policies")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Scope", "Failure Mode", "Rules", "Enabled"})

		for _, p := range policies {
			scope := string(p.Scope)
			if p.ScopeValue != "" {
				scope += ":" + p.ScopeValue
			}

			enabled := greenCheck
			if !p.Enabled {
				enabled = redCross
			}

			rules := "(allow-all)"
			if len(p.RuleIDs) > 0 {
				rules = color.CyanString("%d", len(p.RuleIDs))
			}

			t.AppendRow(table.Row{
				p.ID,
				bold(p.Name),
				scope,
				p.FailureMode,
				rules,
				enabled,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}
