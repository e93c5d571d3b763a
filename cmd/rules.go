package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "List the rules known to the server",
	Long: `Lists the server's rules. Rules are referenced by policies and can be
shared between them.

Note: this command requires admin authentication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving rules...")
		rules, err := cli.ListRules(cmd.Context())
		if err != nil {
			return logError(err, "", "failed to list rules")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Priority", "Version", "Enabled"})

		for _, r := range rules {
			enabled := greenCheck
			if !r.Enabled {
				enabled = redCross
			}

			t.AppendRow(table.Row{
				r.ID,
				bold(r.Name),
				r.Priority,
				r.Version,
				enabled,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
