package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:     "log CHAIN-ID",
	Short:   "Retrieve and display entries of one audit chain",
	Example: `  custodia audit log tenant:acme --from 100 -n 50`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chainID := args[0]

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		from, err := cmd.Flags().GetUint64("from")
		if err != nil {
			return err
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Fetching entries of chain '%s'...", chainID)
		entries, correlation, err := cli.ChainEntries(cmd.Context(), chainID, from, limit)
		if err != nil {
			return logError(err, correlation, "failed to retrieve chain entries")
		}

		log.Debug().Msgf("Retrieved %d entries", len(entries))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Seq", "Time", "Action", "Entity", "Actor", "Outcome", "Hash",
		})

		for _, e := range entries {
			entity := e.Payload.EntityType
			if e.Payload.EntityID != "" {
				entity += "/" + truncate(e.Payload.EntityID, 20)
			}

			t.AppendRow(table.Row{
				e.Sequence,
				e.CreatedAt.Format(time.RFC3339),
				e.Payload.Action,
				entity,
				truncate(e.Payload.ActorID, 25),
				e.Payload.Outcome,
				truncate(e.EntryHash, 12),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().IntP("limit", "n", 25, "Number of entries to retrieve")
	auditLogCmd.Flags().Uint64("from", 0, "Sequence number to start at")
}
