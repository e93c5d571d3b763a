package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/core"
)

var checkpointLatest bool

var auditCheckpointCmd = &cobra.Command{
	Use:   "checkpoint CHAIN-ID",
	Short: "Pin a chain's tail into a signed checkpoint",
	Long: `Creates a checkpoint of the chain's current tail hash, signed with the
server's checkpoint key when one is configured. Checkpoints live outside
the chain, so creating one never mutates the chain itself.

With --latest, the newest existing checkpoint is shown instead of
creating a new one.

Note: creating a checkpoint requires admin authentication.`,
	Example: `  custodia audit checkpoint tenant:acme
  custodia audit checkpoint tenant:acme --latest`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chainID := args[0]
		if chainID == "" {
			return fmt.Errorf("chain ID cannot be empty")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		if checkpointLatest {
			resp, correlation, err := cli.LatestCheckpoint(cmd.Context(), chainID)
			if err != nil {
				return logError(err, correlation, "failed to retrieve checkpoint")
			}
			printCheckpoint(&resp.Checkpoint)
			if resp.Checkpoint.Signed {
				if resp.Valid {
					logSuccess("signature verified")
				} else {
					log.Error().Msgf("%s signature did NOT verify", redCross)
					return BeQuietError{}
				}
			}
			return nil
		}

		log.Debug().Msgf("Checkpointing chain '%s'...", chainID)
		cp, correlation, err := cli.CheckpointChain(cmd.Context(), chainID)
		if err != nil {
			return logError(err, correlation, "failed to create checkpoint")
		}

		logSuccess("created checkpoint %s", bold(cp.ID))
		printCheckpoint(cp)
		return nil
	},
}

func printCheckpoint(cp *core.AuditCheckpoint) {
	printKV := func(key string, val any) {
		fmt.Printf("  %-26s %v\n", faint(key)+":", val)
	}

	fmt.Println(bold("\n── Checkpoint ──"))
	printKV("ID", cp.ID)
	printKV("Chain", cp.ChainID)
	printKV("Tail Sequence", cp.TailSequence)
	printKV("Tail Hash", cp.TailHash)
	printKV("Time", cp.CreatedAt.Local().Format(time.RFC1123))
	if cp.ActorID != "" {
		printKV("Created By", cp.ActorID)
	}
	if cp.Signed {
		printKV("Key ID", cp.KeyID)
		printKV("Signature", truncate(cp.Signature, 40))
	} else {
		printKV("Signature", faint("(unsigned)"))
	}
	fmt.Println()
}

func init() {
	auditCmd.AddCommand(auditCheckpointCmd)

	auditCheckpointCmd.Flags().BoolVar(&checkpointLatest, "latest", false,
		"Show the newest existing checkpoint instead of creating one")
}
