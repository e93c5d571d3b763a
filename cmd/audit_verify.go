package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var auditVerifyCmd = &cobra.Command{
	Use:   "verify CHAIN-ID",
	Short: "Walk one audit chain and verify its hash linkage",
	Long: `Recomputes every entry hash of the chain front to back and checks the
sequence and prev-hash linkage. A broken chain reports the first bad
sequence; everything after that point is unverifiable.`,
	Example: `  custodia audit verify global
  custodia audit verify tenant:acme`,
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

		log.Debug().Msgf("Verifying chain '%s'...", chainID)
		result, correlation, err := cli.VerifyChain(cmd.Context(), chainID)
		if err != nil {
			return logError(err, correlation, "failed to verify chain")
		}

		if result.OK {
			logSuccess("chain %s is intact (%d entries)", bold(chainID), result.ChainLength)
			return nil
		}

		log.Error().Msgf("%s chain %s is BROKEN", redCross, bold(chainID))
		if result.FirstBadSequence != nil {
			log.Error().Msgf("first bad entry: sequence %d (later entries are unverifiable)",
				*result.FirstBadSequence)
		}
		return BeQuietError{}
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}
