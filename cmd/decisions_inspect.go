package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/core"
)

var decisionsInspectCmd = &cobra.Command{
	Use:     "inspect DECISION-ID",
	Short:   "Show full details of a recorded decision",
	Example: `  custodia decisions inspect d2h4k5l6m7n8`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decisionID := args[0]
		if decisionID == "" {
			return fmt.Errorf("decision ID cannot be empty")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving decision '%s'...", decisionID)
		d, correlation, err := cli.GetDecision(cmd.Context(), decisionID)
		if err != nil {
			return logError(err, correlation, "failed to retrieve decision")
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		printKV := func(key string, val any) {
			fmt.Printf("  %-26s %v\n", faint(key)+":", val)
		}

		outcome := red("DENY")
		if d.Outcome == core.OutcomeAllow {
			outcome = green("ALLOW")
		}

		fmt.Println(bold("\n── Decision ──"))
		printKV("ID", d.ID)
		printKV("Time", d.CreatedAt.Local().Format(time.RFC1123))
		printKV("Outcome", outcome)
		printKV("Reason", d.Reason)
		printKV("State", d.State)

		fmt.Println(bold("\n── Request ──"))
		printKV("Actor", d.Actor)
		printKV("Action", d.Action)
		printKV("Resource", d.Resource)

		fmt.Println(bold("\n── Evaluation ──"))
		if len(d.PoliciesEvaluated) > 0 {
			printKV("Policies", "")
			for _, p := range d.PoliciesEvaluated {
				fmt.Printf("       %s\n", p)
			}
		} else {
			printKV("Policies", faint("(none)"))
		}
		printKV("Latency", fmt.Sprintf("%dms", d.LatencyMS))
		if d.FailureMode != "" {
			printKV("Failure Mode", red(string(d.FailureMode)))
		}
		if d.ValidFrom != nil {
			printKV("Valid From", d.ValidFrom.Local().Format(time.RFC1123))
		}
		if d.ExpiresAt != nil {
			printKV("Expires At", d.ExpiresAt.Local().Format(time.RFC1123))
		}
		fmt.Println()

		return nil
	},
}

func init() {
	decisionsCmd.AddCommand(decisionsInspectCmd)
}
