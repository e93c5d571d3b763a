package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/pkg/client"
)

var (
	decisionsActor    string
	decisionsResource string
	decisionsOutcome  string
	decisionsFrom     string
	decisionsTo       string
	decisionsFilter   string
)

var decisionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "export"},
	Short:   "List recorded decisions",
	Long: `Pages through the decisions recorded by the server. Server-side
filtering covers actor, resource, outcome and time range; --filter applies
an additional expression to each row on the client, e.g.:

  --filter 'outcome == "DENY" && latency_ms > 50'`,
	Example: `  custodia decisions list --actor alice --outcome DENY
  custodia decisions list --from 2026-08-01T00:00:00Z --filter 'latency_ms > 100'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		offset, err := cmd.Flags().GetInt("offset")
		if err != nil {
			return err
		}

		opts := client.ListDecisionsOpts{
			Actor:    decisionsActor,
			Resource: decisionsResource,
			Outcome:  decisionsOutcome,
			Limit:    limit,
			Offset:   offset,
		}
		if decisionsFrom != "" {
			if opts.From, err = time.Parse(time.RFC3339, decisionsFrom); err != nil {
				return fmt.Errorf("parsing --from: %w", err)
			}
		}
		if decisionsTo != "" {
			if opts.To, err = time.Parse(time.RFC3339, decisionsTo); err != nil {
				return fmt.Errorf("parsing --to: %w", err)
			}
		}

		var program *vm.Program
		if decisionsFilter != "" {
			if program, err = expr.Compile(decisionsFilter, expr.AsBool()); err != nil {
				return fmt.Errorf("compiling filter: %w", err)
			}
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving decisions...")
		page, correlation, err := cli.ListDecisions(cmd.Context(), opts)
		if err != nil {
			return logError(err, correlation, "failed to list decisions")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Time", "Actor", "Action", "Resource", "Outcome", "State"})

		shown := 0
		for _, d := range page.Decisions {
			if program != nil {
				keep, err := matchDecision(program, d)
				if err != nil {
					return fmt.Errorf("running filter: %w", err)
				}
				if !keep {
					continue
				}
			}
			shown++

			outcome := greenCheck + " ALLOW"
			if d.Outcome == core.OutcomeDeny {
				outcome = redCross + " DENY"
			}

			t.AppendRow(table.Row{
				d.ID,
				d.CreatedAt.Format(time.RFC3339),
				truncate(d.Actor, 25),
				d.Action,
				truncate(d.Resource, 35),
				outcome,
				d.State,
			})
		}

		applyTableFormat(t)
		t.Render()

		if page.HasMore {
			fmt.Printf("%s\n", faint(fmt.Sprintf("more results available, continue with --offset %d",
				page.Offset+page.Limit)))
		}
		log.Debug().Msgf("showing %d of %d retrieved decisions", shown, len(page.Decisions))
		return nil
	},
}

// matchDecision runs the compiled filter expression against one decision.
func matchDecision(program *vm.Program, d core.Decision) (bool, error) {
	env := map[string]any{
		"id":         d.ID,
		"actor":      d.Actor,
		"resource":   d.Resource,
		"action":     d.Action,
		"outcome":    string(d.Outcome),
		"reason":     d.Reason,
		"state":      string(d.State),
		"latency_ms": d.LatencyMS,
		"created_at": d.CreatedAt,
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	keep, ok := out.(bool)
	return ok && keep, nil
}

func init() {
	decisionsCmd.AddCommand(decisionsListCmd)

	decisionsListCmd.Flags().StringVar(&decisionsActor, "actor", "", "Filter by actor")
	decisionsListCmd.Flags().StringVar(&decisionsResource, "resource", "", "Filter by resource")
	decisionsListCmd.Flags().StringVar(&decisionsOutcome, "outcome", "", "Filter by outcome (ALLOW, DENY)")
	decisionsListCmd.Flags().StringVar(&decisionsFrom, "from", "", "Only decisions at or after this RFC3339 time")
	decisionsListCmd.Flags().StringVar(&decisionsTo, "to", "", "Only decisions before this RFC3339 time")
	decisionsListCmd.Flags().StringVar(&decisionsFilter, "filter", "", "Client-side filter expression")
	decisionsListCmd.Flags().IntP("limit", "n", 100, "Number of decisions to retrieve")
	decisionsListCmd.Flags().Int("offset", 0, "Number of decisions to skip")
}
