package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/engine"
	"github.com/custodia-project/custodia/internal/service"
)

var (
	authorizeAttrs   []string
	authorizeExplain bool
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize ACTOR ACTION RESOURCE",
	Short: "Ask whether an actor may perform an action on a resource",
	Long: `Evaluates one authorization request and prints the committed decision.
With --explain, a full per-policy evaluation trace is printed, which is
useful for debugging why a request is being denied or matching the wrong
policy.

When --config is given, evaluation runs locally against the config file
without a server; otherwise the request goes to the remote server.`,
	Example: `  # Ask the server
  custodia authorize alice deploy repo:core --attr tenant_id=acme

  # Dry-run a config file locally, with trace
  custodia authorize alice deploy repo:core -f custodia.yaml --explain`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := parseAttrs(authorizeAttrs)
		if err != nil {
			return err
		}

		req := service.AuthorizeRequest{
			Actor:    args[0],
			Action:   args[1],
			Resource: args[2],
			Context:  attrs,
			Explain:  authorizeExplain,
		}

		var resp *service.AuthorizeResponse
		if f.ConfigPath != "" {
			svc, err := f.GetLocalService()
			if err != nil {
				return err
			}
			resp, err = svc.Authorize(cmd.Context(), req)
			if err != nil {
				return logError(err, "", "evaluation failed")
			}
		} else {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			var correlation string
			resp, correlation, err = cli.Authorize(cmd.Context(), req)
			if err != nil {
				return logError(err, correlation, "authorize request failed")
			}
		}

		printDecision(resp)
		if resp.Trace != nil {
			printTrace(resp.Trace)
		}
		return nil
	},
}

// parseAttrs turns repeated key=value flags into request context attributes.
// Values that parse as JSON keep their type, everything else stays a string.
func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			attrs[key] = parsed
		} else {
			attrs[key] = value
		}
	}
	return attrs, nil
}

func printDecision(resp *service.AuthorizeResponse) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	outcome := red("DENY")
	if resp.Outcome == core.OutcomeAllow {
		outcome = green("ALLOW")
	}

	fmt.Printf("\n%s %s\n", bold("Decision:"), bold(outcome))
	fmt.Printf("  %s %s\n", faint("ID:"), resp.DecisionID)
	fmt.Printf("  %s %s\n", faint("Reason:"), resp.Reason)
	fmt.Printf("  %s %s\n", faint("State:"), resp.State)
	if resp.ValidFrom != nil && resp.ExpiresAt != nil {
		fmt.Printf("  %s %s until %s\n", faint("Window:"), resp.ValidFrom, resp.ExpiresAt)
	}
	if resp.ChainID != "" && resp.AuditSequence != nil {
		fmt.Printf("  %s %s #%d\n", faint("Audit:"), resp.ChainID, *resp.AuditSequence)
	}
	fmt.Printf("  %s %dms, %d policies\n", faint("Took:"), resp.LatencyMS, len(resp.PoliciesEvaluated))
	fmt.Println()
}

func printTrace(trace *core.EvaluationTrace) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("%s for Actor: %s (Action: %s, Resource: %s)\n",
		bold("Evaluation Trace"),
		bold(trace.Request.Actor),
		trace.Request.Action,
		trace.Request.Resource)

	fmt.Println(faint("---------------------------------------------------"))

	for _, pt := range trace.Policies {
		icon := red("✖")
		if pt.Vote == core.OutcomeAllow {
			icon = green("✔")
		}

		name := pt.PolicyName
		if name == "" {
			name = pt.PolicyID
		}
		fmt.Printf("%s Policy: %s %s\n", icon, bold(name), faint("("+string(pt.Scope)+")"))
		if pt.Reason != "" {
			fmt.Printf("  %s\n", faint(pt.Reason))
		}
		if pt.Error != "" {
			fmt.Printf("  %s %s\n", yellow("evaluation error:"), yellow(pt.Error))
			fmt.Printf("  %s\n", faint("vote came from failure mode "+string(pt.FailureMode)))
		}

		for _, res := range pt.RuleResults {
			ruleIcon := red("✖")
			if res.Matched {
				ruleIcon = green("✔")
			}
			ruleName := res.RuleName
			if ruleName == "" {
				ruleName = res.RuleID
			}
			fmt.Printf("  %s Rule: %s\n", ruleIcon, bold(ruleName))

			var flat []core.ConditionResult
			for _, cond := range res.ConditionResults {
				engine.Flatten(&flat, cond, 0)
			}

			for _, cond := range flat {
				// calculate depth based on leading spaces
				trimmed := strings.TrimLeft(cond.Expression, " ")
				indentLen := len(cond.Expression) - len(trimmed)
				indent := strings.Repeat(" ", indentLen)

				// detect if this is a label
				isLogicGate := strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")

				condIcon := red("✖")
				if cond.Matched {
					condIcon = green("✔")
				}

				if isLogicGate {
					fmt.Printf("    %s%s %s\n", indent, condIcon, cyan(trimmed))
				} else {
					fmt.Printf("    %s%s %s\n", indent, condIcon, trimmed)
				}

				if cond.Reason != "" {
					reasonIndent := indent + "      "
					reason := cond.Reason
					if cond.Matched {
						reason = faint(reason)
					} else {
						reason = yellow(reason)
					}
					fmt.Printf("%s↳ %s\n", reasonIndent, reason)
				}
			}
		}

		fmt.Println()
	}

	fmt.Println("---------------------------------------------------")
	if trace.Outcome == core.OutcomeAllow {
		fmt.Printf("Outcome: %s (%s)\n", bold(green("allowed")), trace.Reason)
	} else {
		fmt.Printf("Outcome: %s (%s)\n", bold(red("denied")), trace.Reason)
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(authorizeCmd)

	authorizeCmd.Flags().StringArrayVar(&authorizeAttrs, "attr", nil,
		"Request context attribute as key=value (repeatable)")
	authorizeCmd.Flags().BoolVar(&authorizeExplain, "explain", false,
		"Include the full evaluation trace")
	f.bindConfigFlag(authorizeCmd.Flags())
}
