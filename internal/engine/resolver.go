package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
)

// TieBreak selects how conflicting votes at the winning specificity level
// are aggregated.
type TieBreak string

const (
	// TieBreakDenyWins: any DENY vote at the winning level denies.
	TieBreakDenyWins TieBreak = "deny_wins"
	// TieBreakPolicyPriority: the highest-priority policy (lowest number)
	// at the winning level decides; equal priorities fall back to deny-wins.
	TieBreakPolicyPriority TieBreak = "policy_priority"
)

func (t TieBreak) IsValid() bool {
	return t == TieBreakDenyWins || t == TieBreakPolicyPriority
}

// Resolver turns a request context into a decision: it walks the scope
// chain, lets the matching policies vote, and aggregates the votes.
type Resolver struct {
	manager      *Manager
	entitlements core.EntitlementStore
	tieBreak     TieBreak

	// now is swappable for tests.
	now func() time.Time
}

func NewResolver(manager *Manager, entitlements core.EntitlementStore, tieBreak TieBreak) *Resolver {
	if !tieBreak.IsValid() {
		tieBreak = TieBreakDenyWins
	}
	return &Resolver{
		manager:      manager,
		entitlements: entitlements,
		tieBreak:     tieBreak,
		now:          time.Now,
	}
}

// vote is one policy's contribution at the winning specificity level.
type vote struct {
	policy  *CompiledPolicy
	outcome core.Outcome
	reason  string

	// fromError marks votes resolved through the failure mode.
	fromError bool
}

// Authorize evaluates the request and returns the resulting decision in
// PENDING state together with its full trace. It never returns an error:
// every failure is resolved into an outcome via default-deny or a policy's
// failure mode.
func (r *Resolver) Authorize(ctx context.Context, rc core.RequestContext) (core.Decision, *core.EvaluationTrace) {
	start := r.now()

	// Pre-policy failures (malformed request, hint decoding) are carried
	// into the votes so each matching policy resolves them per its own
	// failure mode instead of one global posture.
	var preErr error
	if rc.Actor == "" {
		preErr = &core.EvaluationError{Op: "resolve actor", Err: fmt.Errorf("empty actor reference")}
	} else if rc.Resource == "" {
		preErr = &core.EvaluationError{Op: "resolve resource", Err: fmt.Errorf("empty resource reference")}
	}

	var hints core.ScopeHints
	if err := mapstructure.Decode(rc.Attributes, &hints); err != nil && preErr == nil {
		preErr = &core.EvaluationError{Op: "decode scope hints", Err: err}
	}

	trace := &core.EvaluationTrace{
		Request:    rc,
		ScopeChain: rc.ScopeChain(hints),
	}

	snap := r.manager.Snapshot()

	// Walk most specific first; the first scope with matching policies is
	// the winning level and less specific policies never vote.
	var winners []*CompiledPolicy
	for _, ref := range trace.ScopeChain {
		if matched := snap.PoliciesFor(ref); len(matched) > 0 {
			winners = matched
			break
		}
	}

	d := core.Decision{
		ID:        xid.New().String(),
		CreatedAt: start.UTC(),
		Actor:     rc.Actor,
		Resource:  rc.Resource,
		Action:    rc.Action,
		State:     core.DecisionPending,
	}

	if len(winners) == 0 {
		d.Outcome = core.OutcomeDeny
		d.Reason = core.NoApplicablePolicyReason
		trace.Outcome = d.Outcome
		trace.Reason = d.Reason
		d.LatencyMS = r.now().Sub(start).Milliseconds()
		return d, trace
	}

	// Entitlement snapshot is taken once, lazily: both rules of a policy and
	// policies at the same level see the same grant state.
	var ents []core.Entitlement
	entsLoaded := false
	loadEnts := func() ([]core.Entitlement, error) {
		if entsLoaded {
			return ents, nil
		}
		loaded, err := r.entitlements.ActiveEntitlements(ctx, rc.Actor, start)
		if err != nil {
			return nil, &core.EvaluationError{Op: "load entitlements", Err: err}
		}
		ents = loaded
		entsLoaded = true
		return ents, nil
	}

	votes := make([]vote, 0, len(winners))
	for _, cp := range winners {
		v := r.evaluatePolicy(cp, rc, preErr, loadEnts, start, trace)
		votes = append(votes, v)
	}

	winner := r.aggregate(votes)
	d.Outcome = winner.outcome
	d.Reason = winner.reason
	for _, v := range votes {
		d.PoliciesEvaluated = append(d.PoliciesEvaluated, v.policy.Policy.ID)
	}
	if winner.fromError {
		d.FailureMode = winner.policy.Policy.FailureMode
	}

	// A winning ALLOW from a policy with a validity window produces a
	// time-bound decision that later moves APPROVED -> ACTIVE -> EXPIRED.
	if d.Outcome == core.OutcomeAllow && winner.policy.Policy.ValidFor > 0 {
		from := start.UTC()
		until := from.Add(winner.policy.Policy.ValidFor)
		d.ValidFrom = &from
		d.ExpiresAt = &until
	}

	trace.Outcome = d.Outcome
	trace.Reason = d.Reason
	d.LatencyMS = r.now().Sub(start).Milliseconds()

	log.Debug().
		Str("decision_id", d.ID).
		Str("actor", rc.Actor).
		Str("resource", rc.Resource).
		Str("action", rc.Action).
		Str("outcome", string(d.Outcome)).
		Strs("policies", d.PoliciesEvaluated).
		Msg("request evaluated")

	return d, trace
}

// evaluatePolicy produces one policy's vote. The policy votes ALLOW only if
// every rule matches; a clean no-match is a DENY vote regardless of failure
// mode, while an evaluation error resolves through the failure mode.
func (r *Resolver) evaluatePolicy(
	cp *CompiledPolicy,
	rc core.RequestContext,
	preErr error,
	loadEnts func() ([]core.Entitlement, error),
	at time.Time,
	trace *core.EvaluationTrace,
) vote {
	pt := core.PolicyTrace{
		PolicyID:   cp.Policy.ID,
		PolicyName: cp.Policy.Name,
		Scope:      cp.Policy.Scope,
		ScopeValue: cp.Policy.ScopeValue,
	}

	v := vote{policy: cp}
	evalErr := preErr

	if evalErr == nil && len(cp.Rules) == 0 {
		// empty rule list is an explicit allow-all policy
		v.outcome = core.OutcomeAllow
		v.reason = fmt.Sprintf("policy '%s' allows (no rules)", cp.Policy.ID)
	}

	if evalErr == nil && len(cp.Rules) > 0 {
		var ents []core.Entitlement
		if cp.NeedsEntitlements() {
			loaded, err := loadEnts()
			if err != nil {
				evalErr = err
			}
			ents = loaded
		}

		if evalErr == nil {
			in := EvalInput{
				Attributes:   rc.Attributes,
				Resource:     rc.Resource,
				Entitlements: ents,
				At:           at,
			}
			allMatched := true
			var failedRule *CompiledRule
			for _, rule := range cp.Rules {
				matched, cr, err := rule.Evaluate(in)
				rr := core.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Matched: matched}
				if err == nil {
					rr.ConditionResults = []core.ConditionResult{cr}
				}
				pt.RuleResults = append(pt.RuleResults, rr)
				if err != nil {
					evalErr = err
					break
				}
				if !matched {
					allMatched = false
					failedRule = rule
					break
				}
			}

			if evalErr == nil {
				if allMatched {
					v.outcome = core.OutcomeAllow
					v.reason = fmt.Sprintf("policy '%s' allows", cp.Policy.ID)
				} else {
					v.outcome = core.OutcomeDeny
					v.reason = fmt.Sprintf("policy '%s' denies: rule '%s' did not match", cp.Policy.ID, failedRule.ID)
				}
			}
		}
	}

	if evalErr != nil {
		v.fromError = true
		pt.Error = evalErr.Error()
		pt.FailureMode = cp.Policy.FailureMode
		if cp.Policy.FailureMode == core.FailOpen {
			v.outcome = core.OutcomeAllow
			v.reason = fmt.Sprintf("policy '%s' evaluation error (fail-open): %v", cp.Policy.ID, evalErr)
		} else {
			v.outcome = core.OutcomeDeny
			v.reason = fmt.Sprintf("policy '%s' evaluation error (fail-closed): %v", cp.Policy.ID, evalErr)
		}
	}

	pt.Vote = v.outcome
	pt.Reason = v.reason
	trace.Policies = append(trace.Policies, pt)
	return v
}

// aggregate resolves the votes of the winning specificity level into one
// outcome per the configured tie-break.
func (r *Resolver) aggregate(votes []vote) vote {
	if len(votes) == 1 {
		return votes[0]
	}

	if r.tieBreak == TieBreakPolicyPriority {
		ordered := make([]vote, len(votes))
		copy(ordered, votes)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].policy.Policy.Priority < ordered[j].policy.Policy.Priority
		})
		top := ordered[0].policy.Policy.Priority
		var contenders []vote
		for _, v := range ordered {
			if v.policy.Policy.Priority == top {
				contenders = append(contenders, v)
			}
		}
		votes = contenders
	}

	// deny wins among whatever remains
	for _, v := range votes {
		if v.outcome == core.OutcomeDeny {
			return v
		}
	}
	return votes[0]
}
