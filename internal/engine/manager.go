package engine

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
)

// CompiledPolicy pairs a policy with its rules compiled for evaluation.
// Rules keep policy order after a stable sort by rule priority (lower first).
type CompiledPolicy struct {
	Policy core.Policy
	Rules  []*CompiledRule
}

// NeedsEntitlements reports whether any rule of the policy consults grants.
func (cp *CompiledPolicy) NeedsEntitlements() bool {
	for _, r := range cp.Rules {
		if r.needsEntitlements {
			return true
		}
	}
	return false
}

// Snapshot is an immutable compiled view of the policy and rule set. The
// resolver reads one snapshot per request, so a mid-request update can never
// produce a mixed view.
type Snapshot struct {
	policies []*CompiledPolicy
}

// BuildSnapshot compiles the enabled, non-deleted policies against the rule
// set. Policies whose rules fail to compile are kept with the failure
// attached, so their failure mode can resolve them at evaluation time
// instead of silently dropping enforcement.
func BuildSnapshot(policies []core.Policy, rules []core.Rule) *Snapshot {
	ruleIndex := make(map[string]core.Rule, len(rules))
	for _, r := range rules {
		if r.Deleted {
			continue
		}
		ruleIndex[r.ID] = r
	}

	snap := &Snapshot{}
	for _, p := range policies {
		if !p.Enabled || p.Deleted {
			continue
		}
		cp := &CompiledPolicy{Policy: p}
		for _, ruleID := range p.RuleIDs {
			rule, ok := ruleIndex[ruleID]
			if !ok || !rule.Enabled {
				// represent the dangling or disabled reference as a rule
				// that always errors, so the policy's failure mode decides
				cp.Rules = append(cp.Rules, brokenRule(ruleID, "rule does not resolve or is disabled"))
				continue
			}
			compiled, err := Compile(rule, ruleIndex)
			if err != nil {
				log.Warn().
					Str("policy_id", p.ID).
					Str("rule_id", ruleID).
					Err(err).
					Msg("rule failed to compile, policy failure mode will apply")
				cp.Rules = append(cp.Rules, brokenRule(ruleID, err.Error()))
				continue
			}
			compiled.Name = rule.Name
			cp.Rules = append(cp.Rules, compiled)
		}
		sort.SliceStable(cp.Rules, func(i, j int) bool {
			return cp.Rules[i].Priority < cp.Rules[j].Priority
		})
		snap.policies = append(snap.policies, cp)
	}
	return snap
}

// brokenRule is a compiled rule that always returns a structural error.
func brokenRule(ruleID, detail string) *CompiledRule {
	return &CompiledRule{ID: ruleID, broken: detail}
}

// PoliciesFor returns the policies matching the given scope reference.
func (s *Snapshot) PoliciesFor(ref core.ScopeRef) []*CompiledPolicy {
	var out []*CompiledPolicy
	for _, cp := range s.policies {
		if cp.Policy.Matches(ref) {
			out = append(out, cp)
		}
	}
	return out
}

// Policies returns all compiled policies in the snapshot.
func (s *Snapshot) Policies() []*CompiledPolicy {
	return s.policies
}

// Manager hands out the current snapshot and swaps in new ones atomically.
type Manager struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

func NewManager(policies []core.Policy, rules []core.Rule) *Manager {
	m := &Manager{}
	m.current.Store(BuildSnapshot(policies, rules))
	return m
}

// Snapshot returns the current compiled view. Callers must not mutate it.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Update recompiles and swaps the snapshot. Concurrent updates serialize;
// readers are never blocked.
func (m *Manager) Update(policies []core.Policy, rules []core.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := BuildSnapshot(policies, rules)
	m.current.Store(snap)
	log.Debug().Int("policies", len(snap.policies)).Msg("policy snapshot updated")
}
