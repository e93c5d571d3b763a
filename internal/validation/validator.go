package validation

import (
	"fmt"

	"github.com/custodia-project/custodia/internal/core"
)

// ValidateRules checks IDs for uniqueness, validates every condition tree,
// and rejects dangling or cyclic rule references.
func ValidateRules(rules []core.Rule) ([]core.Rule, error) {
	byID := make(map[string]core.Rule, len(rules))
	var validRules []core.Rule

	for i, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule #%d missing id", i)
		}
		if _, exists := byID[rule.ID]; exists {
			return nil, fmt.Errorf("rule id '%s' is not unique", rule.ID)
		}
		byID[rule.ID] = rule

		if err := rule.Condition.Validate(); err != nil {
			return nil, fmt.Errorf("validating condition for rule '%s': %w", rule.ID, err)
		}

		validRules = append(validRules, rule)
	}

	for _, rule := range validRules {
		if err := checkRefs(rule.Condition, rule.ID, byID, map[string]bool{rule.ID: true}); err != nil {
			return nil, err
		}
	}

	return validRules, nil
}

// checkRefs walks a condition tree and follows rule_ref edges depth-first,
// rejecting unknown targets and cycles.
func checkRefs(cond core.Condition, ruleID string, byID map[string]core.Rule, path map[string]bool) error {
	for _, sub := range cond.All {
		if err := checkRefs(sub, ruleID, byID, path); err != nil {
			return err
		}
	}
	for _, sub := range cond.Any {
		if err := checkRefs(sub, ruleID, byID, path); err != nil {
			return err
		}
	}
	if cond.Not != nil {
		if err := checkRefs(*cond.Not, ruleID, byID, path); err != nil {
			return err
		}
	}

	if cond.RuleRef == "" {
		return nil
	}
	target, ok := byID[cond.RuleRef]
	if !ok {
		return fmt.Errorf("rule '%s' references unknown rule '%s'", ruleID, cond.RuleRef)
	}
	if path[cond.RuleRef] {
		return fmt.Errorf("rule '%s' forms a reference cycle through '%s'", ruleID, cond.RuleRef)
	}
	path[cond.RuleRef] = true
	err := checkRefs(target.Condition, cond.RuleRef, byID, path)
	delete(path, cond.RuleRef)
	return err
}

// ValidatePolicies checks policy shape and that every referenced rule exists.
func ValidatePolicies(policies []core.Policy, rules []core.Rule) ([]core.Policy, error) {
	knownRules := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		knownRules[r.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(policies))
	var validPolicies []core.Policy

	for i, policy := range policies {
		if policy.ID == "" {
			return nil, fmt.Errorf("policy #%d missing id", i)
		}
		if _, exists := seen[policy.ID]; exists {
			return nil, fmt.Errorf("policy id '%s' is not unique", policy.ID)
		}
		seen[policy.ID] = struct{}{}

		if err := policy.Validate(); err != nil {
			return nil, err
		}

		for _, ruleID := range policy.RuleIDs {
			if _, known := knownRules[ruleID]; !known {
				return nil, fmt.Errorf("policy '%s' references unknown rule '%s'", policy.ID, ruleID)
			}
		}

		validPolicies = append(validPolicies, policy)
	}

	return validPolicies, nil
}

// ValidateEntitlements checks IDs and statuses of seeded grants.
func ValidateEntitlements(entitlements []core.Entitlement) error {
	seen := make(map[string]struct{}, len(entitlements))
	for i, e := range entitlements {
		if e.ID == "" {
			return fmt.Errorf("entitlement #%d missing id", i)
		}
		if _, exists := seen[e.ID]; exists {
			return fmt.Errorf("entitlement id '%s' is not unique", e.ID)
		}
		seen[e.ID] = struct{}{}

		if e.SubjectID == "" {
			return fmt.Errorf("entitlement '%s' missing subject_id", e.ID)
		}
		switch e.Status {
		case core.EntitlementPending, core.EntitlementActive, core.EntitlementSuspended,
			core.EntitlementRevoked, core.EntitlementExpired:
		case "":
			return fmt.Errorf("entitlement '%s' missing status", e.ID)
		default:
			return fmt.Errorf("entitlement '%s' has unknown status '%s'", e.ID, e.Status)
		}
	}
	return nil
}
