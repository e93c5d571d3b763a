package core

import (
	"fmt"
	"sort"
)

// Operator defines how a context value is compared against a rule operand.
// The set is closed: unknown operators are rejected at validation time,
// never at evaluation time.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	// OpIn means the context value is an element of the operand list.
	// e.g., value "eu-west" in ["us-east", "eu-west"]
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
	// OpContains means the context value contains the operand.
	// for strings: "hello world" contains "world"
	// for lists: ["a", "b", "c"] contains "b"
	OpContains Operator = "contains"
	OpGT       Operator = "gt"
	OpGTE      Operator = "gte"
	OpLT       Operator = "lt"
	OpLTE      Operator = "lte"
	// OpBetween takes a two-element numeric operand [low, high], inclusive.
	OpBetween Operator = "between"
	OpRegex   Operator = "regex"
	OpExists  Operator = "exists"
	OpStarts  Operator = "starts_with"
	OpEnds    Operator = "ends_with"
)

func (op Operator) IsValid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpContains,
		OpGT, OpGTE, OpLT, OpLTE, OpBetween,
		OpRegex, OpExists, OpStarts, OpEnds:
		return true
	default:
		return false
	}
}

// Rule is a named, composable condition. Rules are structured data, not a
// scripting language: the condition tree below is the whole vocabulary.
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Priority orders rules within a policy's rule list; lower evaluates first.
	Priority int  `yaml:"priority" json:"priority"`
	Enabled  bool `yaml:"enabled" json:"enabled"`

	Condition Condition `yaml:"condition" json:"condition"`

	// Version is bumped on every administrative edit. Rules referenced by a
	// recorded decision are only ever soft-deleted.
	Version int  `yaml:"version,omitempty" json:"version"`
	Deleted bool `yaml:"-" json:"deleted,omitempty"`
}

// Condition is one node of a rule's condition tree. Exactly one of the
// branch fields (All/Any/Not) or leaf forms (Key, Entitlement, RuleRef)
// may be set.
type Condition struct {
	// Branch combinators
	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Condition  `yaml:"not,omitempty" json:"not,omitempty"`

	// Attribute leaf: compare the context value at Key against Value.
	Key      string   `yaml:"key,omitempty" json:"key,omitempty"`
	Operator Operator `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`

	// Entitlement leaf: matched iff the actor holds an ACTIVE grant with
	// this name for the evaluated resource scope.
	Entitlement string `yaml:"entitlement,omitempty" json:"entitlement,omitempty"`

	// RuleRef leaf: evaluate another rule by ID in place of this node.
	// Reference cycles are rejected when the rule is validated, so the
	// compiled tree is always finite.
	RuleRef string `yaml:"rule_ref,omitempty" json:"rule_ref,omitempty"`
}

func (c *Condition) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		// conditions must at least be a mapping
		return err
	}

	// isExplicit marks whether the condition is spelled out:
	//   { key: tier, operator: equals, value: "enterprise" }
	// as opposed to the shorthand form:
	//   { tier: "enterprise" }
	isExplicit := false
	for k := range raw {
		switch k {
		case "all", "any", "not", "key", "operator", "value", "entitlement", "rule_ref":
			isExplicit = true
		}
	}

	if isExplicit {
		type plain Condition // prevents recursing back into this method
		var p plain
		if err := unmarshal(&p); err != nil {
			return err
		}
		*c = Condition(p)

		// implicit equals if the operator is omitted on an attribute leaf
		if c.Key != "" && c.Operator == "" {
			c.Operator = OpEquals
		}
		return nil
	}

	// shorthand: every key becomes an attribute leaf, either with an
	// operator mapping ({ age: { gte: 18 } }) or plain equality
	var children []Condition
	for k, v := range raw {
		sub := Condition{Key: k}

		if vMap, ok := v.(map[string]any); ok {
			ops := make([]string, 0, len(vMap))
			for opKey := range vMap {
				if Operator(opKey).IsValid() {
					ops = append(ops, opKey)
				}
			}
			switch {
			case len(ops) == 0:
				// non-operator mapping compares as a whole value
				sub.Operator = OpEquals
				sub.Value = v
			case len(ops) < len(vMap):
				return fmt.Errorf("shorthand condition for '%s' mixes operator and plain keys", k)
			case len(ops) == 1:
				sub.Operator = Operator(ops[0])
				sub.Value = vMap[ops[0]]
			default:
				// { age: { gte: 18, lte: 65 } } bounds conjunctively; every
				// operator becomes its own leaf
				sort.Strings(ops)
				for _, opKey := range ops {
					sub.All = append(sub.All, Condition{Key: k, Operator: Operator(opKey), Value: vMap[opKey]})
				}
				sub.Key = ""
			}
		} else {
			sub.Operator = OpEquals
			sub.Value = v
		}

		children = append(children, sub)
	}

	if len(children) == 1 {
		*c = children[0]
	} else {
		// multiple shorthand keys mean implicit AND
		c.All = children
	}
	return nil
}

// Validate checks the structural well-formedness of a single condition tree.
// Cross-rule concerns (unknown rule_ref targets, reference cycles) are
// checked by the validation package, which can see the whole rule set.
func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}

	hasAll := len(c.All) > 0
	hasAny := len(c.Any) > 0
	hasNot := c.Not != nil
	hasLeaf := c.Key != ""
	hasEntitlement := c.Entitlement != ""
	hasRuleRef := c.RuleRef != ""

	for _, sub := range c.All {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	for _, sub := range c.Any {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	if hasNot {
		if err := c.Not.Validate(); err != nil {
			return err
		}
	}
	if hasLeaf {
		if !c.Operator.IsValid() {
			return fmt.Errorf("invalid operator '%s' for key '%s'", c.Operator, c.Key)
		}
		if c.Operator != OpExists && c.Value == nil {
			return fmt.Errorf("operator '%s' for key '%s' requires an operand", c.Operator, c.Key)
		}
	}

	count := 0
	for _, set := range []bool{hasAll, hasAny, hasNot, hasLeaf, hasEntitlement, hasRuleRef} {
		if set {
			count++
		}
	}
	switch {
	case count > 1:
		return fmt.Errorf("condition has multiple forms set (all, any, not, key, entitlement, rule_ref); only one is allowed")
	case count == 0:
		return fmt.Errorf("condition is empty; must be one of (all, any, not, key, entitlement, rule_ref)")
	}
	return nil
}
