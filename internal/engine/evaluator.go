package engine

import (
	"fmt"
	"regexp"
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

type nodeKind int

const (
	nodeLeaf nodeKind = iota
	nodeAll
	nodeAny
	nodeNot
	nodeEntitlement
)

// node is one entry of a compiled rule's arena. Children are integer
// indices into the arena, never pointers: the tree is proven acyclic at
// compile time, and evaluation cannot recurse unboundedly on a graph that
// slipped validation.
type node struct {
	kind nodeKind

	// leaf
	key   string
	op    core.Operator
	value any
	re    *regexp.Regexp // compiled form for OpRegex
	lo    float64        // bounds for OpBetween
	hi    float64

	// entitlement leaf
	entitlement string

	children []int
}

// CompiledRule is the arena form of a rule (with all rule_ref nodes
// inlined), ready for repeated evaluation without further store access.
type CompiledRule struct {
	ID       string
	Name     string
	Priority int

	nodes []node
	root  int

	// needsEntitlements lets the resolver fetch the entitlement snapshot
	// only when some node will consult it.
	needsEntitlements bool

	// broken is set instead of nodes when the rule failed to compile; every
	// evaluation then returns the structural error so the policy's failure
	// mode decides the vote.
	broken string
}

// NeedsEntitlements reports whether evaluation will consult the actor's
// grant snapshot.
func (r *CompiledRule) NeedsEntitlements() bool {
	return r.needsEntitlements
}

type compiler struct {
	rules    map[string]core.Rule
	nodes    []node
	visiting map[string]bool // rule IDs on the current expansion path
	needsEnt bool
}

// Compile validates a rule's condition tree and flattens it into an arena.
// rules supplies targets for rule_ref nodes; cycles and unknown references
// are structural errors.
func Compile(rule core.Rule, rules map[string]core.Rule) (*CompiledRule, error) {
	c := &compiler{
		rules:    rules,
		visiting: map[string]bool{rule.ID: true},
	}
	root, err := c.compile(rule.Condition)
	if err != nil {
		return nil, &core.StructuralRuleError{RuleID: rule.ID, Detail: err.Error()}
	}
	return &CompiledRule{
		ID:                rule.ID,
		Name:              rule.Name,
		Priority:          rule.Priority,
		nodes:             c.nodes,
		root:              root,
		needsEntitlements: c.needsEnt,
	}, nil
}

func (c *compiler) add(n node) int {
	c.nodes = append(c.nodes, n)
	return len(c.nodes) - 1
}

func (c *compiler) compile(cond core.Condition) (int, error) {
	if err := cond.Validate(); err != nil {
		return 0, err
	}

	switch {
	case len(cond.All) > 0:
		return c.compileBranch(nodeAll, cond.All)
	case len(cond.Any) > 0:
		return c.compileBranch(nodeAny, cond.Any)
	case cond.Not != nil:
		child, err := c.compile(*cond.Not)
		if err != nil {
			return 0, err
		}
		return c.add(node{kind: nodeNot, children: []int{child}}), nil

	case cond.Entitlement != "":
		c.needsEnt = true
		return c.add(node{kind: nodeEntitlement, entitlement: cond.Entitlement}), nil

	case cond.RuleRef != "":
		target, ok := c.rules[cond.RuleRef]
		if !ok || target.Deleted {
			return 0, fmt.Errorf("rule_ref '%s' does not resolve", cond.RuleRef)
		}
		if c.visiting[target.ID] {
			return 0, fmt.Errorf("rule_ref '%s' forms a cycle", cond.RuleRef)
		}
		c.visiting[target.ID] = true
		idx, err := c.compile(target.Condition)
		delete(c.visiting, target.ID)
		return idx, err

	default:
		return c.compileLeaf(cond)
	}
}

func (c *compiler) compileBranch(kind nodeKind, children []core.Condition) (int, error) {
	idxs := make([]int, 0, len(children))
	for _, sub := range children {
		idx, err := c.compile(sub)
		if err != nil {
			return 0, err
		}
		idxs = append(idxs, idx)
	}
	return c.add(node{kind: kind, children: idxs}), nil
}

// compileLeaf validates the operand side of a leaf up front, so evaluation
// only ever fails structurally on the context side.
func (c *compiler) compileLeaf(cond core.Condition) (int, error) {
	n := node{kind: nodeLeaf, key: cond.Key, op: cond.Operator, value: cond.Value}

	switch cond.Operator {
	case core.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return 0, fmt.Errorf("regex operand for key '%s' must be a string", cond.Key)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return 0, fmt.Errorf("invalid regex for key '%s': %v", cond.Key, err)
		}
		n.re = re

	case core.OpBetween:
		bounds, ok := asList(cond.Value)
		if !ok || len(bounds) != 2 {
			return 0, fmt.Errorf("between operand for key '%s' must be a two-element list", cond.Key)
		}
		lo, lok := toFloat(bounds[0])
		hi, hok := toFloat(bounds[1])
		if !lok || !hok {
			return 0, fmt.Errorf("between bounds for key '%s' must be numeric", cond.Key)
		}
		if lo > hi {
			return 0, fmt.Errorf("between bounds for key '%s' are inverted", cond.Key)
		}
		n.lo, n.hi = lo, hi

	case core.OpIn, core.OpNotIn:
		if _, ok := asList(cond.Value); !ok {
			return 0, fmt.Errorf("operator '%s' for key '%s' requires a list operand", cond.Operator, cond.Key)
		}

	case core.OpGT, core.OpGTE, core.OpLT, core.OpLTE:
		if _, ok := toFloat(cond.Value); !ok {
			return 0, fmt.Errorf("operator '%s' for key '%s' requires a numeric operand", cond.Operator, cond.Key)
		}

	case core.OpStarts, core.OpEnds:
		if _, ok := cond.Value.(string); !ok {
			return 0, fmt.Errorf("operator '%s' for key '%s' requires a string operand", cond.Operator, cond.Key)
		}
	}

	return c.add(n), nil
}

// EvalInput carries the per-request state a compiled rule evaluates against.
type EvalInput struct {
	Attributes map[string]any
	Resource   string

	// Entitlements is the actor's active-grant snapshot, taken once per
	// evaluation.
	Entitlements []core.Entitlement
	At           time.Time
}

// Evaluate runs the compiled rule against the input. It is a pure function
// of its arguments: identical input always yields the identical result and
// trace. The returned error is structural (context-side type mismatch) and
// must be treated as an evaluation error by the caller, not a denial.
func (r *CompiledRule) Evaluate(in EvalInput) (bool, core.ConditionResult, error) {
	if r.broken != "" {
		return false, core.ConditionResult{}, &core.StructuralRuleError{RuleID: r.ID, Detail: r.broken}
	}
	res, err := r.eval(r.root, in)
	if err != nil {
		return false, core.ConditionResult{}, &core.StructuralRuleError{RuleID: r.ID, Detail: err.Error()}
	}
	return res.Matched, res, nil
}

func (r *CompiledRule) eval(idx int, in EvalInput) (core.ConditionResult, error) {
	n := &r.nodes[idx]

	switch n.kind {
	case nodeAll:
		res := core.ConditionResult{Matched: true, Label: "AND"}
		for _, child := range n.children {
			cr, err := r.eval(child, in)
			if err != nil {
				return core.ConditionResult{}, err
			}
			res.Children = append(res.Children, cr)
			if !cr.Matched {
				// short-circuit on first false
				res.Matched = false
				break
			}
		}
		return res, nil

	case nodeAny:
		res := core.ConditionResult{Matched: false, Label: "OR"}
		for _, child := range n.children {
			cr, err := r.eval(child, in)
			if err != nil {
				return core.ConditionResult{}, err
			}
			res.Children = append(res.Children, cr)
			if cr.Matched {
				// short-circuit on first true
				res.Matched = true
				break
			}
		}
		return res, nil

	case nodeNot:
		cr, err := r.eval(n.children[0], in)
		if err != nil {
			return core.ConditionResult{}, err
		}
		return core.ConditionResult{
			Matched:  !cr.Matched,
			Label:    "NOT",
			Children: []core.ConditionResult{cr},
		}, nil

	case nodeEntitlement:
		expr := fmt.Sprintf("entitlement '%s' held", n.entitlement)
		for _, e := range in.Entitlements {
			if e.Name == n.entitlement && e.AppliesTo(in.Resource) && e.IsActive(in.At) {
				return core.ConditionResult{Matched: true, Expression: expr}, nil
			}
		}
		return core.ConditionResult{
			Matched:    false,
			Expression: expr,
			Reason:     fmt.Sprintf("no active grant '%s' for this resource", n.entitlement),
		}, nil

	default:
		matched, reason, err := n.evalLeaf(in.Attributes)
		if err != nil {
			return core.ConditionResult{}, err
		}
		return core.ConditionResult{
			Matched:    matched,
			Expression: fmt.Sprintf("%s %s %v", n.key, n.op, n.value),
			Reason:     reason,
		}, nil
	}
}

// Flatten renders a condition result tree as an indented list for display.
func Flatten(out *[]core.ConditionResult, cr core.ConditionResult, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	if cr.Expression != "" {
		*out = append(*out, core.ConditionResult{
			Expression: indent + cr.Expression,
			Matched:    cr.Matched,
			Reason:     cr.Reason,
		})
		return
	}

	if cr.Label != "" {
		*out = append(*out, core.ConditionResult{
			Expression: indent + "[" + cr.Label + "]",
			Matched:    cr.Matched,
		})
	}

	for _, child := range cr.Children {
		Flatten(out, child, depth+1)
	}
}
