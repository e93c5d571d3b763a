package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/custodia-project/custodia/internal/core"
)

// lookupAttribute resolves a possibly dotted key ("actor.tier") against the
// context map, descending into nested maps.
func lookupAttribute(attrs map[string]any, key string) (any, bool) {
	if v, ok := attrs[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	parts := strings.Split(key, ".")
	var cur any = attrs
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// toFloat normalizes the numeric types YAML and JSON decoding produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// looseEqual is reflect.DeepEqual with numeric normalization, so a YAML 18
// (int) equals a JSON 18 (float64).
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// containsValue checks string-contains-substring and list-contains-element.
func containsValue(container, item any) bool {
	if str, ok := container.(string); ok {
		if subStr, ok := item.(string); ok {
			return strings.Contains(str, subStr)
		}
	}

	v := reflect.ValueOf(container)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := 0; i < v.Len(); i++ {
			if looseEqual(v.Index(i).Interface(), item) {
				return true
			}
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// evalLeaf applies a leaf node's operator to the context value. A missing
// attribute is a clean no-match (except for exists); a type mismatch is a
// structural error, never a silent false.
func (n *node) evalLeaf(attrs map[string]any) (bool, string, error) {
	val, exists := lookupAttribute(attrs, n.key)

	if n.op == core.OpExists {
		if !exists {
			return false, fmt.Sprintf("attribute '%s' does not exist", n.key), nil
		}
		return true, "", nil
	}

	if !exists {
		return false, fmt.Sprintf("attribute '%s' missing", n.key), nil
	}

	switch n.op {
	case core.OpEquals:
		if !looseEqual(val, n.value) {
			return false, fmt.Sprintf("expected '%v' to equal '%v'", val, n.value), nil
		}
		return true, "", nil

	case core.OpNotEquals:
		if looseEqual(val, n.value) {
			return false, fmt.Sprintf("expected '%v' to not equal '%v'", val, n.value), nil
		}
		return true, "", nil

	case core.OpIn:
		if !containsValue(n.value, val) {
			return false, fmt.Sprintf("value '%v' not in list '%v'", val, n.value), nil
		}
		return true, "", nil

	case core.OpNotIn:
		if containsValue(n.value, val) {
			return false, fmt.Sprintf("value '%v' found in list '%v'", val, n.value), nil
		}
		return true, "", nil

	case core.OpContains:
		if !containsValue(val, n.value) {
			return false, fmt.Sprintf("value '%v' does not contain '%v'", val, n.value), nil
		}
		return true, "", nil

	case core.OpGT, core.OpGTE, core.OpLT, core.OpLTE:
		lhs, lok := toFloat(val)
		if !lok {
			return false, "", fmt.Errorf("operator '%s' on key '%s': context value '%v' is not numeric", n.op, n.key, val)
		}
		rhs, rok := toFloat(n.value)
		if !rok {
			return false, "", fmt.Errorf("operator '%s' on key '%s': operand '%v' is not numeric", n.op, n.key, n.value)
		}
		var matched bool
		switch n.op {
		case core.OpGT:
			matched = lhs > rhs
		case core.OpGTE:
			matched = lhs >= rhs
		case core.OpLT:
			matched = lhs < rhs
		case core.OpLTE:
			matched = lhs <= rhs
		}
		if !matched {
			return false, fmt.Sprintf("'%v' %s '%v' is false", val, n.op, n.value), nil
		}
		return true, "", nil

	case core.OpBetween:
		// bounds were validated and extracted at compile time
		v, ok := toFloat(val)
		if !ok {
			return false, "", fmt.Errorf("operator 'between' on key '%s': context value '%v' is not numeric", n.key, val)
		}
		if v < n.lo || v > n.hi {
			return false, fmt.Sprintf("'%v' not in [%v, %v]", val, n.lo, n.hi), nil
		}
		return true, "", nil

	case core.OpRegex:
		s, ok := val.(string)
		if !ok {
			return false, "", fmt.Errorf("operator 'regex' on key '%s': context value '%v' is not a string", n.key, val)
		}
		if !n.re.MatchString(s) {
			return false, fmt.Sprintf("'%s' does not match /%s/", s, n.re.String()), nil
		}
		return true, "", nil

	case core.OpStarts, core.OpEnds:
		s, ok := val.(string)
		if !ok {
			return false, "", fmt.Errorf("operator '%s' on key '%s': context value '%v' is not a string", n.op, n.key, val)
		}
		operand, ok := n.value.(string)
		if !ok {
			return false, "", fmt.Errorf("operator '%s' on key '%s': operand '%v' is not a string", n.op, n.key, n.value)
		}
		var matched bool
		if n.op == core.OpStarts {
			matched = strings.HasPrefix(s, operand)
		} else {
			matched = strings.HasSuffix(s, operand)
		}
		if !matched {
			return false, fmt.Sprintf("'%s' does not satisfy %s '%s'", s, n.op, operand), nil
		}
		return true, "", nil
	}

	// unreachable for compiled rules; compile rejects unknown operators
	return false, "", fmt.Errorf("unknown operator '%s'", n.op)
}
