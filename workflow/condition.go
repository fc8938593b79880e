package workflow

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

func (o Operator) valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains:
		return true
	default:
		return false
	}
}

// Evaluate reports whether every condition holds against the view. An empty
// list always holds.
func Evaluate(conditions []Condition, view CaseView) bool {
	for _, c := range conditions {
		if !c.Holds(view) {
			return false
		}
	}
	return true
}

// Holds evaluates a single condition. A field that cannot be resolved never
// equals, compares or contains anything, so not_equals on it is true.
func (c Condition) Holds(view CaseView) bool {
	actual, found := view.Lookup(c.Field)

	switch c.Operator {
	case OpEquals:
		return found && strictEqual(actual, c.Value)
	case OpNotEquals:
		return !found || !strictEqual(actual, c.Value)
	case OpGreaterThan, OpLessThan:
		if !found {
			return false
		}
		a, err := cast.ToFloat64E(actual)
		if err != nil {
			return false
		}
		b, err := cast.ToFloat64E(c.Value)
		if err != nil {
			return false
		}
		if c.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	case OpContains:
		if !found {
			return false
		}
		return strings.Contains(stringify(actual), stringify(c.Value))
	default:
		return false
	}
}

// strictEqual compares without cross-type coercion, except that all Go
// numeric types compare by value.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(n), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
