// Package engine implements the rule interpreter and the four algorithms
// layered on it: calculated values, visibility, validation, and extraction.
// Evaluation is fail-soft throughout: unknown operators, type mismatches,
// missing variables, and division by zero all resolve to nil rather than an
// error, so one malformed rule can never take down a whole form.
package engine

import (
	"math"
	"reflect"

	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// Evaluator interprets the JSON-encoded rule language over a flat variable
// context. An expression object with exactly one key is an operator
// application; any other JSON value evaluates to itself.
type Evaluator struct{}

// NewEvaluator creates a rule evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate runs an expression against the given variable context and returns
// a native value (nil, bool, int64, float64, string, []any, map[string]any).
// It never returns an error.
func (e *Evaluator) Evaluate(expr *jsontree.Node, data map[string]any) any {
	return e.evaluateNode(expr, data)
}

func (e *Evaluator) evaluateNode(node *jsontree.Node, data map[string]any) any {
	if node.Kind() == jsontree.KindObject && node.Len() == 1 {
		op := node.Keys()[0]
		return e.evaluateOperation(op, node.Field(op), data)
	}
	return node.ToNative()
}

func (e *Evaluator) evaluateOperation(op string, args *jsontree.Node, data map[string]any) any {
	switch op {
	case "var":
		return e.evaluateVar(args, data)
	case "==":
		return e.evaluateEquals(args, data)
	case "!=":
		return !e.evaluateEquals(args, data)
	case ">":
		return e.compare(args, data, func(l, r float64) bool { return l > r })
	case ">=":
		return e.compare(args, data, func(l, r float64) bool { return l >= r })
	case "<":
		return e.compare(args, data, func(l, r float64) bool { return l < r })
	case "<=":
		return e.compare(args, data, func(l, r float64) bool { return l <= r })
	case "and":
		return e.evaluateAnd(args, data)
	case "or":
		return e.evaluateOr(args, data)
	case "!":
		return !IsTruthy(e.evaluateNode(args, data))
	case "if":
		return e.evaluateIf(args, data)
	case "+":
		return e.evaluateAdd(args, data)
	case "-":
		return e.evaluateSubtract(args, data)
	case "*":
		return e.evaluateMultiply(args, data)
	case "/":
		return e.evaluateDivide(args, data)
	case "%":
		return e.evaluateModulo(args, data)
	default:
		return nil
	}
}

func (e *Evaluator) evaluateVar(args *jsontree.Node, data map[string]any) any {
	name, ok := args.Content()
	if !ok {
		return nil
	}
	return data[name]
}

func (e *Evaluator) evaluateEquals(args *jsontree.Node, data map[string]any) bool {
	list := args.Values()
	if len(list) < 2 {
		return false
	}
	left := e.evaluateNode(list[0], data)
	right := e.evaluateNode(list[1], data)
	return structurallyEqual(left, right)
}

// structurallyEqual is type-sensitive: int64(5) and float64(5) are distinct,
// matching the source semantics where an integer answer never equals a
// calculated floating result.
func structurallyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func (e *Evaluator) compare(args *jsontree.Node, data map[string]any, cmp func(l, r float64) bool) bool {
	list := args.Values()
	if len(list) < 2 {
		return false
	}
	left, ok := asNumber(e.evaluateNode(list[0], data))
	if !ok {
		return false
	}
	right, ok := asNumber(e.evaluateNode(list[1], data))
	if !ok {
		return false
	}
	return cmp(left, right)
}

func (e *Evaluator) evaluateAnd(args *jsontree.Node, data map[string]any) bool {
	list := args.Values()
	if len(list) == 0 {
		return false
	}
	for _, arg := range list {
		if !IsTruthy(e.evaluateNode(arg, data)) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOr(args *jsontree.Node, data map[string]any) bool {
	for _, arg := range args.Values() {
		if IsTruthy(e.evaluateNode(arg, data)) {
			return true
		}
	}
	return false
}

// evaluateIf walks (condition, result) pairs; an odd trailing argument is the
// default branch.
func (e *Evaluator) evaluateIf(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if list == nil {
		return nil
	}
	for i := 0; i < len(list); i += 2 {
		if i+1 >= len(list) {
			return e.evaluateNode(list[i], data)
		}
		if IsTruthy(e.evaluateNode(list[i], data)) {
			return e.evaluateNode(list[i+1], data)
		}
	}
	return nil
}

func (e *Evaluator) evaluateAdd(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if list == nil {
		return nil
	}
	sum := 0.0
	for _, arg := range list {
		v, _ := asNumber(e.evaluateNode(arg, data))
		sum += v
	}
	return sum
}

func (e *Evaluator) evaluateSubtract(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if len(list) == 0 {
		return nil
	}
	first, ok := asNumber(e.evaluateNode(list[0], data))
	if !ok {
		return nil
	}
	if len(list) == 1 {
		return -first
	}
	acc := first
	for _, arg := range list[1:] {
		v, _ := asNumber(e.evaluateNode(arg, data))
		acc -= v
	}
	return acc
}

func (e *Evaluator) evaluateMultiply(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if list == nil {
		return nil
	}
	product := 1.0
	for _, arg := range list {
		v, ok := asNumber(e.evaluateNode(arg, data))
		if !ok {
			v = 1.0
		}
		product *= v
	}
	return product
}

func (e *Evaluator) evaluateDivide(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if len(list) < 2 {
		return nil
	}
	numerator, ok := asNumber(e.evaluateNode(list[0], data))
	if !ok {
		return nil
	}
	denominator, ok := asNumber(e.evaluateNode(list[1], data))
	if !ok || denominator == 0 {
		return nil
	}
	return numerator / denominator
}

func (e *Evaluator) evaluateModulo(args *jsontree.Node, data map[string]any) any {
	list := args.Values()
	if len(list) < 2 {
		return nil
	}
	left, ok := asNumber(e.evaluateNode(list[0], data))
	if !ok {
		return nil
	}
	right, ok := asNumber(e.evaluateNode(list[1], data))
	if !ok || right == 0 {
		return nil
	}
	return math.Mod(left, right)
}

// asNumber widens numeric values to float64; all rule arithmetic happens in
// floating point regardless of operand integer-ness.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
