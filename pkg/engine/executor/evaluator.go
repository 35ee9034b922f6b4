package executor

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/muninndb/muninn/pkg/engine/internal/types"
	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/record"
)

// expressionEvaluator evaluates physical plan expressions against batches.
// Expressions are evaluated once per row; the result of evaluating an
// expression against a batch is one value per input row.
//
// Comparison semantics follow [record.Compare]: integers and floats compare
// against each other numerically. Ordering comparisons with a NULL operand
// are false rather than an error, so sparse data does not abort a query.
type expressionEvaluator struct {
	invoker *invoker
	regexps *regexpCache
}

func newExpressionEvaluator(inv *invoker) expressionEvaluator {
	return expressionEvaluator{
		invoker: inv,
		regexps: newRegexpCache(),
	}
}

func (e expressionEvaluator) eval(ctx context.Context, expr physical.Expression, input *record.Batch, obs *observations) ([]record.Value, error) {
	switch expr := expr.(type) {

	case *physical.LiteralExpr:
		vals := make([]record.Value, input.NumRows())
		for i := range vals {
			vals[i] = expr.Value
		}
		return vals, nil

	case *physical.ColumnExpr:
		idx, ok := input.Schema.ColumnIndex(expr.Ref.Column)
		if !ok {
			return nil, fmt.Errorf("unknown column %s in input batch", expr.Ref)
		}
		vals := make([]record.Value, input.NumRows())
		for i, row := range input.Rows {
			vals[i] = row[idx]
		}
		return vals, nil

	case *physical.UnaryExpr:
		lhs, err := e.eval(ctx, expr.Left, input, obs)
		if err != nil {
			return nil, err
		}
		return e.evalUnary(expr.Op, lhs)

	case *physical.BinaryExpr:
		lhs, err := e.eval(ctx, expr.Left, input, obs)
		if err != nil {
			return nil, err
		}
		rhs, err := e.eval(ctx, expr.Right, input, obs)
		if err != nil {
			return nil, err
		}
		return e.evalBinary(expr.Op, lhs, rhs)

	case *physical.FuncCallExpr:
		args := make([][]record.Value, len(expr.Args))
		for i, arg := range expr.Args {
			vals, err := e.eval(ctx, arg, input, obs)
			if err != nil {
				return nil, err
			}
			args[i] = vals
		}

		// Transpose the argument columns into one argument list per row.
		rows := make([][]record.Value, input.NumRows())
		for i := range rows {
			row := make([]record.Value, len(args))
			for j := range args {
				row[j] = args[j][i]
			}
			rows[i] = row
		}
		return e.invoker.invokeRows(ctx, expr, rows, obs)
	}

	return nil, fmt.Errorf("unknown expression: %v", expr)
}

func (e expressionEvaluator) evalUnary(op types.UnaryOp, lhs []record.Value) ([]record.Value, error) {
	switch op {
	case types.UnaryOpNot:
		vals := make([]record.Value, len(lhs))
		for i := range lhs {
			b, err := truthiness(lhs[i])
			if err != nil {
				return nil, fmt.Errorf("operand of %s: %w", op, err)
			}
			vals[i] = record.Bool(!b)
		}
		return vals, nil
	default:
		return nil, fmt.Errorf("unknown unary operation %s", op)
	}
}

func (e expressionEvaluator) evalBinary(op types.BinaryOp, lhs, rhs []record.Value) ([]record.Value, error) {
	vals := make([]record.Value, len(lhs))
	for i := range lhs {
		val, err := e.evalBinaryValue(op, lhs[i], rhs[i])
		if err != nil {
			return nil, err
		}
		vals[i] = val
	}
	return vals, nil
}

func (e expressionEvaluator) evalBinaryValue(op types.BinaryOp, lhs, rhs record.Value) (record.Value, error) {
	switch op {
	case types.BinaryOpAnd, types.BinaryOpOr:
		l, err := truthiness(lhs)
		if err != nil {
			return record.Value{}, fmt.Errorf("left operand of %s: %w", op, err)
		}
		r, err := truthiness(rhs)
		if err != nil {
			return record.Value{}, fmt.Errorf("right operand of %s: %w", op, err)
		}
		if op == types.BinaryOpAnd {
			return record.Bool(l && r), nil
		}
		return record.Bool(l || r), nil

	case types.BinaryOpEq:
		return record.Bool(equalValues(lhs, rhs)), nil
	case types.BinaryOpNeq:
		return record.Bool(!equalValues(lhs, rhs)), nil

	case types.BinaryOpLt, types.BinaryOpLte, types.BinaryOpGt, types.BinaryOpGte:
		// A NULL operand never satisfies an ordering comparison.
		if lhs.IsNull() || rhs.IsNull() {
			return record.Bool(false), nil
		}
		cmp, err := record.Compare(lhs, rhs)
		if err != nil {
			return record.Value{}, fmt.Errorf("operands of %s: %w", op, err)
		}
		switch op {
		case types.BinaryOpLt:
			return record.Bool(cmp < 0), nil
		case types.BinaryOpLte:
			return record.Bool(cmp <= 0), nil
		case types.BinaryOpGt:
			return record.Bool(cmp > 0), nil
		default:
			return record.Bool(cmp >= 0), nil
		}

	case types.BinaryOpAdd, types.BinaryOpSub, types.BinaryOpMul, types.BinaryOpDiv:
		return arithmetic(op, lhs, rhs)

	case types.BinaryOpMatchRe, types.BinaryOpNotMatchRe:
		if lhs.IsNull() {
			return record.Bool(false), nil
		}
		if lhs.Type() != record.ValueTypeStr {
			return record.Value{}, fmt.Errorf("left operand of %s must be a string, got %s", op, lhs.Type())
		}
		if rhs.Type() != record.ValueTypeStr {
			return record.Value{}, fmt.Errorf("right operand of %s must be a string pattern, got %s", op, rhs.Type())
		}
		re, err := e.regexps.get(rhs.Str())
		if err != nil {
			return record.Value{}, fmt.Errorf("pattern of %s: %w", op, err)
		}
		matched := re.MatchString(lhs.Str())
		if op == types.BinaryOpNotMatchRe {
			matched = !matched
		}
		return record.Bool(matched), nil

	default:
		return record.Value{}, fmt.Errorf("unknown binary operation %s", op)
	}
}

// equalValues compares two values for equality, widening integers and floats
// so 1 equals 1.0.
func equalValues(lhs, rhs record.Value) bool {
	if cmp, err := record.Compare(lhs, rhs); err == nil {
		return cmp == 0
	}
	return lhs.Equal(rhs)
}

// arithmetic applies a numeric operation to two values. Two integers produce
// an integer, any float operand widens the result to a float. ADD also
// concatenates two strings.
func arithmetic(op types.BinaryOp, lhs, rhs record.Value) (record.Value, error) {
	if op == types.BinaryOpAdd && lhs.Type() == record.ValueTypeStr && rhs.Type() == record.ValueTypeStr {
		return record.Str(lhs.Str() + rhs.Str()), nil
	}

	lnum, rnum := lhs.Type(), rhs.Type()
	if lnum != record.ValueTypeInt && lnum != record.ValueTypeFloat {
		return record.Value{}, fmt.Errorf("left operand of %s must be numeric, got %s", op, lnum)
	}
	if rnum != record.ValueTypeInt && rnum != record.ValueTypeFloat {
		return record.Value{}, fmt.Errorf("right operand of %s must be numeric, got %s", op, rnum)
	}

	if lnum == record.ValueTypeInt && rnum == record.ValueTypeInt {
		l, r := lhs.Int(), rhs.Int()
		switch op {
		case types.BinaryOpAdd:
			return record.Int(l + r), nil
		case types.BinaryOpSub:
			return record.Int(l - r), nil
		case types.BinaryOpMul:
			return record.Int(l * r), nil
		default:
			if r == 0 {
				return record.Value{}, fmt.Errorf("integer division by zero")
			}
			return record.Int(l / r), nil
		}
	}

	l, r := widenToFloat(lhs), widenToFloat(rhs)
	switch op {
	case types.BinaryOpAdd:
		return record.Float(l + r), nil
	case types.BinaryOpSub:
		return record.Float(l - r), nil
	case types.BinaryOpMul:
		return record.Float(l * r), nil
	default:
		return record.Float(l / r), nil
	}
}

func widenToFloat(v record.Value) float64 {
	if v.Type() == record.ValueTypeInt {
		return float64(v.Int())
	}
	return v.Float()
}

// truthiness reduces a value to a boolean for predicate evaluation. NULL is
// false; any non-boolean value is an error.
func truthiness(v record.Value) (bool, error) {
	switch v.Type() {
	case record.ValueTypeBool:
		return v.Bool(), nil
	case record.ValueTypeNull:
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %s", v.Type())
	}
}

// regexpCache memoizes compiled regular expressions across batches. It is
// safe for concurrent use.
type regexpCache struct {
	mtx      sync.Mutex
	compiled map[string]*regexp.Regexp
}

func newRegexpCache() *regexpCache {
	return &regexpCache{compiled: make(map[string]*regexp.Regexp)}
}

func (c *regexpCache) get(pattern string) (*regexp.Regexp, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.compiled[pattern] = re
	return re, nil
}
