package executor

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muninndb/muninn/pkg/engine/internal/types"
	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

// singleRow returns a one-row batch without columns, enough to evaluate
// expressions built from literals once.
func singleRow() *record.Batch {
	return &record.Batch{Schema: record.NewSchema(), Rows: []record.Row{{}}}
}

func TestEvaluator_literal(t *testing.T) {
	e := testEvaluator(nil, nil)
	batch := docsBatch(docsRow(1, "dog"), docsRow(2, "cat"), docsRow(3, "owl"))

	vals, err := e.eval(t.Context(), physical.NewLiteral(record.Str("x")), batch, newObservations())
	require.NoError(t, err)
	require.Equal(t, []record.Value{record.Str("x"), record.Str("x"), record.Str("x")}, vals)
}

func TestEvaluator_column(t *testing.T) {
	e := testEvaluator(nil, nil)
	batch := docsBatch(docsRow(1, "dog"), docsRow(2, "cat"))

	vals, err := e.eval(t.Context(), colExpr("text"), batch, newObservations())
	require.NoError(t, err)
	require.Equal(t, []record.Value{record.Str("dog"), record.Str("cat")}, vals)

	_, err = e.eval(t.Context(), colExpr("missing"), batch, newObservations())
	require.EqualError(t, err, "unknown column table.missing in input batch")
}

func TestEvaluator_unary(t *testing.T) {
	e := testEvaluator(nil, nil)

	not := func(val record.Value) *physical.UnaryExpr {
		return &physical.UnaryExpr{Op: types.UnaryOpNot, Left: physical.NewLiteral(val)}
	}

	vals, err := e.eval(t.Context(), not(record.Bool(true)), singleRow(), newObservations())
	require.NoError(t, err)
	require.Equal(t, []record.Value{record.Bool(false)}, vals)

	// NULL is false in predicate position, so NOT NULL is true.
	vals, err = e.eval(t.Context(), not(record.Null()), singleRow(), newObservations())
	require.NoError(t, err)
	require.Equal(t, []record.Value{record.Bool(true)}, vals)

	_, err = e.eval(t.Context(), not(record.Int(1)), singleRow(), newObservations())
	require.ErrorContains(t, err, "operand of NOT: expected a boolean")
}

func TestEvaluator_binary(t *testing.T) {
	for _, tt := range []struct {
		name    string
		op      types.BinaryOp
		lhs     record.Value
		rhs     record.Value
		want    record.Value
		wantErr string
	}{
		{name: "eq ints", op: types.BinaryOpEq, lhs: record.Int(1), rhs: record.Int(1), want: record.Bool(true)},
		{name: "eq widens numerics", op: types.BinaryOpEq, lhs: record.Int(1), rhs: record.Float(1.0), want: record.Bool(true)},
		{name: "eq nulls", op: types.BinaryOpEq, lhs: record.Null(), rhs: record.Null(), want: record.Bool(true)},
		{name: "eq mixed types", op: types.BinaryOpEq, lhs: record.Int(1), rhs: record.Str("1"), want: record.Bool(false)},
		{name: "neq", op: types.BinaryOpNeq, lhs: record.Int(1), rhs: record.Int(2), want: record.Bool(true)},

		{name: "lt", op: types.BinaryOpLt, lhs: record.Int(1), rhs: record.Int(2), want: record.Bool(true)},
		{name: "lt null is false", op: types.BinaryOpLt, lhs: record.Null(), rhs: record.Int(2), want: record.Bool(false)},
		{name: "lte", op: types.BinaryOpLte, lhs: record.Str("a"), rhs: record.Str("a"), want: record.Bool(true)},
		{name: "gt strings", op: types.BinaryOpGt, lhs: record.Str("b"), rhs: record.Str("a"), want: record.Bool(true)},
		{name: "gte", op: types.BinaryOpGte, lhs: record.Float(0.5), rhs: record.Int(1), want: record.Bool(false)},
		{name: "incomparable ordering", op: types.BinaryOpLt, lhs: record.Str("a"), rhs: record.Int(1), wantErr: "operands of LT"},

		{name: "and", op: types.BinaryOpAnd, lhs: record.Bool(true), rhs: record.Bool(false), want: record.Bool(false)},
		{name: "and null is false", op: types.BinaryOpAnd, lhs: record.Null(), rhs: record.Bool(true), want: record.Bool(false)},
		{name: "or", op: types.BinaryOpOr, lhs: record.Bool(false), rhs: record.Bool(true), want: record.Bool(true)},
		{name: "and non-boolean", op: types.BinaryOpAnd, lhs: record.Int(1), rhs: record.Bool(true), wantErr: "left operand of AND: expected a boolean"},

		{name: "add ints", op: types.BinaryOpAdd, lhs: record.Int(2), rhs: record.Int(3), want: record.Int(5)},
		{name: "add widens to float", op: types.BinaryOpAdd, lhs: record.Int(2), rhs: record.Float(0.5), want: record.Float(2.5)},
		{name: "add concatenates strings", op: types.BinaryOpAdd, lhs: record.Str("do"), rhs: record.Str("g"), want: record.Str("dog")},
		{name: "sub", op: types.BinaryOpSub, lhs: record.Int(2), rhs: record.Int(3), want: record.Int(-1)},
		{name: "mul", op: types.BinaryOpMul, lhs: record.Int(2), rhs: record.Int(3), want: record.Int(6)},
		{name: "div truncates ints", op: types.BinaryOpDiv, lhs: record.Int(7), rhs: record.Int(2), want: record.Int(3)},
		{name: "div by integer zero", op: types.BinaryOpDiv, lhs: record.Int(7), rhs: record.Int(0), wantErr: "integer division by zero"},
		{name: "div by float zero", op: types.BinaryOpDiv, lhs: record.Float(1), rhs: record.Float(0), want: record.Float(math.Inf(1))},
		{name: "add non-numeric", op: types.BinaryOpAdd, lhs: record.Bool(true), rhs: record.Int(1), wantErr: "left operand of ADD must be numeric"},

		{name: "match", op: types.BinaryOpMatchRe, lhs: record.Str("dog42"), rhs: record.Str(`^dog\d+$`), want: record.Bool(true)},
		{name: "no match", op: types.BinaryOpMatchRe, lhs: record.Str("cat"), rhs: record.Str(`^dog\d+$`), want: record.Bool(false)},
		{name: "not match", op: types.BinaryOpNotMatchRe, lhs: record.Str("cat"), rhs: record.Str(`^dog\d+$`), want: record.Bool(true)},
		{name: "match null is false", op: types.BinaryOpMatchRe, lhs: record.Null(), rhs: record.Str("dog"), want: record.Bool(false)},
		{name: "match non-string", op: types.BinaryOpMatchRe, lhs: record.Int(1), rhs: record.Str("dog"), wantErr: "must be a string"},
		{name: "match non-string pattern", op: types.BinaryOpMatchRe, lhs: record.Str("dog"), rhs: record.Int(1), wantErr: "must be a string pattern"},
		{name: "invalid pattern", op: types.BinaryOpMatchRe, lhs: record.Str("dog"), rhs: record.Str("("), wantErr: "pattern of MATCH_RE"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := testEvaluator(nil, nil)
			expr := &physical.BinaryExpr{
				Op:    tt.op,
				Left:  physical.NewLiteral(tt.lhs),
				Right: physical.NewLiteral(tt.rhs),
			}

			vals, err := e.eval(t.Context(), expr, singleRow(), newObservations())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []record.Value{tt.want}, vals)
		})
	}
}

func TestEvaluator_funcCall(t *testing.T) {
	t.Run("arguments transpose per row", func(t *testing.T) {
		tag := functions.New("tag", "v1", true, func(_ context.Context, args []record.Value) (record.Value, error) {
			return record.Str(fmt.Sprintf("%d-%s", args[0].Int(), args[1].Str())), nil
		})
		e := testEvaluator(testRegistry(t, tag), nil)
		batch := docsBatch(docsRow(1, "dog"), docsRow(2, "cat"))

		vals, err := e.eval(t.Context(), callExpr("tag", false, colExpr("id"), colExpr("text")), batch, newObservations())
		require.NoError(t, err)
		require.Equal(t, []record.Value{record.Str("1-dog"), record.Str("2-cat")}, vals)
	})

	t.Run("call result feeds comparisons", func(t *testing.T) {
		e := testEvaluator(testRegistry(t, echoFunc("classify", nil)), nil)
		batch := docsBatch(docsRow(1, "dog"), docsRow(2, "cat"))

		expr := &physical.BinaryExpr{
			Op:    types.BinaryOpEq,
			Left:  callExpr("classify", false, colExpr("text")),
			Right: physical.NewLiteral(record.Str("dog")),
		}
		vals, err := e.eval(t.Context(), expr, batch, newObservations())
		require.NoError(t, err)
		require.Equal(t, []record.Value{record.Bool(true), record.Bool(false)}, vals)
	})

	t.Run("argument errors abort the call", func(t *testing.T) {
		e := testEvaluator(testRegistry(t, echoFunc("classify", nil)), nil)
		batch := docsBatch(docsRow(1, "dog"))

		_, err := e.eval(t.Context(), callExpr("classify", false, colExpr("missing")), batch, newObservations())
		require.ErrorContains(t, err, "unknown column")
	})
}
