package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muninndb/muninn/pkg/engine/internal/types"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

func TestExpressionTypes(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
	}{
		{
			name: "UnaryExpression",
			expr: &UnaryExpr{
				Op:   types.UnaryOpNot,
				Left: newColumnExpr("hidden", types.ColumnTypeTable),
			},
		},
		{
			name: "BinaryExpression",
			expr: &BinaryExpr{
				Op:    types.BinaryOpLt,
				Left:  newColumnExpr("id", types.ColumnTypeTable),
				Right: NewLiteral(record.Int(100)),
			},
		},
		{
			name: "LiteralExpression",
			expr: NewLiteral(record.Str("dog")),
		},
		{
			name: "ColumnExpression",
			expr: newColumnExpr("text", types.ColumnTypeTable),
		},
		{
			name: "FuncCallExpression",
			expr: &FuncCallExpr{
				Signature: functions.Signature{Name: "classify", Version: "1a2b"},
				Args:      []Expression{newColumnExpr("text", types.ColumnTypeTable)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.expr.Type().String())
		})
	}
}

func TestLiteralExpr(t *testing.T) {
	t.Run("boolean", func(t *testing.T) {
		expr := NewLiteral(record.Bool(true))
		require.Equal(t, ExprTypeLiteral, expr.Type())

		lit, ok := Expression(expr).(LiteralExpression)
		require.True(t, ok)
		require.Equal(t, record.ValueTypeBool, lit.ValueType())
	})

	t.Run("integer", func(t *testing.T) {
		expr := NewLiteral(record.Int(100))
		require.Equal(t, ExprTypeLiteral, expr.Type())

		lit, ok := Expression(expr).(LiteralExpression)
		require.True(t, ok)
		require.Equal(t, record.ValueTypeInt, lit.ValueType())
	})

	t.Run("string", func(t *testing.T) {
		expr := NewLiteral(record.Str("dog"))
		require.Equal(t, ExprTypeLiteral, expr.Type())

		lit, ok := Expression(expr).(LiteralExpression)
		require.True(t, ok)
		require.Equal(t, record.ValueTypeStr, lit.ValueType())
	})

	t.Run("list", func(t *testing.T) {
		expr := NewLiteral(record.List(record.Str("a"), record.Str("b")))
		require.Equal(t, ExprTypeLiteral, expr.Type())

		lit, ok := Expression(expr).(LiteralExpression)
		require.True(t, ok)
		require.Equal(t, record.ValueTypeList, lit.ValueType())
	})
}

func TestExpressionStrings(t *testing.T) {
	call := &FuncCallExpr{
		Signature: functions.Signature{Name: "classify", Version: "1a2b"},
		Args:      []Expression{newColumnExpr("text", types.ColumnTypeTable)},
	}
	eq := &BinaryExpr{
		Op:    types.BinaryOpEq,
		Left:  call,
		Right: NewLiteral(record.Str("dog")),
	}
	require.Equal(t, `EQ(classify@1a2b(table.text), "dog")`, eq.String())

	not := &UnaryExpr{
		Op:   types.UnaryOpNot,
		Left: newColumnExpr("hidden", types.ColumnTypeTable),
	}
	require.Equal(t, "NOT(table.hidden)", not.String())
}
