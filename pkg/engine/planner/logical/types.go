package logical

import (
	"github.com/muninndb/muninn/pkg/engine/internal/types"
)

// The following are aliases for the shared plan types, so that callers
// building logical plans do not need to import an internal package.

type ColumnType = types.ColumnType

var (
	ColumnTypeTable     = types.ColumnTypeTable
	ColumnTypeBinding   = types.ColumnTypeBinding
	ColumnTypeAmbiguous = types.ColumnTypeAmbiguous
)

type UnaryOp = types.UnaryOp

var UnaryOpNot = types.UnaryOpNot

type BinaryOp = types.BinaryOp

var (
	BinaryOpEq  = types.BinaryOpEq
	BinaryOpNeq = types.BinaryOpNeq
	BinaryOpGt  = types.BinaryOpGt
	BinaryOpGte = types.BinaryOpGte
	BinaryOpLt  = types.BinaryOpLt
	BinaryOpLte = types.BinaryOpLte
	BinaryOpAnd = types.BinaryOpAnd
	BinaryOpOr  = types.BinaryOpOr

	BinaryOpAdd = types.BinaryOpAdd
	BinaryOpSub = types.BinaryOpSub
	BinaryOpMul = types.BinaryOpMul
	BinaryOpDiv = types.BinaryOpDiv

	BinaryOpMatchRe    = types.BinaryOpMatchRe
	BinaryOpNotMatchRe = types.BinaryOpNotMatchRe
)
