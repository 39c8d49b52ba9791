// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package exprlang

import "github.com/logannye/emsqrt/internal/types"

// BinOp names a binary operator.
type BinOp uint8

const (
	OpEq BinOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
)

// Expr is any node in a parsed expression tree. Column references,
// literals, and binary/unary combinations of them (§4.B).
type Expr interface {
	// Eval evaluates the expression against row `row` of batch.
	Eval(batch types.RowBatch, row int) (types.Scalar, error)
}

// ColumnRef references a column by name.
type ColumnRef struct {
	Name string
}

// Literal wraps a constant Scalar.
type Literal struct {
	Value types.Scalar
}

// Binary applies a BinOp to two sub-expressions.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

// Unary is logical NOT.
type Unary struct {
	Operand Expr
}

// IsNullCheck implements `IS NULL` / `IS NOT NULL`.
type IsNullCheck struct {
	Operand Expr
	Negated bool
}

func (c ColumnRef) Eval(batch types.RowBatch, row int) (types.Scalar, error) {
	col, _, ok := batch.ColumnByName(c.Name)
	if !ok {
		return types.Scalar{}, columnNotFound(c.Name)
	}
	if row < 0 || row >= col.Len() {
		return types.Scalar{}, rowOutOfRange(row, col.Len())
	}
	return col.Values[row], nil
}

func (l Literal) Eval(types.RowBatch, int) (types.Scalar, error) {
	return l.Value, nil
}

func (b Binary) Eval(batch types.RowBatch, row int) (types.Scalar, error) {
	lv, err := b.Left.Eval(batch, row)
	if err != nil {
		return types.Scalar{}, err
	}
	// AND/OR short-circuit on the left operand like every C-family
	// language's boolean operators.
	switch b.Op {
	case OpAnd:
		if !lv.AsBool() {
			return types.Bool(false), nil
		}
		rv, err := b.Right.Eval(batch, row)
		if err != nil {
			return types.Scalar{}, err
		}
		return types.Bool(rv.AsBool()), nil
	case OpOr:
		if lv.AsBool() {
			return types.Bool(true), nil
		}
		rv, err := b.Right.Eval(batch, row)
		if err != nil {
			return types.Scalar{}, err
		}
		return types.Bool(rv.AsBool()), nil
	}
	rv, err := b.Right.Eval(batch, row)
	if err != nil {
		return types.Scalar{}, err
	}
	switch b.Op {
	case OpEq:
		return types.Bool(lv.Compare(rv) == 0), nil
	case OpNeq:
		return types.Bool(lv.Compare(rv) != 0), nil
	case OpLt:
		return types.Bool(lv.Compare(rv) < 0), nil
	case OpLte:
		return types.Bool(lv.Compare(rv) <= 0), nil
	case OpGt:
		return types.Bool(lv.Compare(rv) > 0), nil
	case OpGte:
		return types.Bool(lv.Compare(rv) >= 0), nil
	case OpAdd:
		return lv.Add(rv)
	case OpSub:
		return lv.Sub(rv)
	case OpMul:
		return lv.Mul(rv)
	case OpDiv:
		return lv.Div(rv)
	default:
		return types.Scalar{}, unknownOperator()
	}
}

func (u Unary) Eval(batch types.RowBatch, row int) (types.Scalar, error) {
	v, err := u.Operand.Eval(batch, row)
	if err != nil {
		return types.Scalar{}, err
	}
	return types.Bool(!v.AsBool()), nil
}

func (n IsNullCheck) Eval(batch types.RowBatch, row int) (types.Scalar, error) {
	v, err := n.Operand.Eval(batch, row)
	if err != nil {
		return types.Scalar{}, err
	}
	result := v.IsNull()
	if n.Negated {
		result = !result
	}
	return types.Bool(result), nil
}
