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

// ColumnsReferenced walks expr and returns the set of column names it
// reads, used by the cost model's selectivity estimation (§4.F) and by
// the (currently unimplemented, §4.E/§9) predicate-aware projection
// pushdown to decide whether a Project can move below a Filter.
func ColumnsReferenced(expr Expr) map[string]struct{} {
	out := map[string]struct{}{}
	collectColumns(expr, out)
	return out
}

func collectColumns(expr Expr, out map[string]struct{}) {
	switch e := expr.(type) {
	case ColumnRef:
		out[e.Name] = struct{}{}
	case Binary:
		collectColumns(e.Left, out)
		collectColumns(e.Right, out)
	case Unary:
		collectColumns(e.Operand, out)
	case IsNullCheck:
		collectColumns(e.Operand, out)
	}
}

// EqualityPredicate reports whether expr is `column == literal` (in
// either operand order), returning the column name and literal value.
// The cost model (§4.F) uses this shape to apply the `1/distinct_count`
// selectivity formula.
func EqualityPredicate(expr Expr) (column string, lit types.Scalar, ok bool) {
	b, isBinary := expr.(Binary)
	if !isBinary || b.Op != OpEq {
		return "", types.Scalar{}, false
	}
	if col, isCol := b.Left.(ColumnRef); isCol {
		if l, isLit := b.Right.(Literal); isLit {
			return col.Name, l.Value, true
		}
	}
	if col, isCol := b.Right.(ColumnRef); isCol {
		if l, isLit := b.Left.(Literal); isLit {
			return col.Name, l.Value, true
		}
	}
	return "", types.Scalar{}, false
}

// RangePredicate reports whether expr is a single comparison of a column
// against a literal (`<`, `<=`, `>`, `>=`), returning the column, the
// operator, and the literal. The cost model (§4.F) uses this shape for
// range-overlap selectivity.
func RangePredicate(expr Expr) (column string, op BinOp, lit types.Scalar, ok bool) {
	b, isBinary := expr.(Binary)
	if !isBinary {
		return "", 0, types.Scalar{}, false
	}
	switch b.Op {
	case OpLt, OpLte, OpGt, OpGte:
	default:
		return "", 0, types.Scalar{}, false
	}
	if col, isCol := b.Left.(ColumnRef); isCol {
		if l, isLit := b.Right.(Literal); isLit {
			return col.Name, b.Op, l.Value, true
		}
	}
	return "", 0, types.Scalar{}, false
}
