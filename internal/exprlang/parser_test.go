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

package exprlang_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/types"
)

func evalConst(t *testing.T, src string) types.Scalar {
	t.Helper()
	expr, err := exprlang.Parse(src)
	require.NoError(t, err)
	v, err := expr.Eval(types.RowBatch{}, 0)
	require.NoError(t, err)
	return v
}

func TestPrecedenceAdditiveVsMultiplicative(t *testing.T) {
	// a + b * c must parse as a + (b * c), not (a + b) * c — the §9
	// redesign note's whole point.
	v := evalConst(t, "2 + 3 * 4")
	require.Equal(t, types.I64(14), v)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	v := evalConst(t, "(2 + 3) * 4")
	require.Equal(t, types.I64(20), v)
}

func TestComparisonBindsLooserThanArithmetic(t *testing.T) {
	v := evalConst(t, "1 + 1 == 2")
	require.Equal(t, types.Bool(true), v)
}

func TestAndBindsTighterThanOr(t *testing.T) {
	// false OR (true AND false) == false
	v := evalConst(t, "false OR true AND false")
	require.Equal(t, types.Bool(false), v)
	// (true OR false) AND false would be false, so this case tells the two
	// parses apart.
	v2 := evalConst(t, "true OR false AND false")
	require.Equal(t, types.Bool(true), v2)
}

func TestUnaryNotBindsTightest(t *testing.T) {
	v := evalConst(t, "NOT false AND true")
	require.Equal(t, types.Bool(true), v)
}

func TestIsNullOperators(t *testing.T) {
	batch, _ := types.NewRowBatch([]types.Column{
		{Name: "x", Values: []types.Scalar{types.Null()}},
	})
	expr, err := exprlang.Parse("x IS NULL")
	require.NoError(t, err)
	v, err := expr.Eval(batch, 0)
	require.NoError(t, err)
	require.Equal(t, types.Bool(true), v)

	expr2, err := exprlang.Parse("x IS NOT NULL")
	require.NoError(t, err)
	v2, err := expr2.Eval(batch, 0)
	require.NoError(t, err)
	require.Equal(t, types.Bool(false), v2)
}

func TestColumnReferenceAndFilterPredicate(t *testing.T) {
	batch, _ := types.NewRowBatch([]types.Column{
		{Name: "age", Values: []types.Scalar{types.I64(30)}},
	})
	expr, err := exprlang.Parse("age > 25")
	require.NoError(t, err)
	v, err := expr.Eval(batch, 0)
	require.NoError(t, err)
	require.Equal(t, types.Bool(true), v)
}

func TestDivisionByZeroFails(t *testing.T) {
	expr, err := exprlang.Parse("1 / 0")
	require.NoError(t, err)
	_, err = expr.Eval(types.RowBatch{}, 0)
	require.Error(t, err)
}

func TestStringConcatenation(t *testing.T) {
	v := evalConst(t, `'foo' + 'bar'`)
	require.Equal(t, types.Utf8("foobar"), v)
}

func TestColumnsReferenced(t *testing.T) {
	expr, err := exprlang.Parse("a + b > c")
	require.NoError(t, err)
	cols := exprlang.ColumnsReferenced(expr)
	require.Len(t, cols, 3)
	for _, name := range []string{"a", "b", "c"} {
		_, ok := cols[name]
		require.True(t, ok)
	}
}

func TestEqualityPredicateDetection(t *testing.T) {
	expr, err := exprlang.Parse("category == 'cat_3'")
	require.NoError(t, err)
	col, lit, ok := exprlang.EqualityPredicate(expr)
	require.True(t, ok)
	require.Equal(t, "category", col)
	require.Equal(t, types.Utf8("cat_3"), lit)
}
