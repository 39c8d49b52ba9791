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

package types_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/types"
)

func TestScalarOrderingNullIsMinimum(t *testing.T) {
	require.True(t, types.Null().Compare(types.I32(-1000)) < 0)
	require.True(t, types.I32(-1000).Compare(types.Null()) > 0)
	require.True(t, types.Null().Equal(types.Null()))
}

func TestScalarOrderingWidensNumerics(t *testing.T) {
	require.Equal(t, 0, types.I32(5).Compare(types.F64(5.0)))
	require.True(t, types.I32(5).Compare(types.F64(5.5)) < 0)
	require.True(t, types.I64(10).Compare(types.F32(9.5)) > 0)
}

func TestScalarOrderingStringsAreLexicographic(t *testing.T) {
	require.True(t, types.Utf8("abc").Compare(types.Utf8("abd")) < 0)
	require.True(t, types.Binary([]byte{1, 2}).Compare(types.Binary([]byte{1, 3})) < 0)
}

func TestScalarOrderingNaNTiesAreEqual(t *testing.T) {
	require.Equal(t, 0, types.F64(math.NaN()).Compare(types.F64(1.0)))
	require.Equal(t, 0, types.F64(math.NaN()).Compare(types.F64(math.NaN())))
}

func TestScalarOrderingMixedTypeFallsBackToRank(t *testing.T) {
	require.True(t, types.Bool(true).Compare(types.Utf8("x")) < 0)
}

func TestScalarArithmetic(t *testing.T) {
	sum, err := types.I32(2).Add(types.I64(3))
	require.NoError(t, err)
	require.Equal(t, types.I64(5), sum)

	concat, err := types.Utf8("a").Add(types.Utf8("b"))
	require.NoError(t, err)
	require.Equal(t, types.Utf8("ab"), concat)

	_, err = types.I32(1).Div(types.I32(0))
	require.Error(t, err)
}

func TestScalarBoolCoercion(t *testing.T) {
	require.False(t, types.Null().AsBool())
	require.False(t, types.I64(0).AsBool())
	require.False(t, types.Utf8("").AsBool())
	require.True(t, types.Utf8("x").AsBool())
	require.True(t, types.I64(1).AsBool())
}
