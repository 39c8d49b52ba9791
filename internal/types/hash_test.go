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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/types"
)

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, types.Utf8("hello").Hash(), types.Utf8("hello").Hash())
	require.NotEqual(t, types.Utf8("hello").Hash(), types.Utf8("world").Hash())
}

func TestCombineHashIsCommutative(t *testing.T) {
	a := types.HashBytes([]byte("a"))
	b := types.HashBytes([]byte("b"))
	require.Equal(t, types.CombineHash(a, b), types.CombineHash(b, a))
}

func TestHashTupleDistinguishesFieldBoundaries(t *testing.T) {
	ab := types.HashTuple([]types.Scalar{types.Utf8("a"), types.Utf8("b")})
	ab2 := types.HashTuple([]types.Scalar{types.Utf8("ab")})
	require.NotEqual(t, ab, ab2)
}
