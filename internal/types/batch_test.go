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

func TestRowBatchValidateRejectsMismatchedLengths(t *testing.T) {
	_, err := types.NewRowBatch([]types.Column{
		{Name: "a", Values: []types.Scalar{types.I32(1), types.I32(2)}},
		{Name: "b", Values: []types.Scalar{types.I32(1)}},
	})
	require.Error(t, err)
}

func TestRowBatchEmptySentinel(t *testing.T) {
	b, err := types.NewRowBatch([]types.Column{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	require.True(t, b.IsEmpty())
	require.Equal(t, 0, b.NumRows())
}

func TestConcatPreservesColumnOrder(t *testing.T) {
	b1, _ := types.NewRowBatch([]types.Column{{Name: "a", Values: []types.Scalar{types.I32(1)}}})
	b2, _ := types.NewRowBatch([]types.Column{{Name: "a", Values: []types.Scalar{types.I32(2)}}})
	out, err := types.Concat(b1, b2)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())
	require.Equal(t, types.I32(1), out.Columns[0].Values[0])
	require.Equal(t, types.I32(2), out.Columns[0].Values[1])
}
