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

package exec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/exec"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/types"
)

func intBatch(t *testing.T, vals ...int64) types.RowBatch {
	t.Helper()
	scalars := make([]types.Scalar, len(vals))
	for i, v := range vals {
		scalars[i] = types.I64(v)
	}
	b, err := types.NewRowBatch([]types.Column{{Name: "v", Values: scalars}})
	require.NoError(t, err)
	return b
}

func TestExternalSortOrdersAscendingWithNullsFirst(t *testing.T) {
	op, err := exec.NewExternalSort([]byte(`{"keys":[{"column":"v","desc":false}]}`), exec.Deps{})
	require.NoError(t, err)

	schema := types.Schema{Fields: []types.Field{{Name: "v", DataType: types.TypeI64, Nullable: true}}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	batch, err := types.NewRowBatch([]types.Column{
		{Name: "v", Values: []types.Scalar{types.I64(5), types.Null(), types.I64(1), types.I64(3)}},
	})
	require.NoError(t, err)
	_, err = op.EvalBlock([]types.RowBatch{batch}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)

	col, _, _ := out.ColumnByName("v")
	require.True(t, col.Values[0].IsNull())
	require.Equal(t, types.I64(1), col.Values[1])
	require.Equal(t, types.I64(3), col.Values[2])
	require.Equal(t, types.I64(5), col.Values[3])
}

func TestExternalSortDescending(t *testing.T) {
	op, err := exec.NewExternalSort([]byte(`{"keys":[{"column":"v","desc":true}]}`), exec.Deps{})
	require.NoError(t, err)
	schema := types.Schema{Fields: []types.Field{{Name: "v", DataType: types.TypeI64}}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	_, err = op.EvalBlock([]types.RowBatch{intBatch(t, 1, 3, 2)}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	col, _, _ := out.ColumnByName("v")
	require.Equal(t, []types.Scalar{types.I64(3), types.I64(2), types.I64(1)}, col.Values)
}

func TestExternalSortSpillsRunsAndMergesAtFlush(t *testing.T) {
	store, err := spill.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := spill.NewManager(store, spill.CodecNone)

	op, err := exec.NewExternalSort([]byte(`{"keys":[{"column":"v","desc":false}]}`), exec.Deps{Spill: mgr, IDs: types.NewIDAllocator()})
	require.NoError(t, err)
	schema := types.Schema{Fields: []types.Field{{Name: "v", DataType: types.TypeI64}}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(64 << 20)
	// Each block contributes a run large enough to push the in-memory
	// accumulator over the per-run spill budget, forcing several runs to
	// be sorted and spilled before Flush's k-way merge combines them.
	const rowsPerBlock = 150000
	for block := 0; block < 3; block++ {
		vals := make([]int64, rowsPerBlock)
		for i := range vals {
			// Descending within each block so a naive concat-without-sort
			// would not already happen to be ordered.
			vals[i] = int64(rowsPerBlock - i + block*rowsPerBlock)
		}
		_, err := op.EvalBlock([]types.RowBatch{intBatch(t, vals...)}, b)
		require.NoError(t, err)
	}

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, rowsPerBlock*3, out.NumRows())

	col, _, _ := out.ColumnByName("v")
	for i := 1; i < len(col.Values); i++ {
		require.LessOrEqual(t, col.Values[i-1].AsInt64(), col.Values[i].AsInt64())
	}
}
