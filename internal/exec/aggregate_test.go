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

func groupedBatch(t *testing.T, nGroups, perGroup int) types.RowBatch {
	t.Helper()
	var groupVals, valueVals []types.Scalar
	for g := 0; g < nGroups; g++ {
		for v := 0; v < perGroup; v++ {
			groupVals = append(groupVals, types.I64(int64(g)))
			valueVals = append(valueVals, types.I64(int64(v+1)))
		}
	}
	b, err := types.NewRowBatch([]types.Column{
		{Name: "grp", Values: groupVals},
		{Name: "val", Values: valueVals},
	})
	require.NoError(t, err)
	return b
}

func aggConfig() []byte {
	return []byte(`{
		"group_by": ["grp"],
		"aggs": [
			{"func": "count", "column": "", "as": "n"},
			{"func": "sum", "column": "val", "as": "total"},
			{"func": "min", "column": "val", "as": "lo"},
			{"func": "max", "column": "val", "as": "hi"},
			{"func": "avg", "column": "val", "as": "mean"}
		]
	}`)
}

func TestAggregateGroupsAndComputesAllFunctions(t *testing.T) {
	op, err := exec.NewAggregate(aggConfig(), exec.Deps{})
	require.NoError(t, err)

	schema := types.Schema{Fields: []types.Field{
		{Name: "grp", DataType: types.TypeI64},
		{Name: "val", DataType: types.TypeI64},
	}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(4 << 20)
	batch := groupedBatch(t, 10, 10)
	_, err = op.EvalBlock([]types.RowBatch{batch}, b)
	require.NoError(t, err)

	flusher, ok := op.(exec.Flusher)
	require.True(t, ok)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, 10, out.NumRows())

	grpCol, _, _ := out.ColumnByName("grp")
	nCol, _, _ := out.ColumnByName("n")
	totalCol, _, _ := out.ColumnByName("total")
	loCol, _, _ := out.ColumnByName("lo")
	hiCol, _, _ := out.ColumnByName("hi")
	meanCol, _, _ := out.ColumnByName("mean")

	seen := map[int64]bool{}
	for row := 0; row < out.NumRows(); row++ {
		seen[grpCol.Values[row].AsInt64()] = true
		require.Equal(t, types.I64(10), nCol.Values[row])
		require.Equal(t, types.F64(55), totalCol.Values[row])
		require.Equal(t, types.I64(1), loCol.Values[row])
		require.Equal(t, types.I64(10), hiCol.Values[row])
		require.Equal(t, types.F64(5.5), meanCol.Values[row])
	}
	require.Len(t, seen, 10)
}

func TestAggregateSpillsAndMergesAcrossPartitions(t *testing.T) {
	store, err := spill.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := spill.NewManager(store, spill.CodecNone)

	op, err := exec.NewAggregate(aggConfig(), exec.Deps{Spill: mgr, IDs: types.NewIDAllocator()})
	require.NoError(t, err)

	schema := types.Schema{Fields: []types.Field{
		{Name: "grp", DataType: types.TypeI64},
		{Name: "val", DataType: types.TypeI64},
	}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(64 << 20)
	// 40000 distinct groups push the in-memory table's estimated size
	// (128 bytes/group) past the 4MiB spill threshold on the very first
	// block; a second block revisiting the same group ids exercises the
	// Flush-time merge between freshly-spilled and re-accumulated state.
	const nGroups = 40000
	for block := 0; block < 2; block++ {
		batch := groupedBatch(t, nGroups, 1)
		_, err := op.EvalBlock([]types.RowBatch{batch}, b)
		require.NoError(t, err)
	}

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, nGroups, out.NumRows())

	nCol, _, _ := out.ColumnByName("n")
	for row := 0; row < out.NumRows(); row++ {
		require.Equal(t, types.I64(2), nCol.Values[row])
	}
}

func TestAggregateEvalBlockAlwaysReturnsEmptyUntilFlush(t *testing.T) {
	op, err := exec.NewAggregate(aggConfig(), exec.Deps{})
	require.NoError(t, err)
	schema := types.Schema{Fields: []types.Field{
		{Name: "grp", DataType: types.TypeI64},
		{Name: "val", DataType: types.TypeI64},
	}}
	_, err = op.Plan([]types.Schema{schema})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	out, err := op.EvalBlock([]types.RowBatch{groupedBatch(t, 3, 3)}, b)
	require.NoError(t, err)
	require.Equal(t, 0, out.NumRows())
}
