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

func ordersLeftBatch(t *testing.T) types.RowBatch {
	t.Helper()
	b, err := types.NewRowBatch([]types.Column{
		{Name: "order_id", Values: []types.Scalar{types.I64(1), types.I64(2), types.I64(3)}},
		{Name: "customer_id", Values: []types.Scalar{types.I64(10), types.I64(20), types.I64(99)}},
	})
	require.NoError(t, err)
	return b
}

func customersRightBatch(t *testing.T) types.RowBatch {
	t.Helper()
	b, err := types.NewRowBatch([]types.Column{
		{Name: "customer_id", Values: []types.Scalar{types.I64(10), types.I64(20)}},
		{Name: "name", Values: []types.Scalar{types.Utf8("alice"), types.Utf8("bob")}},
	})
	require.NoError(t, err)
	return b
}

func joinConfig(joinType string) []byte {
	return []byte(`{"type":"` + joinType + `","on":[{"left":"customer_id","right":"customer_id"}]}`)
}

func TestHashJoinInnerMatchesOnKey(t *testing.T) {
	op, err := exec.NewHashJoin(joinConfig("inner"), exec.Deps{})
	require.NoError(t, err)

	leftSchema := types.Schema{Fields: []types.Field{
		{Name: "order_id", DataType: types.TypeI64},
		{Name: "customer_id", DataType: types.TypeI64},
	}}
	rightSchema := types.Schema{Fields: []types.Field{
		{Name: "customer_id", DataType: types.TypeI64},
		{Name: "name", DataType: types.TypeUtf8},
	}}
	_, err = op.Plan([]types.Schema{leftSchema, rightSchema})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	_, err = op.EvalBlock([]types.RowBatch{ordersLeftBatch(t), customersRightBatch(t)}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	nameCol, _, ok := out.ColumnByName("name")
	require.True(t, ok)
	names := map[string]bool{nameCol.Values[0].AsString(): true, nameCol.Values[1].AsString(): true}
	require.True(t, names["alice"])
	require.True(t, names["bob"])
}

func TestHashJoinLeftFillsNullsForUnmatchedLeftRows(t *testing.T) {
	op, err := exec.NewHashJoin(joinConfig("left"), exec.Deps{})
	require.NoError(t, err)

	leftSchema := types.Schema{Fields: []types.Field{
		{Name: "order_id", DataType: types.TypeI64},
		{Name: "customer_id", DataType: types.TypeI64},
	}}
	rightSchema := types.Schema{Fields: []types.Field{
		{Name: "customer_id", DataType: types.TypeI64},
		{Name: "name", DataType: types.TypeUtf8},
	}}
	_, err = op.Plan([]types.Schema{leftSchema, rightSchema})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	_, err = op.EvalBlock([]types.RowBatch{ordersLeftBatch(t), customersRightBatch(t)}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, 3, out.NumRows())

	nameCol, _, _ := out.ColumnByName("name")
	nullCount := 0
	for _, v := range nameCol.Values {
		if v.IsNull() {
			nullCount++
		}
	}
	require.Equal(t, 1, nullCount)
}

func TestHashJoinWithSpillManagerAcrossManyBlocksAndPartitions(t *testing.T) {
	store, err := spill.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := spill.NewManager(store, spill.CodecNone)

	op, err := exec.NewHashJoin(joinConfig("inner"), exec.Deps{Spill: mgr, IDs: types.NewIDAllocator()})
	require.NoError(t, err)

	leftSchema := types.Schema{Fields: []types.Field{
		{Name: "id", DataType: types.TypeI64},
		{Name: "key", DataType: types.TypeI64},
	}}
	rightSchema := types.Schema{Fields: []types.Field{
		{Name: "key", DataType: types.TypeI64},
		{Name: "value", DataType: types.TypeUtf8},
	}}
	_, err = op.Plan([]types.Schema{leftSchema, rightSchema})
	require.NoError(t, err)

	const n = 50000
	b := budget.New(64 << 20)
	for block := 0; block < 5; block++ {
		var leftIDs, leftKeys, rightKeys, rightVals []types.Scalar
		for i := 0; i < n/5; i++ {
			key := int64(block*(n/5) + i)
			leftIDs = append(leftIDs, types.I64(key))
			leftKeys = append(leftKeys, types.I64(key))
			rightKeys = append(rightKeys, types.I64(key))
			rightVals = append(rightVals, types.Utf8("v"))
		}
		left, err := types.NewRowBatch([]types.Column{{Name: "id", Values: leftIDs}, {Name: "key", Values: leftKeys}})
		require.NoError(t, err)
		right, err := types.NewRowBatch([]types.Column{{Name: "key", Values: rightKeys}, {Name: "value", Values: rightVals}})
		require.NoError(t, err)
		_, err = op.EvalBlock([]types.RowBatch{left, right}, b)
		require.NoError(t, err)
	}

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, n, out.NumRows())
}

func sortedByKey(t *testing.T, keys []int64, extra []string, extraName string) types.RowBatch {
	t.Helper()
	keyVals := make([]types.Scalar, len(keys))
	extraVals := make([]types.Scalar, len(keys))
	for i, k := range keys {
		keyVals[i] = types.I64(k)
		extraVals[i] = types.Utf8(extra[i])
	}
	b, err := types.NewRowBatch([]types.Column{
		{Name: "k", Values: keyVals},
		{Name: extraName, Values: extraVals},
	})
	require.NoError(t, err)
	return b
}

func TestMergeJoinHandlesDuplicateKeysAsCartesianProduct(t *testing.T) {
	op, err := exec.NewMergeJoin([]byte(`{"type":"inner","on":[{"left":"k","right":"k"}]}`), exec.Deps{})
	require.NoError(t, err)

	left := sortedByKey(t, []int64{1, 2, 2, 3}, []string{"l1", "l2", "l3", "l4"}, "lval")
	right := sortedByKey(t, []int64{2, 2, 4}, []string{"r1", "r2", "r3"}, "rval")

	_, err = op.Plan([]types.Schema{
		{Fields: []types.Field{{Name: "k", DataType: types.TypeI64}, {Name: "lval", DataType: types.TypeUtf8}}},
		{Fields: []types.Field{{Name: "k", DataType: types.TypeI64}, {Name: "rval", DataType: types.TypeUtf8}}},
	})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	_, err = op.EvalBlock([]types.RowBatch{left, right}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	// Two left rows with k=2 times two right rows with k=2: 4 matches.
	require.Equal(t, 4, out.NumRows())
}

func TestMergeJoinFullFillsBothSidesOnMismatch(t *testing.T) {
	op, err := exec.NewMergeJoin([]byte(`{"type":"full","on":[{"left":"k","right":"k"}]}`), exec.Deps{})
	require.NoError(t, err)

	left := sortedByKey(t, []int64{1, 3}, []string{"l1", "l2"}, "lval")
	right := sortedByKey(t, []int64{2, 3}, []string{"r1", "r2"}, "rval")

	_, err = op.Plan([]types.Schema{
		{Fields: []types.Field{{Name: "k", DataType: types.TypeI64}, {Name: "lval", DataType: types.TypeUtf8}}},
		{Fields: []types.Field{{Name: "k", DataType: types.TypeI64}, {Name: "rval", DataType: types.TypeUtf8}}},
	})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	_, err = op.EvalBlock([]types.RowBatch{left, right}, b)
	require.NoError(t, err)

	flusher := op.(exec.Flusher)
	out, err := flusher.Flush(b)
	require.NoError(t, err)
	require.Equal(t, 3, out.NumRows())
}
