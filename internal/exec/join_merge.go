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

package exec

import (
	"encoding/json"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// MergeJoin performs a streaming two-pointer merge join on inputs that are
// already sorted on the join key (a precondition the planner/TE enforces by
// placing an ExternalSort ahead of this operator when needed). TE's
// per-block scheduling (§4.C) means EvalBlock only sees a slice of each
// side at a time, so rows accumulate here and the merge itself runs once
// in Flush against the fully assembled, still-sorted concatenation of
// every block.
type MergeJoin struct {
	kind joinKind
	on   []joinKeyPair

	leftBatches, rightBatches []types.RowBatch
	leftSchema, rightSchema   types.Schema
	outputSchema              types.Schema
}

// NewMergeJoin is this kernel's Maker, registered under physical.KeyMergeJoin.
func NewMergeJoin(config json.RawMessage, deps Deps) (Operator, error) {
	kind, on, err := parseJoinConfig(config)
	if err != nil {
		return nil, err
	}
	return &MergeJoin{kind: kind, on: on}, nil
}

func (j *MergeJoin) Name() string { return "MergeJoin" }

func (j *MergeJoin) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: 1, OverheadBytes: 64 << 10}
}

func (j *MergeJoin) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 2 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "join_merge: expected exactly two input schemas, got %d", len(inputSchemas))
	}
	j.leftSchema, j.rightSchema = inputSchemas[0], inputSchemas[1]
	j.outputSchema = joinOutputSchema(j.leftSchema, j.rightSchema, j.kind)
	return OpPlan{OutputSchema: j.outputSchema, Footprint: j.MemoryNeed(0, 0)}, nil
}

func (j *MergeJoin) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 2 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "join_merge: expected exactly two inputs, got %d", len(inputs))
	}
	if !inputs[0].IsEmpty() {
		j.leftBatches = append(j.leftBatches, inputs[0])
	}
	if !inputs[1].IsEmpty() {
		j.rightBatches = append(j.rightBatches, inputs[1])
	}
	return emptyBatch(j.outputSchema), nil
}

func (j *MergeJoin) Flush(b *budget.Budget) (types.RowBatch, error) {
	left, err := types.Concat(j.leftBatches...)
	if err != nil {
		return types.RowBatch{}, err
	}
	right, err := types.Concat(j.rightBatches...)
	if err != nil {
		return types.RowBatch{}, err
	}

	leftKeyCols := make([]types.Column, len(j.on))
	for i, k := range j.on {
		col, _, ok := left.ColumnByName(k.Left)
		if !ok {
			return types.RowBatch{}, emerrors.New(emerrors.KindSchema, "join_merge: left join key %q not found", k.Left)
		}
		leftKeyCols[i] = col
	}
	rightKeyCols := make([]types.Column, len(j.on))
	for i, k := range j.on {
		col, _, ok := right.ColumnByName(k.Right)
		if !ok {
			return types.RowBatch{}, emerrors.New(emerrors.KindSchema, "join_merge: right join key %q not found", k.Right)
		}
		rightKeyCols[i] = col
	}

	leftRows, rightRows := left.NumRows(), right.NumRows()
	leftKey := func(row int) []types.Scalar { return keyTupleAt(leftKeyCols, row) }
	rightKey := func(row int) []types.Scalar { return keyTupleAt(rightKeyCols, row) }

	var leftIdxs, rightIdxs []int
	li, ri := 0, 0
	for li < leftRows && ri < rightRows {
		switch compareKeyTuples(leftKey(li), rightKey(ri)) {
		case -1:
			if j.kind == joinLeft || j.kind == joinFull {
				leftIdxs = append(leftIdxs, li)
				rightIdxs = append(rightIdxs, -1)
			}
			li++
		case 1:
			if j.kind == joinRight || j.kind == joinFull {
				leftIdxs = append(leftIdxs, -1)
				rightIdxs = append(rightIdxs, ri)
			}
			ri++
		default:
			leftEnd := li
			for leftEnd < leftRows && compareKeyTuples(leftKey(leftEnd), leftKey(li)) == 0 {
				leftEnd++
			}
			rightEnd := ri
			for rightEnd < rightRows && compareKeyTuples(rightKey(rightEnd), rightKey(ri)) == 0 {
				rightEnd++
			}
			for l := li; l < leftEnd; l++ {
				for r := ri; r < rightEnd; r++ {
					leftIdxs = append(leftIdxs, l)
					rightIdxs = append(rightIdxs, r)
				}
			}
			li, ri = leftEnd, rightEnd
		}
	}
	for ; li < leftRows; li++ {
		if j.kind == joinLeft || j.kind == joinFull {
			leftIdxs = append(leftIdxs, li)
			rightIdxs = append(rightIdxs, -1)
		}
	}
	for ; ri < rightRows; ri++ {
		if j.kind == joinRight || j.kind == joinFull {
			leftIdxs = append(leftIdxs, -1)
			rightIdxs = append(rightIdxs, ri)
		}
	}

	return emitJoinRows(left, right, j.leftSchema, j.rightSchema, j.outputSchema, leftIdxs, rightIdxs)
}

func keyTupleAt(cols []types.Column, row int) []types.Scalar {
	out := make([]types.Scalar, len(cols))
	for i, c := range cols {
		out[i] = c.Values[row]
	}
	return out
}

// compareKeyTuples compares two key tuples component-wise using
// types.Scalar.Compare (Null-first), returning on the first differing
// component — the Go analogue of merge.rs's compare_scalar_tuples.
func compareKeyTuples(a, b []types.Scalar) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
