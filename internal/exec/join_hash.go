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
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// defaultJoinPartitions and defaultJoinPartitionBudgetBytes govern the
// Grace hash join's partitioning: a bucket on either side spills to its
// own segment each time its estimated size crosses the budget.
const (
	defaultJoinPartitions           = 16
	defaultJoinPartitionBudgetBytes = 4 << 20
)

// HashJoin performs an equi-join via a Grace hash partitioning scheme: rows
// from both sides are routed to one of partitionCount buckets by the
// murmur3 hash of their join key, and each bucket is spilled independently
// once it outgrows its memory budget. Because TE schedules one operator
// instance across many input blocks (§4.C), HashJoin cannot know it has
// seen every row until the engine calls Flush — EvalBlock only accumulates.
type HashJoin struct {
	kind joinKind
	on   []joinKeyPair

	spillMgr       *spill.Manager
	spillID        types.SpillId
	runIndex       uint64
	partitionCount int
	budgetBytes    int64

	leftBuckets  []types.RowBatch
	rightBuckets []types.RowBatch
	leftSpilled  map[int][]spill.SegmentMeta
	rightSpilled map[int][]spill.SegmentMeta

	leftSchema, rightSchema types.Schema
	outputSchema            types.Schema
}

// NewHashJoin is this kernel's Maker, registered under physical.KeyHashJoin.
func NewHashJoin(config json.RawMessage, deps Deps) (Operator, error) {
	kind, on, err := parseJoinConfig(config)
	if err != nil {
		return nil, err
	}
	n := 1
	var spillID types.SpillId
	if deps.Spill != nil {
		n = defaultJoinPartitions
		if deps.IDs != nil {
			spillID = deps.IDs.NextSpillId()
		}
	}
	return &HashJoin{
		kind:           kind,
		on:             on,
		spillMgr:       deps.Spill,
		spillID:        spillID,
		partitionCount: n,
		budgetBytes:    defaultJoinPartitionBudgetBytes,
		leftBuckets:    make([]types.RowBatch, n),
		rightBuckets:   make([]types.RowBatch, n),
		leftSpilled:    map[int][]spill.SegmentMeta{},
		rightSpilled:   map[int][]spill.SegmentMeta{},
	}, nil
}

func (j *HashJoin) Name() string { return "HashJoin" }

func (j *HashJoin) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: 128, OverheadBytes: 8192}
}

func (j *HashJoin) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 2 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "join_hash: expected exactly two input schemas, got %d", len(inputSchemas))
	}
	j.leftSchema, j.rightSchema = inputSchemas[0], inputSchemas[1]
	j.outputSchema = joinOutputSchema(j.leftSchema, j.rightSchema, j.kind)
	return OpPlan{OutputSchema: j.outputSchema, Footprint: j.MemoryNeed(0, 0)}, nil
}

func (j *HashJoin) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 2 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "join_hash: expected exactly two inputs, got %d", len(inputs))
	}
	if !inputs[0].IsEmpty() {
		if err := j.accumulateSide(inputs[0], true); err != nil {
			return types.RowBatch{}, err
		}
	}
	if !inputs[1].IsEmpty() {
		if err := j.accumulateSide(inputs[1], false); err != nil {
			return types.RowBatch{}, err
		}
	}
	return emptyBatch(j.outputSchema), nil
}

func (j *HashJoin) accumulateSide(batch types.RowBatch, isLeft bool) error {
	keyCols := make([]types.Column, len(j.on))
	for i, k := range j.on {
		name := k.Right
		if isLeft {
			name = k.Left
		}
		col, _, ok := batch.ColumnByName(name)
		if !ok {
			return emerrors.New(emerrors.KindSchema, "join_hash: unknown join column %q", name)
		}
		keyCols[i] = col
	}
	byBucket := map[int][]int{}
	for row := 0; row < batch.NumRows(); row++ {
		keyVals := make([]types.Scalar, len(keyCols))
		for i, c := range keyCols {
			keyVals[i] = c.Values[row]
		}
		p := partitionOf(types.HashTuple(keyVals), j.partitionCount)
		byBucket[p] = append(byBucket[p], row)
	}
	for p, idxs := range byBucket {
		sub := batch.SelectRows(idxs)
		var err error
		if isLeft {
			j.leftBuckets[p], err = types.Concat(j.leftBuckets[p], sub)
		} else {
			j.rightBuckets[p], err = types.Concat(j.rightBuckets[p], sub)
		}
		if err != nil {
			return err
		}
		if j.spillMgr == nil {
			continue
		}
		if isLeft && estimateBatchBytes(j.leftBuckets[p]) > j.budgetBytes {
			if err := j.spillBucket(p, true); err != nil {
				return err
			}
		}
		if !isLeft && estimateBatchBytes(j.rightBuckets[p]) > j.budgetBytes {
			if err := j.spillBucket(p, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *HashJoin) spillBucket(p int, isLeft bool) error {
	batch := j.rightBuckets[p]
	if isLeft {
		batch = j.leftBuckets[p]
	}
	meta, err := j.spillMgr.WriteBatch(batch, j.spillID, j.runIndex)
	if err != nil {
		return emerrors.Wrap(err, emerrors.OperatorContext("HashJoin", 0, 0, int64(batch.NumRows()), 0))
	}
	j.runIndex++
	if isLeft {
		j.leftSpilled[p] = append(j.leftSpilled[p], meta)
		j.leftBuckets[p] = types.RowBatch{}
	} else {
		j.rightSpilled[p] = append(j.rightSpilled[p], meta)
		j.rightBuckets[p] = types.RowBatch{}
	}
	return nil
}

// Flush joins each partition independently: it gathers the bucket's full
// left and right contents (in-memory tail plus every spilled segment) and
// runs a plain in-memory hash join over them. A bucket that spilled more
// than once gathers more than the partition budget.
func (j *HashJoin) Flush(b *budget.Budget) (types.RowBatch, error) {
	var results []types.RowBatch
	for p := 0; p < j.partitionCount; p++ {
		left, err := j.gatherBucket(p, true, b)
		if err != nil {
			return types.RowBatch{}, err
		}
		right, err := j.gatherBucket(p, false, b)
		if err != nil {
			return types.RowBatch{}, err
		}
		if left.NumRows() == 0 && right.NumRows() == 0 {
			continue
		}
		out, err := j.joinBucket(left, right)
		if err != nil {
			return types.RowBatch{}, err
		}
		results = append(results, out)
	}
	if len(results) == 0 {
		return emptyBatch(j.outputSchema), nil
	}
	return types.Concat(results...)
}

func (j *HashJoin) gatherBucket(p int, isLeft bool, b *budget.Budget) (types.RowBatch, error) {
	segs := j.rightSpilled[p]
	mem := j.rightBuckets[p]
	if isLeft {
		segs = j.leftSpilled[p]
		mem = j.leftBuckets[p]
	}
	batches := make([]types.RowBatch, 0, len(segs)+1)
	for _, meta := range segs {
		batch, err := j.spillMgr.ReadBatch(meta, b)
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("HashJoin", 0, 0, 0, 0))
		}
		batches = append(batches, batch)
	}
	batches = append(batches, mem)
	return types.Concat(batches...)
}

func (j *HashJoin) joinBucket(left, right types.RowBatch) (types.RowBatch, error) {
	rightKeyCols := make([]types.Column, len(j.on))
	for i, k := range j.on {
		col, _, _ := right.ColumnByName(k.Right)
		rightKeyCols[i] = col
	}
	buildIndex := map[types.Hash256][]int{}
	for row := 0; row < right.NumRows(); row++ {
		keyVals := make([]types.Scalar, len(j.on))
		for i, c := range rightKeyCols {
			keyVals[i] = c.Values[row]
		}
		h := types.HashTuple(keyVals)
		buildIndex[h] = append(buildIndex[h], row)
	}

	leftKeyCols := make([]types.Column, len(j.on))
	for i, k := range j.on {
		col, _, _ := left.ColumnByName(k.Left)
		leftKeyCols[i] = col
	}

	matchedRight := make([]bool, right.NumRows())
	var leftIdxs, rightIdxs []int
	for lrow := 0; lrow < left.NumRows(); lrow++ {
		keyVals := make([]types.Scalar, len(j.on))
		for i, c := range leftKeyCols {
			keyVals[i] = c.Values[lrow]
		}
		matches := buildIndex[types.HashTuple(keyVals)]
		if len(matches) == 0 {
			if j.kind == joinLeft || j.kind == joinFull {
				leftIdxs = append(leftIdxs, lrow)
				rightIdxs = append(rightIdxs, -1)
			}
			continue
		}
		for _, rrow := range matches {
			matchedRight[rrow] = true
			leftIdxs = append(leftIdxs, lrow)
			rightIdxs = append(rightIdxs, rrow)
		}
	}
	if j.kind == joinRight || j.kind == joinFull {
		for rrow, matched := range matchedRight {
			if !matched {
				leftIdxs = append(leftIdxs, -1)
				rightIdxs = append(rightIdxs, rrow)
			}
		}
	}
	return emitJoinRows(left, right, j.leftSchema, j.rightSchema, j.outputSchema, leftIdxs, rightIdxs)
}
