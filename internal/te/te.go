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

// Package te implements the TE block scheduler (§4.H): given a physical
// program and a memory cap, it decomposes the plan into an ordered list
// of blocks with a bounded, computed frontier: it picks one block size
// from the operators' footprints, walks physical.Node by its
// Source/Unary/Binary/Sink shape, and simulates the frontier of the
// resulting order.
package te

import (
	"encoding/json"
	"math"

	"github.com/logannye/emsqrt/internal/cost"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/types"
)

// Footprint is the per-row/per-block memory contribution an operator
// reports for block sizing (§4.H: `memory_need(rows, bytes) ->
// {bytes_per_row, overhead_bytes}`).
type Footprint struct {
	BytesPerRow   int64
	OverheadBytes int64
}

// FootprintFunc reports the Footprint an operator key contributes, given
// its bound config. Implementations typically delegate to the same
// registry the engine runtime (§4.J) instantiates operators from.
type FootprintFunc func(key string, config json.RawMessage) Footprint

// defaultFootprint is used when the caller supplies no FootprintFunc:
// coarse, conservative fixed per-key estimates.
func defaultFootprint(key string) Footprint {
	switch key {
	case physical.KeyAggregate:
		return Footprint{BytesPerRow: 96, OverheadBytes: 4096} // hash table overhead
	case physical.KeyJoinHash:
		return Footprint{BytesPerRow: 128, OverheadBytes: 8192} // build-side table
	case physical.KeyJoinMerge:
		return Footprint{BytesPerRow: 64, OverheadBytes: 1024}
	case physical.KeySortExternal:
		return Footprint{BytesPerRow: 64, OverheadBytes: 2048} // run buffer
	default:
		return Footprint{BytesPerRow: 64, OverheadBytes: 256}
	}
}

// BlockSizeHint carries the chosen row-count granularity for a TE plan.
type BlockSizeHint struct {
	RowsPerBlock int64
}

// blockSizeFraction is the portion of mem_cap_bytes block sizing budgets
// against (§4.H: "typically 1/2").
const blockSizeFraction = 0.5

// RowRange is the optional [start, end) hint TE attaches to Source
// blocks, carried through 1-to-1 for Unary/Sink descendants (§4.H).
type RowRange struct {
	Start, End int64
}

// Block is one scheduled unit of work: an operator invocation over one
// row range, depending on zero, one, or two upstream blocks (§4.H).
type Block struct {
	Id        types.BlockId
	Op        types.OpId
	Deps      []types.BlockId
	RangeRows *RowRange
}

// Plan is the scheduler's output (§4.H): the chosen block size, the
// blocks in topological order, and the computed frontier bound.
type Plan struct {
	BlockSize       BlockSizeHint
	Order           []Block
	MaxFrontierHint int
}

// ChooseBlockSize derives rows_per_block from memCapBytes and the
// aggregate per-row footprint of every operator in prog (§4.H): it picks
// the largest rows_per_block for which the sum of every operator's
// one-block footprint fits blockSizeFraction of memCapBytes.
func ChooseBlockSize(prog *physical.PhysicalProgram, memCapBytes int64, footprintOf FootprintFunc) BlockSizeHint {
	if footprintOf == nil {
		footprintOf = func(key string, _ json.RawMessage) Footprint { return defaultFootprint(key) }
	}
	var totalBytesPerRow, totalOverhead int64
	for _, n := range prog.PostOrder() {
		binding := prog.Bindings[n.Id]
		fp := footprintOf(binding.Key, binding.Config)
		totalBytesPerRow += fp.BytesPerRow
		totalOverhead += fp.OverheadBytes
	}
	if totalBytesPerRow < 1 {
		totalBytesPerRow = 1
	}
	budget := int64(float64(memCapBytes) * blockSizeFraction)
	available := budget - totalOverhead
	rows := available / totalBytesPerRow
	if rows < 1 {
		rows = 1
	}
	return BlockSizeHint{RowsPerBlock: rows}
}

// blockRange is the working-set carried back up from each recursive
// decomposition call: the block ids created for this node, plus the
// estimated row count threaded down to descendants (mirrors tree_eval.rs's
// BlockRange).
type blockRange struct {
	blocks        []types.BlockId
	estimatedRows int64
}

// PlanTE decomposes prog into an ordered, dependency-respecting block
// list bounded by the given memory cap (§4.H). est supplies the overall
// estimated row count (only the plan's Source nodes consult it directly,
// matching the reference decomposition: every descendant's block count
// is carried through 1-to-1 or aligned from its inputs, never
// re-estimated).
func PlanTE(prog *physical.PhysicalProgram, est cost.WorkEstimate, memCapBytes int64, footprintOf FootprintFunc, ids *types.IDAllocator) (*Plan, error) {
	if prog == nil || prog.Root == nil {
		return nil, emerrors.New(emerrors.KindPlan, "te: empty physical program")
	}
	blockSize := ChooseBlockSize(prog, memCapBytes, footprintOf)
	var order []Block

	_, err := decompose(prog, prog.Root, est, blockSize.RowsPerBlock, ids, &order)
	if err != nil {
		return nil, err
	}

	frontier := computeMaxFrontier(order)
	return &Plan{BlockSize: blockSize, Order: order, MaxFrontierHint: frontier}, nil
}

// decompose implements the four decomposition rules of §4.H by node
// shape: a binding key of "source" with no children is a Source; a
// binding key of "sink" is a Sink; two children is a Binary (join); one
// child is a Unary pipeline stage.
func decompose(prog *physical.PhysicalProgram, node *physical.Node, est cost.WorkEstimate, rowsPerBlock int64, ids *types.IDAllocator, order *[]Block) (blockRange, error) {
	binding := prog.Bindings[node.Id]
	switch {
	case len(node.Children) == 0:
		return decomposeSource(node, est, rowsPerBlock, ids, order), nil

	case len(node.Children) == 2:
		left, err := decompose(prog, node.Children[0], est, rowsPerBlock, ids, order)
		if err != nil {
			return blockRange{}, err
		}
		right, err := decompose(prog, node.Children[1], est, rowsPerBlock, ids, order)
		if err != nil {
			return blockRange{}, err
		}
		return decomposeBinary(node, left, right, rowsPerBlock, ids, order), nil

	case len(node.Children) == 1:
		child, err := decompose(prog, node.Children[0], est, rowsPerBlock, ids, order)
		if err != nil {
			return blockRange{}, err
		}
		if binding.Key == physical.KeySink {
			return decomposeSink(node, child, rowsPerBlock, ids, order), nil
		}
		return decomposeUnary(node, child, rowsPerBlock, ids, order), nil

	default:
		return blockRange{}, emerrors.New(emerrors.KindPlan, "te: node %d has unsupported arity %d", node.Id, len(node.Children))
	}
}

func decomposeSource(node *physical.Node, est cost.WorkEstimate, rowsPerBlock int64, ids *types.IDAllocator, order *[]Block) blockRange {
	estimatedRows := est.TotalRows
	if estimatedRows < rowsPerBlock {
		estimatedRows = rowsPerBlock
	}
	numBlocks := int64(math.Ceil(float64(estimatedRows) / float64(rowsPerBlock)))
	if numBlocks < 1 {
		numBlocks = 1
	}

	blocks := make([]types.BlockId, 0, numBlocks)
	for i := int64(0); i < numBlocks; i++ {
		start := i * rowsPerBlock
		end := minInt64((i+1)*rowsPerBlock, estimatedRows)
		id := ids.NextBlockId()
		*order = append(*order, Block{
			Id:        id,
			Op:        node.Id,
			Deps:      nil,
			RangeRows: &RowRange{Start: start, End: end},
		})
		blocks = append(blocks, id)
	}
	return blockRange{blocks: blocks, estimatedRows: estimatedRows}
}

func decomposeUnary(node *physical.Node, child blockRange, rowsPerBlock int64, ids *types.IDAllocator, order *[]Block) blockRange {
	blocks := make([]types.BlockId, 0, len(child.blocks))
	for i, inputBlock := range child.blocks {
		start := int64(i) * rowsPerBlock
		end := minInt64(int64(i+1)*rowsPerBlock, child.estimatedRows)
		id := ids.NextBlockId()
		*order = append(*order, Block{
			Id:        id,
			Op:        node.Id,
			Deps:      []types.BlockId{inputBlock},
			RangeRows: &RowRange{Start: start, End: end},
		})
		blocks = append(blocks, id)
	}
	return blockRange{blocks: blocks, estimatedRows: child.estimatedRows}
}

func decomposeSink(node *physical.Node, child blockRange, rowsPerBlock int64, ids *types.IDAllocator, order *[]Block) blockRange {
	blocks := make([]types.BlockId, 0, len(child.blocks))
	for i, inputBlock := range child.blocks {
		start := int64(i) * rowsPerBlock
		end := minInt64(int64(i+1)*rowsPerBlock, child.estimatedRows)
		id := ids.NextBlockId()
		*order = append(*order, Block{
			Id:        id,
			Op:        node.Id,
			Deps:      []types.BlockId{inputBlock},
			RangeRows: &RowRange{Start: start, End: end},
		})
		blocks = append(blocks, id)
	}
	return blockRange{blocks: blocks, estimatedRows: child.estimatedRows}
}

func decomposeBinary(node *physical.Node, left, right blockRange, rowsPerBlock int64, ids *types.IDAllocator, order *[]Block) blockRange {
	numBlocks := len(left.blocks)
	if len(right.blocks) > numBlocks {
		numBlocks = len(right.blocks)
	}
	estimatedRows := left.estimatedRows
	if right.estimatedRows > estimatedRows {
		estimatedRows = right.estimatedRows
	}

	blocks := make([]types.BlockId, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		start := int64(i) * rowsPerBlock
		end := minInt64(int64(i+1)*rowsPerBlock, estimatedRows)

		var deps []types.BlockId
		if i < len(left.blocks) {
			deps = append(deps, left.blocks[i])
		}
		if i < len(right.blocks) {
			deps = append(deps, right.blocks[i])
		}

		id := ids.NextBlockId()
		*order = append(*order, Block{
			Id:        id,
			Op:        node.Id,
			Deps:      deps,
			RangeRows: &RowRange{Start: start, End: end},
		})
		blocks = append(blocks, id)
	}
	return blockRange{blocks: blocks, estimatedRows: estimatedRows}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// computeMaxFrontier simulates sequential execution of order and returns
// the maximum number of simultaneously live block results (§4.H,
// invariant restated in §8): a result becomes live the moment its block
// executes and dead the instant its last dependent has executed (or
// immediately, if it has no dependents at all).
func computeMaxFrontier(order []Block) int {
	remaining := map[types.BlockId]int{}
	for _, b := range order {
		for _, d := range b.Deps {
			remaining[d]++
		}
	}

	live := map[types.BlockId]struct{}{}
	maxFrontier := 0
	for _, b := range order {
		live[b.Id] = struct{}{}
		for _, d := range b.Deps {
			remaining[d]--
			if remaining[d] <= 0 {
				delete(live, d)
			}
		}
		if remaining[b.Id] == 0 {
			// No one (yet registered) depends on b: it produced a result
			// nothing downstream will ever consume in this order, so it
			// cannot contribute to the frontier beyond this instant.
			delete(live, b.Id)
		}
		if len(live) > maxFrontier {
			maxFrontier = len(live)
		}
	}
	return maxFrontier
}

// Validate re-walks plan confirming every block's dependencies precede it
// in Order (§8's block-ordering invariant) — a SPEC_FULL supplement used
// by the engine runtime before it starts executing a plan it did not
// itself just construct (e.g. one deserialized from a prior run).
func (p *Plan) Validate() error {
	seen := map[types.BlockId]bool{}
	for _, b := range p.Order {
		for _, d := range b.Deps {
			if !seen[d] {
				return emerrors.New(emerrors.KindPlan, "te: block %d depends on %d which has not yet executed in this order", b.Id, d)
			}
		}
		seen[b.Id] = true
	}
	return nil
}
