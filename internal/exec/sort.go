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
	"container/heap"
	"encoding/json"
	"sort"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// defaultSortRunBudgetBytes bounds how large an in-memory run grows before
// it is sorted and spilled as its own segment (§4.I: "accumulating rows up
// to a per-run memory budget").
const defaultSortRunBudgetBytes = 4 << 20

type sortKeySpec struct {
	Column string
	Desc   bool
}

// ExternalSort produces sorted runs by accumulating rows up to a memory
// budget, sorting each run by the key tuple (nulls-first, per
// types.Scalar.Compare), and spilling it as a segment. Flush performs the
// final k-way merge over every spilled run plus any run still resident, via
// a container/heap min-heap keyed on the same tuple — stable by run index
// then row index, matching §4.I.
type ExternalSort struct {
	keys []sortKeySpec

	spillMgr    *spill.Manager
	spillID     types.SpillId
	runIndex    uint64
	budgetBytes int64

	schema  types.Schema
	current types.RowBatch
	runs    []spill.SegmentMeta
}

// NewExternalSort is this kernel's Maker, registered under physical.KeySortExternal.
func NewExternalSort(config json.RawMessage, deps Deps) (Operator, error) {
	var cfg struct {
		Keys []struct {
			Column string `json:"column"`
			Desc   bool   `json:"desc"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "sort_external: bad config: %v", err)
	}
	if len(cfg.Keys) == 0 {
		return nil, emerrors.New(emerrors.KindConfig, "sort_external: at least one sort key is required")
	}
	keys := make([]sortKeySpec, len(cfg.Keys))
	for i, k := range cfg.Keys {
		keys[i] = sortKeySpec{Column: k.Column, Desc: k.Desc}
	}
	var spillID types.SpillId
	if deps.Spill != nil && deps.IDs != nil {
		spillID = deps.IDs.NextSpillId()
	}
	return &ExternalSort{
		keys:        keys,
		spillMgr:    deps.Spill,
		spillID:     spillID,
		budgetBytes: defaultSortRunBudgetBytes,
	}, nil
}

func (s *ExternalSort) Name() string { return "ExternalSort" }

func (s *ExternalSort) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: 64, OverheadBytes: 64 << 10}
}

func (s *ExternalSort) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 1 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "sort_external: expected exactly one input schema, got %d", len(inputSchemas))
	}
	s.schema = inputSchemas[0]
	return OpPlan{OutputSchema: s.schema, Footprint: s.MemoryNeed(0, 0)}, nil
}

func (s *ExternalSort) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 1 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "sort_external: expected exactly one input, got %d", len(inputs))
	}
	if !inputs[0].IsEmpty() {
		merged, err := types.Concat(s.current, inputs[0])
		if err != nil {
			return types.RowBatch{}, err
		}
		s.current = merged
	}
	if s.spillMgr != nil && estimateBatchBytes(s.current) > s.budgetBytes {
		if err := s.spillRun(); err != nil {
			return types.RowBatch{}, err
		}
	}
	return emptyBatch(s.schema), nil
}

func (s *ExternalSort) spillRun() error {
	if s.current.NumRows() == 0 {
		return nil
	}
	sorted, err := sortRowBatch(s.current, s.keys)
	if err != nil {
		return err
	}
	meta, err := s.spillMgr.WriteBatch(sorted, s.spillID, s.runIndex)
	if err != nil {
		return emerrors.Wrap(err, emerrors.OperatorContext("ExternalSort", 0, 0, int64(sorted.NumRows()), 0))
	}
	s.runIndex++
	s.runs = append(s.runs, meta)
	s.current = types.RowBatch{}
	return nil
}

// sortRun is one already-sorted contiguous run participating in the
// Flush-time k-way merge, either read back from a spilled segment or the
// final in-memory tail.
type sortRun struct {
	batch types.RowBatch
	keys  []types.Column // the run's columns named in s.keys, in order
}

func (s *ExternalSort) Flush(b *budget.Budget) (types.RowBatch, error) {
	var runs []sortRun
	for _, meta := range s.runs {
		batch, err := s.spillMgr.ReadBatch(meta, b)
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("ExternalSort", 0, 0, 0, 0))
		}
		runs = append(runs, sortRun{batch: batch, keys: keyColumns(batch, s.keys)})
	}
	if s.current.NumRows() > 0 {
		sorted, err := sortRowBatch(s.current, s.keys)
		if err != nil {
			return types.RowBatch{}, err
		}
		runs = append(runs, sortRun{batch: sorted, keys: keyColumns(sorted, s.keys)})
	}
	if len(runs) == 0 {
		return emptyBatch(s.schema), nil
	}

	h := &sortHeap{keys: s.keys}
	for ri, r := range runs {
		if r.batch.NumRows() > 0 {
			heap.Push(h, sortHeapItem{runIdx: ri, rowIdx: 0, cols: r.keys})
		}
	}

	out := make([]types.Column, len(s.schema.Fields))
	for i, f := range s.schema.Fields {
		out[i] = types.Column{Name: f.Name}
	}
	for h.Len() > 0 {
		item := heap.Pop(h).(sortHeapItem)
		r := runs[item.runIdx]
		for i := range out {
			out[i].Values = append(out[i].Values, r.batch.Columns[i].Values[item.rowIdx])
		}
		next := item.rowIdx + 1
		if next < r.batch.NumRows() {
			heap.Push(h, sortHeapItem{runIdx: item.runIdx, rowIdx: next, cols: r.keys})
		}
	}
	return types.NewRowBatch(out)
}

func keyColumns(batch types.RowBatch, keys []sortKeySpec) []types.Column {
	cols := make([]types.Column, len(keys))
	for i, k := range keys {
		col, _, _ := batch.ColumnByName(k.Column)
		cols[i] = col
	}
	return cols
}

// sortRowBatch returns a new batch with rows reordered by the key tuple,
// nulls-first per types.Scalar.Compare, stable with respect to input order.
func sortRowBatch(batch types.RowBatch, keys []sortKeySpec) (types.RowBatch, error) {
	cols := make([]types.Column, len(keys))
	for i, k := range keys {
		col, _, ok := batch.ColumnByName(k.Column)
		if !ok {
			return types.RowBatch{}, emerrors.New(emerrors.KindSchema, "sort_external: unknown sort column %q", k.Column)
		}
		cols[i] = col
	}
	idx := make([]int, batch.NumRows())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := idx[a], idx[b]
		for i, k := range keys {
			c := cols[i].Values[ra].Compare(cols[i].Values[rb])
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return batch.SelectRows(idx), nil
}

// sortHeapItem is one candidate row in the k-way merge: the next unconsumed
// row of a given run.
type sortHeapItem struct {
	runIdx, rowIdx int
	cols           []types.Column // the owning run's key columns
}

type sortHeap struct {
	items []sortHeapItem
	keys  []sortKeySpec
}

func (h *sortHeap) Len() int { return len(h.items) }

func (h *sortHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	for k, spec := range h.keys {
		c := a.cols[k].Values[a.rowIdx].Compare(b.cols[k].Values[b.rowIdx])
		if spec.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	if a.runIdx != b.runIdx {
		return a.runIdx < b.runIdx
	}
	return a.rowIdx < b.rowIdx
}

func (h *sortHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *sortHeap) Push(x any) { h.items = append(h.items, x.(sortHeapItem)) }

func (h *sortHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
