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

// Package exec implements the operator kernels of §4.I: the nine
// physical.Key* bindings (source, filter, project, map, aggregate,
// sort_external, join_hash, join_merge, sink) become concrete Operator
// values the engine runtime (§4.J) drives one TE block at a time.
//
// Each kernel is constructed once per OpId, given its input schemas
// through Plan, and then invoked repeatedly through EvalBlock as the
// engine walks the block order — any per-operator state (spill handles,
// partial aggregates, buffered rows) lives on the Operator value itself
// and is torn down on Flush/Close of its last scheduled block.
package exec

import (
	"encoding/json"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// OpPlan is the schema/footprint pair an operator reports once its input
// schemas are known (§4.I's `plan(input_schemas) -> OpPlan`).
type OpPlan struct {
	OutputSchema types.Schema
	Footprint    te.Footprint
}

// Operator is the kernel contract every physical binding resolves to.
// EvalBlock is called once per TE block scheduled against this operator's
// OpId, in the order te.Plan.Order lists them; a kernel that must see every
// input block before it can emit a correct result (Aggregate, the two join
// kernels, ExternalSort) accumulates state across calls and additionally
// implements Flusher.
type Operator interface {
	// Name identifies the kernel for logging and error context.
	Name() string
	// MemoryNeed reports this operator's per-row/overhead footprint for a
	// given input size, mirroring the Rust trait's memory_need(rows, bytes).
	MemoryNeed(rows, bytes int64) te.Footprint
	// Plan validates inputSchemas and returns this operator's output
	// schema and footprint.
	Plan(inputSchemas []types.Schema) (OpPlan, error)
	// EvalBlock processes one block's worth of input batches (one per
	// child) and returns this operator's output for that block. 1-to-1
	// kernels (Filter, Project, Map, Scan, Sink) return a real result every
	// call; accumulating kernels return an empty batch until Flush.
	EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error)
}

// Flusher is implemented by operators whose correct output depends on
// every input block they have been given, not just the most recent one
// (§4.I's aggregate/join/sort kernels). The engine runtime calls Flush
// exactly once per operator instance, after the last block TE assigned to
// it has run through EvalBlock, and threads the result onward as that
// operator's final contribution.
type Flusher interface {
	Flush(b *budget.Budget) (types.RowBatch, error)
}

// Closer is implemented by operators holding an external resource (Scan's
// SourceReader, Sink's SinkWriter) that must be released once the engine
// is done driving them, independent of whether EvalBlock itself already
// observed end-of-stream.
type Closer interface {
	Close() error
}

// Deps carries the shared, engine-owned resources an operator's Maker may
// need: the spill manager for spill-capable kernels, an id allocator for
// fresh SpillIds, the TE-chosen block size (so Scan knows how many rows to
// pull per call), and the pluggable source/sink openers (defaulting to the
// in-tree CSV reference implementation when nil).
type Deps struct {
	Spill        *spill.Manager
	IDs          *types.IDAllocator
	RowsPerBlock int64
	OpenSource   SourceOpener
	OpenSink     SinkOpener
}

// Maker constructs an Operator instance from a binding's config blob.
type Maker func(config json.RawMessage, deps Deps) (Operator, error)
