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

// Package engine implements the §4.J engine runtime: given a
// physical.PhysicalProgram and its te.Plan, it instantiates one operator
// per OpId from exec.NewRegistry, walks the block order single-threaded
// (§5), threads live block results between dependents, and returns a
// RunManifest.
package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/exec"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// Options carries everything Run needs beyond the program and plan
// themselves: the shared budget, the optional spill manager (absent
// forces every spill-capable kernel onto its in-memory-only path), the id
// allocator fresh SpillIds are drawn from, the pluggable source/sink
// openers, the structured logger, and a clock hook tests can override
// (Date.now()-style wall-clock reads are the engine's, not a dependency
// of any lower package).
type Options struct {
	Budget       *budget.Budget
	Spill        *spill.Manager
	IDs          *types.IDAllocator
	OpenSource   exec.SourceOpener
	OpenSink     exec.SinkOpener
	Logger       *zap.Logger
	NowMs        func() int64
	Registry     *exec.Registry
}

// Run drives prog through plan to completion (§4.J). On success it
// returns the completed RunManifest; on the first non-recoverable
// operator error (after exhausting retries for recoverable ones) it
// aborts the whole run and returns that error, wrapped with the
// {operator, op_id, block_id, input_rows, input_bytes} context §4.J step
// 4 and §7 call for.
func Run(prog *physical.PhysicalProgram, plan *te.Plan, opts Options) (*RunManifest, error) {
	if prog == nil || prog.Root == nil {
		return nil, emerrors.New(emerrors.KindPlan, "engine: empty physical program")
	}
	if plan == nil {
		return nil, emerrors.New(emerrors.KindPlan, "engine: nil te plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = exec.NewRegistry()
	}
	ids := opts.IDs
	if ids == nil {
		ids = types.NewIDAllocator()
	}
	nowMs := opts.NowMs
	if nowMs == nil {
		nowMs = defaultNowMs
	}

	pHash, err := planHash(prog)
	if err != nil {
		return nil, emerrors.Wrap(err, "engine: computing plan_hash")
	}
	tHash, err := teHash(plan)
	if err != nil {
		return nil, emerrors.Wrap(err, "engine: computing te_hash")
	}

	runID := uuid.New().String()
	logger.Info("run starting",
		zap.String("run_id", runID),
		zap.String("plan_hash", hashHex(pHash)),
		zap.String("te_hash", hashHex(tHash)),
		zap.Int("blocks", len(plan.Order)),
		zap.Int("max_frontier_hint", plan.MaxFrontierHint))

	r := &runner{
		prog:      prog,
		plan:      plan,
		opts:      opts,
		registry:  registry,
		ids:       ids,
		logger:    logger,
		operators: map[types.OpId]exec.Operator{},
		live:      map[types.BlockId]types.RowBatch{},
		rootOp:    prog.Root.Id,
	}
	r.computeLastBlocks()

	started := nowMs()
	err = r.execute()
	finished := nowMs()
	if err != nil {
		logger.Error("run aborted", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}

	manifest := &RunManifest{
		RunID:      runID,
		PlanHash:   hashHex(pHash),
		TEHash:     hashHex(tHash),
		StartedMs:  started,
		FinishedMs: finished,
	}
	if r.sawRootBlock && r.rootColumns > 0 {
		digest := hashHex(r.digest)
		manifest.OutputsDigest = &digest
	}
	logger.Info("run completed",
		zap.String("run_id", runID),
		zap.Int64("duration_ms", finished-started))
	return manifest, nil
}

// runner holds the mutable state of one Run call: the lazily-constructed
// operator instances (one per OpId, reused across every block scheduled
// against it) and the live-results map block dependents consume from
// (§4.J step 3's "single-consumer" removal).
type runner struct {
	prog      *physical.PhysicalProgram
	plan      *te.Plan
	opts      Options
	registry  *exec.Registry
	ids       *types.IDAllocator
	logger    *zap.Logger
	operators map[types.OpId]exec.Operator
	live      map[types.BlockId]types.RowBatch

	lastBlockForOp map[types.OpId]types.BlockId
	nodesByID      map[types.OpId]*physical.Node

	// rootOp is the program's terminal (sink) operator. Every block
	// scheduled against it is folded into digest as it is produced, since
	// a multi-block run hands the root operator its output one block at
	// a time rather than all at once.
	rootOp       types.OpId
	digest       types.Hash256
	sawRootBlock bool
	rootColumns  int
}

func (r *runner) computeLastBlocks() {
	r.lastBlockForOp = make(map[types.OpId]types.BlockId, len(r.plan.Order))
	for _, b := range r.plan.Order {
		r.lastBlockForOp[b.Op] = b.Id
	}
	r.nodesByID = make(map[types.OpId]*physical.Node, len(r.prog.PostOrder()))
	for _, n := range r.prog.PostOrder() {
		r.nodesByID[n.Id] = n
	}
}

// execute walks r.plan.Order sequentially (§4.J step 3, §5's
// single-threaded cooperative schedule). The root operator is typically
// scheduled across many blocks, not just one, so outputs_digest is
// accumulated incrementally in runBlock rather than derived from a
// single "final" batch.
func (r *runner) execute() error {
	for _, block := range r.plan.Order {
		if _, err := r.runBlock(block); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) runBlock(block te.Block) (types.RowBatch, error) {
	op, err := r.operatorFor(block.Op)
	if err != nil {
		return types.RowBatch{}, err
	}

	inputs := make([]types.RowBatch, len(block.Deps))
	var inputRows, inputBytes int64
	for i, dep := range block.Deps {
		batch, ok := r.live[dep]
		if !ok {
			return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "engine: block %d depends on %d, which has not produced a live result", block.Id, dep)
		}
		delete(r.live, dep)
		inputs[i] = batch
		inputRows += int64(batch.NumRows())
		inputBytes += estimateBytes(batch)
	}

	out, err := evalWithRetry(op, inputs, r.opts.Budget, r.logger)
	if err != nil {
		ctx := emerrors.OperatorContext(op.Name(), uint64(block.Op), uint64(block.Id), inputRows, inputBytes)
		return types.RowBatch{}, emerrors.Wrap(err, ctx)
	}

	if r.lastBlockForOp[block.Op] == block.Id {
		if flusher, ok := op.(exec.Flusher); ok {
			flushed, ferr := flusher.Flush(r.opts.Budget)
			if ferr != nil {
				ctx := emerrors.OperatorContext(op.Name(), uint64(block.Op), uint64(block.Id), inputRows, inputBytes)
				return types.RowBatch{}, emerrors.Wrap(ferr, ctx)
			}
			out = flushed
		}
		if closer, ok := op.(exec.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				ctx := emerrors.OperatorContext(op.Name(), uint64(block.Op), uint64(block.Id), inputRows, inputBytes)
				return types.RowBatch{}, emerrors.Wrap(cerr, ctx)
			}
		}
	}

	if block.Op == r.rootOp {
		r.sawRootBlock = true
		r.rootColumns = len(out.Columns)
		r.digest = types.CombineHash(r.digest, outputsDigest(out))
	}

	r.live[block.Id] = out
	r.logger.Debug("block executed",
		zap.String("operator", op.Name()),
		zap.Uint64("op_id", uint64(block.Op)),
		zap.Uint64("block_id", uint64(block.Id)),
		zap.Int("out_rows", out.NumRows()))
	return out, nil
}

// operatorFor lazily constructs (once) and caches the Operator instance
// bound to id, calling its Plan with the schemas of its physical
// children's logical plans — every stateful kernel's Plan call is where
// it captures the schema state its Flush later depends on, so this must
// happen exactly once before the first EvalBlock call.
func (r *runner) operatorFor(id types.OpId) (exec.Operator, error) {
	if op, ok := r.operators[id]; ok {
		return op, nil
	}
	node, ok := r.nodesByID[id]
	if !ok {
		return nil, emerrors.New(emerrors.KindPlan, "engine: no physical node for op %d", id)
	}
	binding, ok := r.prog.Bindings[id]
	if !ok {
		return nil, emerrors.New(emerrors.KindPlan, "engine: no binding for op %d", id)
	}

	deps := exec.Deps{
		Spill:        r.opts.Spill,
		IDs:          r.ids,
		RowsPerBlock: r.plan.BlockSize.RowsPerBlock,
		OpenSource:   r.opts.OpenSource,
		OpenSink:     r.opts.OpenSink,
	}
	op, err := r.registry.Make(binding.Key, binding.Config, deps)
	if err != nil {
		return nil, emerrors.Wrap(err, emerrors.OperatorContext(binding.Key, uint64(id), 0, 0, 0))
	}

	inputSchemas := make([]types.Schema, len(node.Children))
	for i, c := range node.Children {
		inputSchemas[i] = c.Logical.Schema()
	}
	if _, err := op.Plan(inputSchemas); err != nil {
		return nil, emerrors.Wrap(err, emerrors.OperatorContext(op.Name(), uint64(id), 0, 0, 0))
	}

	r.operators[id] = op
	return op, nil
}

// estimateBytes is a coarse per-row width estimate used only to populate
// the {input_rows, input_bytes} error-context tuple (§4.J step 4); it is
// never consulted for a budget or correctness decision.
func estimateBytes(batch types.RowBatch) int64 {
	return int64(batch.NumRows() * len(batch.Columns) * 32)
}
