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

package engine

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// RunManifest is the engine's terminal output (§4.J, §6): the two
// determinism hashes, wall-clock bounds, and an optional content digest
// over the final sink output. Hashes are rendered as lowercase hex so the
// manifest round-trips through JSON the way the CLI's `run` command
// prints it.
type RunManifest struct {
	RunID         string  `json:"run_id"`
	PlanHash      string  `json:"plan_hash"`
	TEHash        string  `json:"te_hash"`
	StartedMs     int64   `json:"started_ms"`
	FinishedMs    int64   `json:"finished_ms"`
	OutputsDigest *string `json:"outputs_digest,omitempty"`
}

func hashHex(h types.Hash256) string { return hex.EncodeToString(h[:]) }

// planHash computes `xor(hash(plan), hash(bindings))` (§4.J step 1): the
// plan tree's shape is hashed independently of the operator-key/config
// bindings so that re-binding a join from join_hash to join_merge (see
// physical.PhysicalProgram.AsMergeJoin) changes plan_hash without needing
// a second tree walk.
func planHash(prog *physical.PhysicalProgram) (types.Hash256, error) {
	treeHash, err := hashNodeTree(prog.Root)
	if err != nil {
		return types.Hash256{}, err
	}
	bindingsHash, err := hashBindings(prog.Bindings)
	if err != nil {
		return types.Hash256{}, err
	}
	return types.CombineHash(treeHash, bindingsHash), nil
}

// mirrorNode is the canonical, serializable shadow of physical.Node used
// only to produce deterministic bytes to hash — physical.Node itself
// embeds a logical.Plan interface value, which encoding/json cannot walk
// generically.
type mirrorNode struct {
	Id       types.OpId   `json:"id"`
	Children []mirrorNode `json:"children"`
}

func hashNodeTree(root *physical.Node) (types.Hash256, error) {
	mirror := toMirror(root)
	raw, err := json.Marshal(mirror)
	if err != nil {
		return types.Hash256{}, err
	}
	return types.HashBytes(raw), nil
}

func toMirror(n *physical.Node) mirrorNode {
	children := make([]mirrorNode, len(n.Children))
	for i, c := range n.Children {
		children[i] = toMirror(c)
	}
	return mirrorNode{Id: n.Id, Children: children}
}

type mirrorBinding struct {
	Id     types.OpId      `json:"id"`
	Key    string          `json:"key"`
	Config json.RawMessage `json:"config"`
}

func hashBindings(bindings map[types.OpId]physical.Binding) (types.Hash256, error) {
	ids := make([]types.OpId, 0, len(bindings))
	for id := range bindings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	mirrors := make([]mirrorBinding, len(ids))
	for i, id := range ids {
		b := bindings[id]
		mirrors[i] = mirrorBinding{Id: id, Key: b.Key, Config: b.Config}
	}
	raw, err := json.Marshal(mirrors)
	if err != nil {
		return types.Hash256{}, err
	}
	return types.HashBytes(raw), nil
}

// teHash computes `hash(order)` (§4.J step 1): te.Block's fields are all
// exported and already in their canonical schedule order, so a direct
// JSON marshal of the slice is a stable, order-sensitive serialization.
func teHash(plan *te.Plan) (types.Hash256, error) {
	raw, err := json.Marshal(plan.Order)
	if err != nil {
		return types.Hash256{}, err
	}
	return types.HashBytes(raw), nil
}

// outputsDigest folds every row of a single batch into a Hash256 via
// HashTuple + CombineHash. The root operator's output is typically spread
// across many blocks rather than delivered as one, so the caller invokes
// this once per root-operator block and XOR-combines the results; XOR
// being commutative and associative (§8: "Hash is a homomorphism under
// XOR") makes the combined digest independent of block order.
func outputsDigest(batch types.RowBatch) types.Hash256 {
	var out types.Hash256
	for row := 0; row < batch.NumRows(); row++ {
		vals := make([]types.Scalar, len(batch.Columns))
		for i, c := range batch.Columns {
			vals[i] = c.Values[row]
		}
		out = types.CombineHash(out, types.HashTuple(vals))
	}
	return out
}
