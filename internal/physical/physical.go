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

// Package physical lowers a logical.Plan into a PhysicalProgram: every
// node gets an OpId assigned in post-order and an operator-key/config
// binding the engine's registry (§4.J) resolves against.
package physical

import (
	"encoding/json"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/types"
)

// Default operator keys (§4.G), resolved against the engine's registry.
const (
	KeySource      = "source"
	KeyFilter      = "filter"
	KeyProject     = "project"
	KeyMap         = "map"
	KeyAggregate   = "aggregate"
	KeySortExternal = "sort_external"
	KeyJoinHash    = "join_hash"
	KeyJoinMerge   = "join_merge"
	KeySink        = "sink"
)

// Node is one physical plan node: a logical.Plan annotated with its
// assigned OpId and lowered children.
type Node struct {
	Id       types.OpId
	Logical  logical.Plan
	Children []*Node
}

// Binding is the operator-key + config blob the engine instantiates an
// operator instance from (§4.G).
type Binding struct {
	Key    string
	Config json.RawMessage
}

// PhysicalProgram is (PhysicalPlan, bindings: OpId -> {key, config})
// per §4.G.
type PhysicalProgram struct {
	Root     *Node
	Bindings map[types.OpId]Binding
}

// Lower assigns OpIds in post-order and builds the key/config bindings
// for every node of plan (§4.G). plan must already satisfy
// logical.Validate.
func Lower(plan logical.Plan, ids *types.IDAllocator) (*PhysicalProgram, error) {
	bindings := map[types.OpId]Binding{}
	root, err := lowerNode(plan, ids, bindings)
	if err != nil {
		return nil, err
	}
	return &PhysicalProgram{Root: root, Bindings: bindings}, nil
}

func lowerNode(p logical.Plan, ids *types.IDAllocator, bindings map[types.OpId]Binding) (*Node, error) {
	children := make([]*Node, 0, len(p.Children()))
	for _, child := range p.Children() {
		lowered, err := lowerNode(child, ids, bindings)
		if err != nil {
			return nil, err
		}
		children = append(children, lowered)
	}
	// Post-order: this node's id is assigned only after every child's id.
	id := ids.NextOpId()
	binding, err := bindingFor(p)
	if err != nil {
		return nil, err
	}
	bindings[id] = binding
	return &Node{Id: id, Logical: p, Children: children}, nil
}

// configFilter/... carry the operator-specific fields for each node kind
// (§4.G): predicate string, column list, group-by keys, join keys, file
// URI and format.
type configScan struct {
	Source string       `json:"source"`
	Fields []FieldJSON  `json:"fields"`
}

// FieldJSON is the wire-friendly form of types.Field: DataType rendered as
// its token string (§6) rather than the bare numeric Kind, so a Scan/Sink
// binding's config blob is legible the way the spec's own §4.G example is.
type FieldJSON struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

func fieldsToJSON(schema types.Schema) []FieldJSON {
	out := make([]FieldJSON, len(schema.Fields))
	for i, f := range schema.Fields {
		out[i] = FieldJSON{Name: f.Name, DataType: f.DataType.String(), Nullable: f.Nullable}
	}
	return out
}

// SchemaFromJSON reconstructs a types.Schema from the fields carried in a
// Scan/Sink binding's config; internal/exec uses this to build its
// SourceReader/SinkWriter without re-deriving the schema from the logical
// plan.
func SchemaFromJSON(fields []FieldJSON) types.Schema {
	out := types.Schema{Fields: make([]types.Field, len(fields))}
	for i, f := range fields {
		out.Fields[i] = types.Field{Name: f.Name, DataType: types.DataTypeFromToken(f.DataType), Nullable: f.Nullable}
	}
	return out
}

type configFilter struct {
	Predicate string `json:"predicate"`
}

type configProject struct {
	Columns []string `json:"columns"`
}

type configAggregate struct {
	GroupBy []string           `json:"group_by"`
	Aggs    []configAggSpec    `json:"aggs"`
}

type configAggSpec struct {
	Func   string `json:"func"`
	Column string `json:"column"`
	As     string `json:"as"`
}

type configJoin struct {
	Type string          `json:"type"`
	On   []configJoinKey `json:"on"`
}

type configJoinKey struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type configSink struct {
	Destination string      `json:"destination"`
	Format      string      `json:"format"`
	Fields      []FieldJSON `json:"fields"`
}

func bindingFor(p logical.Plan) (Binding, error) {
	switch node := p.(type) {
	case *logical.Scan:
		return marshalBinding(KeySource, configScan{Source: node.Source, Fields: fieldsToJSON(node.SchemaValue)})
	case *logical.Filter:
		return marshalBinding(KeyFilter, configFilter{Predicate: node.ExprSrc})
	case *logical.Project:
		return marshalBinding(KeyProject, configProject{Columns: node.Columns})
	case *logical.Map:
		return marshalBinding(KeyMap, struct{}{})
	case *logical.Aggregate:
		aggs := make([]configAggSpec, len(node.Aggs))
		for i, a := range node.Aggs {
			aggs[i] = configAggSpec{Func: a.Func.String(), Column: a.Column, As: a.As}
		}
		return marshalBinding(KeyAggregate, configAggregate{GroupBy: node.GroupBy, Aggs: aggs})
	case *logical.Join:
		on := make([]configJoinKey, len(node.On))
		for i, k := range node.On {
			on[i] = configJoinKey{Left: k.Left, Right: k.Right}
		}
		// Default to the hash-join key; MergeJoin requires sorted inputs
		// and is selected explicitly (see AsMergeJoin).
		return marshalBinding(KeyJoinHash, configJoin{Type: node.Type.String(), On: on})
	case *logical.Sink:
		return marshalBinding(KeySink, configSink{Destination: node.Destination, Format: node.Format, Fields: fieldsToJSON(node.Schema())})
	default:
		return Binding{}, emerrors.New(emerrors.KindPlan, "physical lowering: unknown logical plan node")
	}
}

func marshalBinding(key string, cfg interface{}) (Binding, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Binding{}, emerrors.New(emerrors.KindPlan, "marshal operator config for key %q: %v", key, err)
	}
	return Binding{Key: key, Config: raw}, nil
}

// AsMergeJoin rebinds the join at id to use the sort-merge kernel instead
// of the Grace hash kernel, for callers (the explain/optimizer surface)
// that have already established both join inputs arrive pre-sorted on
// the join keys.
func (prog *PhysicalProgram) AsMergeJoin(id types.OpId) error {
	binding, ok := prog.Bindings[id]
	if !ok || binding.Key != KeyJoinHash {
		return emerrors.New(emerrors.KindPlan, "op %d is not a join_hash binding", id)
	}
	prog.Bindings[id] = Binding{Key: KeyJoinMerge, Config: binding.Config}
	return nil
}

// PostOrder returns every node of prog's tree in the same post-order used
// to assign OpIds, so callers can walk bindings in id order.
func (prog *PhysicalProgram) PostOrder() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			walk(c)
		}
		out = append(out, n)
	}
	walk(prog.Root)
	return out
}
