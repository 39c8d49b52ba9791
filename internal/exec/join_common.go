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

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/types"
)

// joinKind mirrors logical.JoinType; the two join kernels parse it
// independently from their config blob rather than importing the logical
// package's struct, since they only ever need the four-way tag, not a
// plan node.
type joinKind uint8

const (
	joinInner joinKind = iota
	joinLeft
	joinRight
	joinFull
)

func parseJoinKind(s string) (joinKind, error) {
	switch s {
	case "inner":
		return joinInner, nil
	case "left":
		return joinLeft, nil
	case "right":
		return joinRight, nil
	case "full":
		return joinFull, nil
	default:
		return 0, emerrors.New(emerrors.KindConfig, "join: unknown type %q", s)
	}
}

// joinKeyPair is one (left column, right column) equality pair.
type joinKeyPair struct {
	Left, Right string
}

type joinConfigJSON struct {
	Type string `json:"type"`
	On   []struct {
		Left  string `json:"left"`
		Right string `json:"right"`
	} `json:"on"`
}

func parseJoinConfig(config json.RawMessage) (joinKind, []joinKeyPair, error) {
	var cfg joinConfigJSON
	if err := json.Unmarshal(config, &cfg); err != nil {
		return 0, nil, emerrors.New(emerrors.KindConfig, "join: bad config: %v", err)
	}
	kind, err := parseJoinKind(cfg.Type)
	if err != nil {
		return 0, nil, err
	}
	on := make([]joinKeyPair, len(cfg.On))
	for i, k := range cfg.On {
		on[i] = joinKeyPair{Left: k.Left, Right: k.Right}
	}
	return kind, on, nil
}

// joinOutputSchema renames right-side columns colliding with a left-side
// name by appending "_right" and marks the appropriate side nullable for
// outer joins — the same rule logical.Join.Schema applies, duplicated here
// because the kernels work from raw types.Schema values, not a *logical.Join.
func joinOutputSchema(left, right types.Schema, kind joinKind) types.Schema {
	names := map[string]bool{}
	for _, f := range left.Fields {
		names[f.Name] = true
	}
	fields := append([]types.Field(nil), left.Fields...)
	for _, f := range right.Fields {
		name := f.Name
		if names[name] {
			name += "_right"
		}
		f.Name = name
		if kind == joinLeft || kind == joinFull {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	if kind == joinRight || kind == joinFull {
		for i := range fields[:len(left.Fields)] {
			fields[i].Nullable = true
		}
	}
	return types.Schema{Fields: fields}
}

// emitJoinRows builds the final output batch from aligned (leftRow,
// rightRow) index pairs, where a -1 sentinel on either side means "fill
// with Null" (the unmatched side of an outer join). Shared by HashJoin and
// MergeJoin so both kernels build identical-shaped output.
func emitJoinRows(left, right types.RowBatch, leftSchema, rightSchema types.Schema, outputSchema types.Schema, leftIdxs, rightIdxs []int) (types.RowBatch, error) {
	cols := make([]types.Column, len(outputSchema.Fields))
	for i, f := range outputSchema.Fields {
		cols[i] = types.Column{Name: f.Name}
	}
	leftCount := len(leftSchema.Fields)
	for k := range leftIdxs {
		lrow, rrow := leftIdxs[k], rightIdxs[k]
		for i := 0; i < leftCount; i++ {
			if lrow < 0 {
				cols[i].Values = append(cols[i].Values, types.Null())
			} else {
				cols[i].Values = append(cols[i].Values, left.Columns[i].Values[lrow])
			}
		}
		for i := 0; i < len(rightSchema.Fields); i++ {
			if rrow < 0 {
				cols[leftCount+i].Values = append(cols[leftCount+i].Values, types.Null())
			} else {
				cols[leftCount+i].Values = append(cols[leftCount+i].Values, right.Columns[i].Values[rrow])
			}
		}
	}
	return types.NewRowBatch(cols)
}
