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

// Map is reserved for column additions/renames via expression (§4.I); it
// is currently identity, mirroring logical.Map.
type Map struct{}

// NewMap is this kernel's Maker, registered under physical.KeyMap.
func NewMap(config json.RawMessage, deps Deps) (Operator, error) {
	return &Map{}, nil
}

func (m *Map) Name() string { return "Map" }

func (m *Map) MemoryNeed(rows, bytes int64) te.Footprint { return te.Footprint{} }

func (m *Map) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 1 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "map: expected exactly one input schema, got %d", len(inputSchemas))
	}
	return OpPlan{OutputSchema: inputSchemas[0]}, nil
}

func (m *Map) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 1 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "map: expected exactly one input, got %d", len(inputs))
	}
	return inputs[0], nil
}
