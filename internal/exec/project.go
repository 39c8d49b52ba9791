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

// Project selects a subset of input columns by name (§4.I); stateless, so
// unlike Aggregate/the joins it never needs to implement Flusher. An
// unknown column name is a Schema error rather than a silently empty
// column.
type Project struct {
	columns []string
}

// NewProject is this kernel's Maker, registered under physical.KeyProject.
func NewProject(config json.RawMessage, deps Deps) (Operator, error) {
	var cfg struct {
		Columns []string `json:"columns"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "project: bad config: %v", err)
	}
	return &Project{columns: cfg.Columns}, nil
}

func (p *Project) Name() string { return "Project" }

func (p *Project) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: 8 * int64(len(p.columns))}
}

func (p *Project) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 1 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "project: expected exactly one input schema, got %d", len(inputSchemas))
	}
	out, err := inputSchemas[0].Project(p.columns)
	if err != nil {
		return OpPlan{}, emerrors.Wrap(err, "exec: project schema")
	}
	return OpPlan{OutputSchema: out, Footprint: p.MemoryNeed(0, 0)}, nil
}

func (p *Project) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 1 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "project: expected exactly one input, got %d", len(inputs))
	}
	batch := inputs[0]
	cols := make([]types.Column, len(p.columns))
	for i, name := range p.columns {
		col, _, ok := batch.ColumnByName(name)
		if !ok {
			return types.RowBatch{}, emerrors.New(emerrors.KindSchema, "project: unknown column %q", name)
		}
		cols[i] = col
	}
	return types.NewRowBatch(cols)
}
