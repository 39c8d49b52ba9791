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
	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

// Filter drops rows for which its predicate evaluates false; a predicate
// evaluation error propagates rather than silently dropping the row.
type Filter struct {
	predicateSrc string
	expr         exprlang.Expr
}

// NewFilter is this kernel's Maker, registered under physical.KeyFilter.
func NewFilter(config json.RawMessage, deps Deps) (Operator, error) {
	var cfg struct {
		Predicate string `json:"predicate"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "filter: bad config: %v", err)
	}
	expr, err := exprlang.Parse(cfg.Predicate)
	if err != nil {
		return nil, emerrors.Wrap(err, "exec: filter predicate")
	}
	return &Filter{predicateSrc: cfg.Predicate, expr: expr}, nil
}

func (f *Filter) Name() string { return "Filter" }

func (f *Filter) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: 8}
}

func (f *Filter) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	if len(inputSchemas) != 1 {
		return OpPlan{}, emerrors.New(emerrors.KindPlan, "filter: expected exactly one input schema, got %d", len(inputSchemas))
	}
	return OpPlan{OutputSchema: inputSchemas[0], Footprint: f.MemoryNeed(0, 0)}, nil
}

func (f *Filter) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 1 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "filter: expected exactly one input, got %d", len(inputs))
	}
	batch := inputs[0]
	keep := make([]int, 0, batch.NumRows())
	for row := 0; row < batch.NumRows(); row++ {
		v, err := f.expr.Eval(batch, row)
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("Filter", 0, 0, int64(batch.NumRows()), 0))
		}
		if v.AsBool() {
			keep = append(keep, row)
		}
	}
	return batch.SelectRows(keep), nil
}
