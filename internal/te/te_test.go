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

package te_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/cost"
	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

func buildLinearPlan(t *testing.T, estimatedRows int64) *physical.PhysicalProgram {
	t.Helper()
	expr, err := exprlang.Parse("age > 25")
	require.NoError(t, err)
	scan := &logical.Scan{
		Source:        "people.csv",
		EstimatedRows: estimatedRows,
		SchemaValue: types.Schema{Fields: []types.Field{
			{Name: "id", DataType: types.TypeI64},
			{Name: "age", DataType: types.TypeI64},
		}},
	}
	filter := &logical.Filter{Input: scan, Expr: expr, ExprSrc: "age > 25"}
	sink := &logical.Sink{Input: filter, Destination: "out.csv", Format: "csv"}

	prog, err := physical.Lower(sink, types.NewIDAllocator())
	require.NoError(t, err)
	return prog
}

func fixedFootprint(bytesPerRow, overhead int64) te.FootprintFunc {
	return func(_ string, _ json.RawMessage) te.Footprint {
		return te.Footprint{BytesPerRow: bytesPerRow, OverheadBytes: overhead}
	}
}

func TestPlanTEProducesTopologicallyValidOrder(t *testing.T) {
	prog := buildLinearPlan(t, 1000)
	est := cost.Estimate(prog.Root.Logical)
	plan, err := te.PlanTE(prog, est, 1<<20, nil, types.NewIDAllocator())
	require.NoError(t, err)
	require.NoError(t, plan.Validate())
	require.NotEmpty(t, plan.Order)
}

func TestPlanTESourceBlockCountMatchesRowsPerBlock(t *testing.T) {
	prog := buildLinearPlan(t, 1000)
	est := cost.Estimate(prog.Root.Logical)

	// 16 bytes/row across 3 operators (source/filter/sink share the same
	// footprint function here): total bytes/row = 48, budget = 0.5*9600 =
	// 4800, so rows_per_block = 100, giving ceil(1000/100) = 10 source
	// blocks.
	plan, err := te.PlanTE(prog, est, 9600, fixedFootprint(16, 0), types.NewIDAllocator())
	require.NoError(t, err)
	require.EqualValues(t, 100, plan.BlockSize.RowsPerBlock)

	sourceBlocks := 0
	for _, b := range plan.Order {
		if len(b.Deps) == 0 {
			sourceBlocks++
		}
	}
	require.EqualValues(t, 10, sourceBlocks)
}

func TestPlanTELinearPipelineHasFrontierOne(t *testing.T) {
	prog := buildLinearPlan(t, 100)
	est := cost.Estimate(prog.Root.Logical)
	plan, err := te.PlanTE(prog, est, 1<<20, fixedFootprint(8, 0), types.NewIDAllocator())
	require.NoError(t, err)
	// A strictly linear scan -> filter -> sink pipeline never needs more
	// than one live result at a time: each stage consumes its input block
	// immediately.
	require.Equal(t, 1, plan.MaxFrontierHint)
}

func TestPlanTEJoinRaisesFrontierAboveOne(t *testing.T) {
	left := &logical.Scan{EstimatedRows: 100, SchemaValue: types.Schema{Fields: []types.Field{{Name: "id", DataType: types.TypeI64}}}}
	right := &logical.Scan{EstimatedRows: 100, SchemaValue: types.Schema{Fields: []types.Field{{Name: "id", DataType: types.TypeI64}}}}
	join := &logical.Join{Left: left, Right: right, On: []logical.JoinKey{{Left: "id", Right: "id"}}, Type: logical.JoinInner}
	sink := &logical.Sink{Input: join, Destination: "out.csv", Format: "csv"}

	prog, err := physical.Lower(sink, types.NewIDAllocator())
	require.NoError(t, err)
	est := cost.Estimate(sink)

	plan, err := te.PlanTE(prog, est, 1<<20, fixedFootprint(8, 0), types.NewIDAllocator())
	require.NoError(t, err)
	require.GreaterOrEqual(t, plan.MaxFrontierHint, 2)
}

func TestValidateRejectsOutOfOrderDependency(t *testing.T) {
	plan := &te.Plan{Order: []te.Block{
		{Id: 1, Deps: []types.BlockId{2}},
		{Id: 2},
	}}
	require.Error(t, plan.Validate())
}
