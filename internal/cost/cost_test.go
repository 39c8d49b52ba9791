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

package cost_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/cost"
	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/types"
)

func scanWithStats() *logical.Scan {
	return &logical.Scan{
		Source:        "customers.csv",
		EstimatedRows: 1000,
		SchemaValue: types.Schema{
			Fields: []types.Field{
				{Name: "id", DataType: types.TypeI64},
				{Name: "age", DataType: types.TypeI64},
			},
			Stats: types.SchemaStats{
				"id":  {DistinctCount: 1000, Min: types.I64(1), Max: types.I64(1000), TotalCount: 1000},
				"age": {DistinctCount: 80, Min: types.I64(0), Max: types.I64(100), TotalCount: 1000},
			},
		},
	}
}

func TestEqualitySelectivityUsesDistinctCount(t *testing.T) {
	expr, err := exprlang.Parse("id == 5")
	require.NoError(t, err)
	plan := &logical.Filter{Input: scanWithStats(), Expr: expr, ExprSrc: "id == 5"}

	est := cost.Estimate(plan)
	require.EqualValues(t, 1, est.TotalRows) // 1000 * (1/1000) == 1
}

func TestRangeSelectivityUsesMinMaxOverlap(t *testing.T) {
	expr, err := exprlang.Parse("age > 50")
	require.NoError(t, err)
	plan := &logical.Filter{Input: scanWithStats(), Expr: expr, ExprSrc: "age > 50"}

	est := cost.Estimate(plan)
	// age in [0,100], age > 50 keeps half the range.
	require.InDelta(t, 500, float64(est.TotalRows), 1)
}

func TestUnrecognizedPredicateFallsBackToDefaultSelectivity(t *testing.T) {
	expr, err := exprlang.Parse("age + 1 > 10")
	require.NoError(t, err)
	plan := &logical.Filter{Input: scanWithStats(), Expr: expr, ExprSrc: "age + 1 > 10"}

	est := cost.Estimate(plan)
	require.EqualValues(t, 500, est.TotalRows) // 1000 * 0.5
	require.Less(t, est.Confidence, 1.0)
}

func TestJoinCardinalityUsesMaxDistinct(t *testing.T) {
	left := &logical.Scan{
		EstimatedRows: 100,
		SchemaValue: types.Schema{
			Fields: []types.Field{{Name: "id", DataType: types.TypeI64}},
			Stats:  types.SchemaStats{"id": {DistinctCount: 100, TotalCount: 100}},
		},
	}
	right := &logical.Scan{
		EstimatedRows: 200,
		SchemaValue: types.Schema{
			Fields: []types.Field{{Name: "id", DataType: types.TypeI64}},
			Stats:  types.SchemaStats{"id": {DistinctCount: 50, TotalCount: 200}},
		},
	}
	join := &logical.Join{Left: left, Right: right, On: []logical.JoinKey{{Left: "id", Right: "id"}}, Type: logical.JoinInner}

	est := cost.Estimate(join)
	// 100 * 200 / max(100, 50) == 200
	require.EqualValues(t, 200, est.TotalRows)
	require.GreaterOrEqual(t, est.MaxFanIn, 2)
}

func TestJoinFallsBackToMinRowsWithoutStats(t *testing.T) {
	left := &logical.Scan{EstimatedRows: 30}
	right := &logical.Scan{EstimatedRows: 500}
	join := &logical.Join{Left: left, Right: right, Type: logical.JoinInner}

	est := cost.Estimate(join)
	require.EqualValues(t, 30, est.TotalRows)
}

func TestAggregateGroupCountFromDistinctProduct(t *testing.T) {
	scan := &logical.Scan{
		EstimatedRows: 1000,
		SchemaValue: types.Schema{
			Fields: []types.Field{{Name: "region", DataType: types.TypeUtf8}},
			Stats:  types.SchemaStats{"region": {DistinctCount: 4, TotalCount: 1000}},
		},
	}
	agg := &logical.Aggregate{
		Input:   scan,
		GroupBy: []string{"region"},
		Aggs:    []logical.AggSpec{{Func: logical.AggCount, As: "n"}},
	}
	est := cost.Estimate(agg)
	require.EqualValues(t, 4, est.TotalRows)
}

func TestScanWithoutRowHintUsesLowConfidenceDefault(t *testing.T) {
	scan := &logical.Scan{}
	est := cost.Estimate(scan)
	require.Greater(t, est.TotalRows, int64(0))
	require.Less(t, est.Confidence, 1.0)
}
