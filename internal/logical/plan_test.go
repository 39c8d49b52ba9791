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

package logical_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/types"
)

func sampleScan() *logical.Scan {
	return &logical.Scan{
		Source: "input.csv",
		SchemaValue: types.Schema{Fields: []types.Field{
			{Name: "id", DataType: types.TypeI64},
			{Name: "age", DataType: types.TypeI64},
		}},
	}
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	expr, err := exprlang.Parse("nope > 1")
	require.NoError(t, err)
	plan := &logical.Filter{Input: sampleScan(), Expr: expr, ExprSrc: "nope > 1"}
	require.Error(t, logical.Validate(plan))
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	expr, err := exprlang.Parse("age > 25")
	require.NoError(t, err)
	plan := &logical.Sink{
		Input: &logical.Project{
			Input:   &logical.Filter{Input: sampleScan(), Expr: expr, ExprSrc: "age > 25"},
			Columns: []string{"id"},
		},
		Destination: "out.csv",
		Format:      "csv",
	}
	require.NoError(t, logical.Validate(plan))
}

func TestProjectDoesNotPushBelowFilter(t *testing.T) {
	expr, _ := exprlang.Parse("age > 25")
	filter := &logical.Filter{Input: sampleScan(), Expr: expr, ExprSrc: "age > 25"}
	project := &logical.Project{Input: filter, Columns: []string{"id"}}

	optimized := logical.Optimize(project)
	opt, ok := optimized.(*logical.Project)
	require.True(t, ok)
	_, stillFilterBelow := opt.Input.(*logical.Filter)
	require.True(t, stillFilterBelow, "projection-preservation rule must not push Project below Filter")
}

func TestJoinSchemaRenamesCollisions(t *testing.T) {
	left := &logical.Scan{SchemaValue: types.Schema{Fields: []types.Field{{Name: "id", DataType: types.TypeI64}}}}
	right := &logical.Scan{SchemaValue: types.Schema{Fields: []types.Field{
		{Name: "id", DataType: types.TypeI64},
		{Name: "score", DataType: types.TypeF64},
	}}}
	join := &logical.Join{Left: left, Right: right, On: []logical.JoinKey{{Left: "id", Right: "id"}}, Type: logical.JoinInner}
	schema := join.Schema()
	names := schema.ColumnNames()
	require.Contains(t, names, "id")
	require.Contains(t, names, "id_right")
	require.Contains(t, names, "score")
}
