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

package physical_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/types"
)

func buildPlan(t *testing.T) logical.Plan {
	t.Helper()
	expr, err := exprlang.Parse("age > 25")
	require.NoError(t, err)
	scan := &logical.Scan{
		Source: "people.csv",
		SchemaValue: types.Schema{Fields: []types.Field{
			{Name: "id", DataType: types.TypeI64},
			{Name: "age", DataType: types.TypeI64},
		}},
	}
	filter := &logical.Filter{Input: scan, Expr: expr, ExprSrc: "age > 25"}
	project := &logical.Project{Input: filter, Columns: []string{"id"}}
	return &logical.Sink{Input: project, Destination: "out.csv", Format: "csv"}
}

func TestLowerAssignsOpIdsInPostOrder(t *testing.T) {
	plan := buildPlan(t)
	prog, err := physical.Lower(plan, types.NewIDAllocator())
	require.NoError(t, err)

	order := prog.PostOrder()
	require.Len(t, order, 4) // scan, filter, project, sink

	// Post-order: scan's id must be smaller than filter's, filter's
	// smaller than project's, project's smaller than sink's.
	for i := 1; i < len(order); i++ {
		require.Less(t, order[i-1].Id, order[i].Id)
	}

	root := order[len(order)-1]
	binding := prog.Bindings[root.Id]
	require.Equal(t, physical.KeySink, binding.Key)
}

func TestLowerBindsOperatorConfig(t *testing.T) {
	plan := buildPlan(t)
	prog, err := physical.Lower(plan, types.NewIDAllocator())
	require.NoError(t, err)

	var sawFilter, sawProject bool
	for _, n := range prog.PostOrder() {
		b := prog.Bindings[n.Id]
		switch b.Key {
		case physical.KeyFilter:
			sawFilter = true
			require.Contains(t, string(b.Config), "age > 25")
		case physical.KeyProject:
			sawProject = true
			require.Contains(t, string(b.Config), "id")
		}
	}
	require.True(t, sawFilter)
	require.True(t, sawProject)
}

func TestJoinDefaultsToHashAndCanBeRebound(t *testing.T) {
	left := &logical.Scan{SchemaValue: types.Schema{Fields: []types.Field{{Name: "id", DataType: types.TypeI64}}}}
	right := &logical.Scan{SchemaValue: types.Schema{Fields: []types.Field{{Name: "id", DataType: types.TypeI64}}}}
	join := &logical.Join{Left: left, Right: right, On: []logical.JoinKey{{Left: "id", Right: "id"}}, Type: logical.JoinInner}

	prog, err := physical.Lower(join, types.NewIDAllocator())
	require.NoError(t, err)
	require.Equal(t, physical.KeyJoinHash, prog.Bindings[prog.Root.Id].Key)

	require.NoError(t, prog.AsMergeJoin(prog.Root.Id))
	require.Equal(t, physical.KeyJoinMerge, prog.Bindings[prog.Root.Id].Key)
}
