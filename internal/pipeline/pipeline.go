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

// Package pipeline implements the §6 YAML pipeline front-end: the one
// external-collaborator format the CLI needs to be runnable end-to-end.
// A pipeline document is a flat `steps: [Step]` list, each step a tagged
// object `{op: ..., ...}` — linear pipelines only, first step must be
// `scan`. Decoding a document and compiling it into a logical.Plan are
// kept separate so validate/explain/run can all share the same front end
// while doing different amounts of work with the result.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/types"
)

// Document is the top-level YAML shape (§6: "Top-level steps: [Step]").
type Document struct {
	Steps []Step `yaml:"steps"`
}

// FieldSpec is one `fields` entry under a `scan` step: a column name and
// its §6 type token (`Boolean`/`bool`, `Int32`/`i32`, ... else `Utf8`).
type FieldSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

// AggSpec is one `aggregate` step's aggregate expression entry.
type AggSpec struct {
	Func   string `yaml:"func"`
	Column string `yaml:"column"`
	As     string `yaml:"as"`
}

// JoinKeySpec pairs one left/right join column under a `join` step.
type JoinKeySpec struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// Step is a tagged union over every supported `op`. Only the fields
// relevant to Op are populated by the author; unused fields are zero.
// §6 lists scan|filter|project|map|sink for the linear front-end; join
// and aggregate are supplemental additions (§3) since a real pipeline
// front-end needs more than the five literal tokens the distillation
// names to exercise every logical.Plan node the engine supports.
type Step struct {
	Op string `yaml:"op"`

	// scan
	Source        string      `yaml:"source"`
	Fields        []FieldSpec `yaml:"fields"`
	EstimatedRows int64       `yaml:"estimated_rows"`

	// filter
	Expr string `yaml:"expr"`

	// project
	Columns []string `yaml:"columns"`

	// aggregate
	GroupBy []string  `yaml:"group_by"`
	Aggs    []AggSpec `yaml:"aggs"`

	// join (binds Right as a nested sub-pipeline of its own steps)
	Right []Step        `yaml:"right"`
	On    []JoinKeySpec `yaml:"on"`
	Type  string        `yaml:"type"`

	// sink
	Destination string `yaml:"destination"`
	Format      string `yaml:"format"`
}

// Parse decodes raw YAML bytes into a Document.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, emerrors.Wrap(err, "pipeline: decoding yaml")
	}
	return &doc, nil
}

// LoadFile reads and parses a pipeline document from path.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, emerrors.Wrap(err, fmt.Sprintf("pipeline: reading %s", path))
	}
	return Parse(raw)
}

// Build compiles a Document into a logical.Plan (§6: "Linear pipelines
// only (one active leaf); the first step must be scan"). The returned
// plan is run through logical.Validate before being handed back, so a
// malformed reference (unknown column, bad expression) surfaces here
// rather than three layers deeper in physical lowering.
func Build(doc *Document) (logical.Plan, error) {
	plan, err := build(doc.Steps)
	if err != nil {
		return nil, err
	}
	if err := logical.Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func build(steps []Step) (logical.Plan, error) {
	if len(steps) == 0 {
		return nil, emerrors.New(emerrors.KindConfig, "pipeline: empty steps list")
	}
	if steps[0].Op != "scan" {
		return nil, emerrors.New(emerrors.KindConfig, "pipeline: first step must be scan, got %q", steps[0].Op)
	}

	var plan logical.Plan
	for i, step := range steps {
		node, err := buildStep(step, plan)
		if err != nil {
			return nil, emerrors.Wrap(err, fmt.Sprintf("pipeline: step %d (%s)", i, step.Op))
		}
		plan = node
	}
	return plan, nil
}

func buildStep(step Step, input logical.Plan) (logical.Plan, error) {
	switch step.Op {
	case "scan":
		if input != nil {
			return nil, emerrors.New(emerrors.KindConfig, "scan must be the first step")
		}
		return &logical.Scan{
			Source:        step.Source,
			SchemaValue:   schemaFromFields(step.Fields),
			EstimatedRows: step.EstimatedRows,
		}, nil

	case "filter":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "filter has no preceding step")
		}
		expr, err := exprlang.Parse(step.Expr)
		if err != nil {
			return nil, emerrors.Wrap(err, "parsing filter expr")
		}
		return &logical.Filter{Input: input, Expr: expr, ExprSrc: step.Expr}, nil

	case "project":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "project has no preceding step")
		}
		return &logical.Project{Input: input, Columns: step.Columns}, nil

	case "map":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "map has no preceding step")
		}
		return &logical.Map{Input: input}, nil

	case "aggregate":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "aggregate has no preceding step")
		}
		aggs := make([]logical.AggSpec, len(step.Aggs))
		for i, a := range step.Aggs {
			fn, err := aggFuncFromToken(a.Func)
			if err != nil {
				return nil, err
			}
			aggs[i] = logical.AggSpec{Func: fn, Column: a.Column, As: a.As}
		}
		return &logical.Aggregate{Input: input, GroupBy: step.GroupBy, Aggs: aggs}, nil

	case "join":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "join has no preceding step")
		}
		right, err := build(step.Right)
		if err != nil {
			return nil, emerrors.Wrap(err, "building join.right")
		}
		on := make([]logical.JoinKey, len(step.On))
		for i, k := range step.On {
			on[i] = logical.JoinKey{Left: k.Left, Right: k.Right}
		}
		jt, err := joinTypeFromToken(step.Type)
		if err != nil {
			return nil, err
		}
		return &logical.Join{Left: input, Right: right, On: on, Type: jt}, nil

	case "sink":
		if input == nil {
			return nil, emerrors.New(emerrors.KindConfig, "sink has no preceding step")
		}
		format := step.Format
		if format == "" {
			format = "csv"
		}
		return &logical.Sink{Input: input, Destination: step.Destination, Format: format}, nil

	default:
		return nil, emerrors.New(emerrors.KindConfig, "unknown step op %q", step.Op)
	}
}

func schemaFromFields(fields []FieldSpec) types.Schema {
	out := make([]types.Field, len(fields))
	for i, f := range fields {
		out[i] = types.Field{
			Name:     f.Name,
			DataType: types.DataTypeFromToken(f.Type),
			Nullable: f.Nullable,
		}
	}
	return types.Schema{Fields: out}
}

func aggFuncFromToken(token string) (logical.AggFunc, error) {
	switch token {
	case "count":
		return logical.AggCount, nil
	case "sum":
		return logical.AggSum, nil
	case "min":
		return logical.AggMin, nil
	case "max":
		return logical.AggMax, nil
	case "avg":
		return logical.AggAvg, nil
	default:
		return 0, emerrors.New(emerrors.KindConfig, "unknown aggregate func %q", token)
	}
}

func joinTypeFromToken(token string) (logical.JoinType, error) {
	switch token {
	case "", "inner":
		return logical.JoinInner, nil
	case "left":
		return logical.JoinLeft, nil
	case "right":
		return logical.JoinRight, nil
	case "full":
		return logical.JoinFull, nil
	default:
		return 0, emerrors.New(emerrors.KindConfig, "unknown join type %q", token)
	}
}
