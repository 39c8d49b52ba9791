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

// Package logical implements the EM-√ logical plan tree and its rewrite
// rules (§4.E): each node kind (Scan, Filter, Project, Map, Aggregate,
// Join, Sink) is its own struct implementing the Plan interface, rather
// than one generic node type with a discriminant field.
package logical

import (
	"fmt"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/types"
)

// Plan is any node of the logical plan tree (§3's LogicalPlan tagged
// variant: Scan, Filter, Project, Map, Aggregate, Join, Sink).
type Plan interface {
	// Schema returns the output schema this node produces.
	Schema() types.Schema
	// Children returns the node's immediate inputs, in evaluation order.
	Children() []Plan
	// String renders a short human-readable description (used by
	// `explain`).
	String() string
}

var (
	_ Plan = (*Scan)(nil)
	_ Plan = (*Filter)(nil)
	_ Plan = (*Project)(nil)
	_ Plan = (*Map)(nil)
	_ Plan = (*Aggregate)(nil)
	_ Plan = (*Join)(nil)
	_ Plan = (*Sink)(nil)
)

// Scan reads rows from an external source (§4.I boundary contract); the
// row-batch I/O layer itself is out of scope (§1) — Scan only carries the
// declared schema and source locator the binding needs.
type Scan struct {
	Source       string
	SchemaValue  types.Schema
	EstimatedRows int64 // optional hint for the cost model (§4.F); 0 = unknown
}

func (s *Scan) Schema() types.Schema { return s.SchemaValue }
func (s *Scan) Children() []Plan     { return nil }
func (s *Scan) String() string       { return fmt.Sprintf("Scan(source=%s)", s.Source) }

// Filter drops rows for which Expr evaluates false (§4.I).
type Filter struct {
	Input  Plan
	Expr   exprlang.Expr
	ExprSrc string
}

func (f *Filter) Schema() types.Schema { return f.Input.Schema() }
func (f *Filter) Children() []Plan     { return []Plan{f.Input} }
func (f *Filter) String() string       { return fmt.Sprintf("Filter(%s)", f.ExprSrc) }

// Project selects a subset of input columns by name (§4.I).
type Project struct {
	Input   Plan
	Columns []string
}

func (p *Project) Schema() types.Schema {
	sch, err := p.Input.Schema().Project(p.Columns)
	if err != nil {
		// Schema() is infallible by interface contract; logical.Validate
		// checks column references before physical lowering (§4.G) in a
		// real run, so an error here means a malformed hand-built plan —
		// surface an empty schema rather than panic.
		return types.Schema{}
	}
	return sch
}
func (p *Project) Children() []Plan { return []Plan{p.Input} }
func (p *Project) String() string   { return fmt.Sprintf("Project(%v)", p.Columns) }

// Map is an identity step (§4.I): it returns its input's schema and rows
// unchanged and carries no expression.
type Map struct {
	Input Plan
}

func (m *Map) Schema() types.Schema { return m.Input.Schema() }
func (m *Map) Children() []Plan     { return []Plan{m.Input} }
func (m *Map) String() string       { return "Map(identity)" }

// AggFunc names a supported aggregate function (§4.I).
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

func (f AggFunc) String() string {
	switch f {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggAvg:
		return "avg"
	default:
		return "?"
	}
}

// AggSpec is one aggregate expression: Func(Column) AS As. Column is
// ignored (and must be empty) for AggCount over "*".
type AggSpec struct {
	Func   AggFunc
	Column string
	As     string
}

// Aggregate groups rows by GroupBy and computes Aggs per group (§4.I).
// Per the §9 open question, grouping uses the true multi-column tuple
// key, not just the first group-by column.
type Aggregate struct {
	Input   Plan
	GroupBy []string
	Aggs    []AggSpec
}

func (a *Aggregate) Schema() types.Schema {
	fields := make([]types.Field, 0, len(a.GroupBy)+len(a.Aggs))
	inputSchema := a.Input.Schema()
	for _, g := range a.GroupBy {
		f, _, ok := inputSchema.FieldByName(g)
		if !ok {
			f = types.Field{Name: g, DataType: types.TypeUtf8, Nullable: true}
		}
		fields = append(fields, f)
	}
	for _, agg := range a.Aggs {
		dt := types.TypeF64
		if agg.Func == AggCount {
			dt = types.TypeI64
		}
		fields = append(fields, types.Field{Name: agg.As, DataType: dt, Nullable: false})
	}
	return types.Schema{Fields: fields}
}
func (a *Aggregate) Children() []Plan { return []Plan{a.Input} }
func (a *Aggregate) String() string {
	return fmt.Sprintf("Aggregate(group_by=%v, aggs=%d)", a.GroupBy, len(a.Aggs))
}

// JoinType names the supported join semantics (§4.I).
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (t JoinType) String() string {
	switch t {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinFull:
		return "full"
	default:
		return "?"
	}
}

// JoinKey pairs one left and one right join column.
type JoinKey struct {
	Left, Right string
}

// Join combines Left and Right on On (§4.I). Column name collisions
// rename right-side columns with suffix "_right".
type Join struct {
	Left, Right Plan
	On          []JoinKey
	Type        JoinType
}

func (j *Join) Schema() types.Schema {
	left := j.Left.Schema()
	right := j.Right.Schema()
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
		// Outer joins can introduce NULLs on the unmatched side.
		if j.Type == JoinLeft || j.Type == JoinFull {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	if j.Type == JoinRight || j.Type == JoinFull {
		for i := range fields[:len(left.Fields)] {
			fields[i].Nullable = true
		}
	}
	return types.Schema{Fields: fields}
}
func (j *Join) Children() []Plan { return []Plan{j.Left, j.Right} }
func (j *Join) String() string   { return fmt.Sprintf("Join(type=%s, on=%v)", j.Type, j.On) }

// Sink writes the input's rows to a destination in the given format; out
// of scope as bytes-level I/O (§1), carried here only as the contract
// the physical/operator layer binds against.
type Sink struct {
	Input       Plan
	Destination string
	Format      string
}

func (s *Sink) Schema() types.Schema { return s.Input.Schema() }
func (s *Sink) Children() []Plan     { return []Plan{s.Input} }
func (s *Sink) String() string       { return fmt.Sprintf("Sink(destination=%s, format=%s)", s.Destination, s.Format) }

// Validate walks plan checking that every Project/Filter/Aggregate/Join
// references columns that exist in its input schema (§4.E/§4.G boundary
// check — physical lowering assumes this has already been done).
func Validate(plan Plan) error {
	switch p := plan.(type) {
	case *Scan:
		return nil
	case *Filter:
		if err := Validate(p.Input); err != nil {
			return err
		}
		inputSchema := p.Input.Schema()
		for name := range requiredColumns(p.Expr) {
			if _, _, ok := inputSchema.FieldByName(name); !ok {
				return emerrors.New(emerrors.KindSchema, "filter references unknown column %q", name)
			}
		}
		return nil
	case *Project:
		if err := Validate(p.Input); err != nil {
			return err
		}
		inputSchema := p.Input.Schema()
		for _, name := range p.Columns {
			if _, _, ok := inputSchema.FieldByName(name); !ok {
				return emerrors.New(emerrors.KindSchema, "project references unknown column %q", name)
			}
		}
		return nil
	case *Map:
		return Validate(p.Input)
	case *Aggregate:
		if err := Validate(p.Input); err != nil {
			return err
		}
		inputSchema := p.Input.Schema()
		for _, g := range p.GroupBy {
			if _, _, ok := inputSchema.FieldByName(g); !ok {
				return emerrors.New(emerrors.KindSchema, "group-by references unknown column %q", g)
			}
		}
		for _, agg := range p.Aggs {
			if agg.Column == "" || agg.Column == "*" {
				continue
			}
			if _, _, ok := inputSchema.FieldByName(agg.Column); !ok {
				return emerrors.New(emerrors.KindSchema, "aggregate references unknown column %q", agg.Column)
			}
		}
		return nil
	case *Join:
		if err := Validate(p.Left); err != nil {
			return err
		}
		if err := Validate(p.Right); err != nil {
			return err
		}
		leftSchema, rightSchema := p.Left.Schema(), p.Right.Schema()
		for _, k := range p.On {
			if _, _, ok := leftSchema.FieldByName(k.Left); !ok {
				return emerrors.New(emerrors.KindSchema, "join references unknown left column %q", k.Left)
			}
			if _, _, ok := rightSchema.FieldByName(k.Right); !ok {
				return emerrors.New(emerrors.KindSchema, "join references unknown right column %q", k.Right)
			}
		}
		return nil
	case *Sink:
		return Validate(p.Input)
	default:
		return emerrors.New(emerrors.KindPlan, "unknown logical plan node")
	}
}

func requiredColumns(e exprlang.Expr) map[string]struct{} {
	return exprlang.ColumnsReferenced(e)
}
