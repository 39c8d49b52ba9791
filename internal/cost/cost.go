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

// Package cost estimates the work a logical plan will perform (§4.F),
// threading a WorkEstimate bottom-up through the plan tree so each node's
// estimate is derived from its children's rather than recomputed from
// scratch.
package cost

import (
	"math"

	"github.com/logannye/emsqrt/internal/exprlang"
	"github.com/logannye/emsqrt/internal/logical"
	"github.com/logannye/emsqrt/internal/types"
)

// defaultRowWidth estimates bytes-per-row when no column stats are
// available to derive one; a deliberately coarse fallback, never used to
// change correctness, only plan quality (§4.F).
const defaultRowWidth = 64

// defaultSelectivity is applied when a filter predicate's shape doesn't
// match one of the recognized equality/range forms (§4.F).
const defaultSelectivity = 0.5

// unknownRows is substituted whenever a Scan carries no row-count hint.
const unknownRows = 1000

// WorkEstimate is the cost annotation threaded through the plan (§4.F).
// Confidence is a SPEC_FULL supplement: 1.0 when stats backed every
// estimate feeding this node, decaying toward 0 as more defaults and
// fallbacks were used along the way, letting callers (explain output)
// distinguish a measured estimate from a guess.
type WorkEstimate struct {
	TotalRows  int64
	TotalBytes int64
	MaxFanIn   int
	Confidence float64
}

// scaleConfidence folds a child contribution's confidence into a running total by
// simple multiplication, the same way independent probability factors
// compose; an all-measured chain stays at 1.0, any guess pulls it down.
func (w WorkEstimate) scaleConfidence(factor float64) WorkEstimate {
	w.Confidence *= factor
	return w
}

// Estimate walks plan bottom-up and returns its WorkEstimate (§4.F), with
// no cross-run stats borrowing.
func Estimate(plan logical.Plan) WorkEstimate {
	return EstimateWithIndex(plan, nil)
}

// EstimateWithIndex is Estimate, but a Scan node with no row-count hint
// (EstimatedRows <= 0) borrows a row count from the stats idx recorded
// for its source (if idx is non-nil and has any), rather than falling
// back to unknownRows. Column stats and filter selectivity are not taken
// from idx.
func EstimateWithIndex(plan logical.Plan, idx *StatsIndex) WorkEstimate {
	switch p := plan.(type) {
	case *logical.Scan:
		return estimateScan(p, idx)
	case *logical.Filter:
		return estimateFilter(p, idx)
	case *logical.Project:
		child := EstimateWithIndex(p.Input, idx)
		width := rowWidth(p.Schema())
		return WorkEstimate{TotalRows: child.TotalRows, TotalBytes: child.TotalRows * width, MaxFanIn: child.MaxFanIn, Confidence: child.Confidence}
	case *logical.Map:
		return EstimateWithIndex(p.Input, idx)
	case *logical.Aggregate:
		return estimateAggregate(p, idx)
	case *logical.Join:
		return estimateJoin(p, idx)
	case *logical.Sink:
		child := EstimateWithIndex(p.Input, idx)
		if child.MaxFanIn < 1 {
			child.MaxFanIn = 1
		}
		return child
	default:
		return WorkEstimate{TotalRows: unknownRows, TotalBytes: unknownRows * defaultRowWidth, MaxFanIn: 1, Confidence: 0}
	}
}

func estimateScan(s *logical.Scan, idx *StatsIndex) WorkEstimate {
	rows := s.EstimatedRows
	confidence := 1.0
	if rows <= 0 {
		rows = unknownRows
		confidence = 0.1
		if idx != nil {
			if borrowed, ok := borrowRowCount(idx, s); ok {
				rows = borrowed
				confidence = 0.6 // better than a guess, but stale relative to this run
			}
		}
	}
	width := rowWidth(s.SchemaValue)
	return WorkEstimate{TotalRows: rows, TotalBytes: rows * width, MaxFanIn: 1, Confidence: confidence}
}

// borrowRowCount estimates a scan's row count from its widest-known
// distinct-count column recorded in idx for this source, on the
// assumption that a column's distinct count never exceeds its table's
// row count.
func borrowRowCount(idx *StatsIndex, s *logical.Scan) (int64, bool) {
	cols := idx.SourcePrefix(s.Source)
	var best int64
	found := false
	for _, st := range cols {
		if st.DistinctCount > best {
			best = st.DistinctCount
			found = true
		}
	}
	return best, found
}

func estimateFilter(f *logical.Filter, idx *StatsIndex) WorkEstimate {
	child := EstimateWithIndex(f.Input, idx)
	sel, confidence := selectivity(f.Expr, f.Input.Schema())
	rows := int64(math.Ceil(float64(child.TotalRows) * sel))
	width := rowWidth(f.Input.Schema())
	out := WorkEstimate{TotalRows: rows, TotalBytes: rows * width, MaxFanIn: child.MaxFanIn, Confidence: child.Confidence}
	if out.MaxFanIn < 1 {
		out.MaxFanIn = 1
	}
	return out.scaleConfidence(confidence)
}

// selectivity estimates the fraction of rows a predicate keeps (§4.F):
// equality uses 1/distinct_count when the referenced column has stats,
// range predicates use the overlap of the literal against [min, max],
// and anything else falls back to the 0.5 default.
func selectivity(expr exprlang.Expr, schema types.Schema) (fraction, confidence float64) {
	if col, _, ok := exprlang.EqualityPredicate(expr); ok {
		if st, hasStats := schema.Stats[col]; hasStats && st.DistinctCount > 0 {
			return 1.0 / float64(st.DistinctCount), 1.0
		}
		return defaultSelectivity, 0.3
	}
	if col, op, lit, ok := exprlang.RangePredicate(expr); ok {
		if st, hasStats := schema.Stats[col]; hasStats {
			if frac, ok := rangeOverlap(st, op, lit); ok {
				return frac, 1.0
			}
		}
		return defaultSelectivity, 0.3
	}
	return defaultSelectivity, 0.2
}

// rangeOverlap computes what fraction of [st.Min, st.Max] satisfies
// `col OP lit`, assuming a uniform value distribution across the range.
func rangeOverlap(st types.ColumnStats, op exprlang.BinOp, lit types.Scalar) (float64, bool) {
	lo, loOK := asFloat(st.Min)
	hi, hiOK := asFloat(st.Max)
	val, valOK := asFloat(lit)
	if !loOK || !hiOK || !valOK || hi <= lo {
		return 0, false
	}
	var frac float64
	switch op {
	case exprlang.OpLt, exprlang.OpLte:
		frac = (val - lo) / (hi - lo)
	case exprlang.OpGt, exprlang.OpGte:
		frac = (hi - val) / (hi - lo)
	default:
		return 0, false
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac, true
}

func asFloat(s types.Scalar) (float64, bool) {
	switch s.Kind() {
	case types.KindI32, types.KindI64, types.KindF32, types.KindF64:
		return s.AsFloat64(), true
	default:
		return 0, false
	}
}

// estimateAggregate estimates the post-aggregation group count as the
// product of each group-by column's distinct count when stats are
// available (a column without stats contributes a factor of 10), capped
// at the input row count, since a group can never produce more rows than
// it consumed; when no group-by column has stats it falls back to one
// tenth of the input rows (§4.F).
func estimateAggregate(a *logical.Aggregate, idx *StatsIndex) WorkEstimate {
	child := EstimateWithIndex(a.Input, idx)
	inputSchema := a.Input.Schema()

	groups := float64(1)
	confidence := child.Confidence
	haveAnyStats := false
	for _, g := range a.GroupBy {
		if st, ok := inputSchema.Stats[g]; ok && st.DistinctCount > 0 {
			groups *= float64(st.DistinctCount)
			haveAnyStats = true
		} else {
			groups *= 10 // unknown-cardinality column: coarse guess
			confidence *= 0.3
		}
	}
	if len(a.GroupBy) == 0 {
		groups = 1
	}
	if !haveAnyStats && len(a.GroupBy) > 0 {
		groups = float64(child.TotalRows) / 10
		confidence *= 0.5
	}
	rows := int64(math.Ceil(groups))
	if rows > child.TotalRows {
		rows = child.TotalRows
	}
	if rows < 1 {
		rows = 1
	}
	width := rowWidth(a.Schema())
	fanIn := child.MaxFanIn
	if fanIn < 1 {
		fanIn = 1
	}
	return WorkEstimate{TotalRows: rows, TotalBytes: rows * width, MaxFanIn: fanIn, Confidence: confidence}
}

// estimateJoin estimates join output cardinality as
// |L|*|R|/max(distinct_L, distinct_R) when join-key stats are available
// on both sides, else min(|L|, |R|) as a conservative fallback (§4.F).
// Joins always raise MaxFanIn to at least 2, since the scheduler (§4.H)
// must decompose a join block from two upstream input streams.
func estimateJoin(j *logical.Join, idx *StatsIndex) WorkEstimate {
	left := EstimateWithIndex(j.Left, idx)
	right := EstimateWithIndex(j.Right, idx)

	rows := left.TotalRows
	if right.TotalRows < rows {
		rows = right.TotalRows
	}
	confidence := math.Min(left.Confidence, right.Confidence) * 0.5

	if len(j.On) > 0 {
		leftSchema := j.Left.Schema()
		rightSchema := j.Right.Schema()
		key := j.On[0]
		leftStats, hasLeft := leftSchema.Stats[key.Left]
		rightStats, hasRight := rightSchema.Stats[key.Right]
		if hasLeft && hasRight && leftStats.DistinctCount > 0 && rightStats.DistinctCount > 0 {
			maxDistinct := leftStats.DistinctCount
			if rightStats.DistinctCount > maxDistinct {
				maxDistinct = rightStats.DistinctCount
			}
			rows = int64(math.Ceil(float64(left.TotalRows) * float64(right.TotalRows) / float64(maxDistinct)))
			confidence = math.Min(left.Confidence, right.Confidence)
		}
	}
	if rows < 0 {
		rows = 0
	}

	width := rowWidth(j.Schema())
	fanIn := left.MaxFanIn
	if right.MaxFanIn > fanIn {
		fanIn = right.MaxFanIn
	}
	if fanIn < 2 {
		fanIn = 2
	}
	return WorkEstimate{TotalRows: rows, TotalBytes: rows * width, MaxFanIn: fanIn, Confidence: confidence}
}

// rowWidth estimates the average serialized row width of schema: the sum
// of a fixed per-kind width estimate across its fields, or
// defaultRowWidth when the schema is empty.
func rowWidth(schema types.Schema) int64 {
	if len(schema.Fields) == 0 {
		return defaultRowWidth
	}
	var total int64
	for _, f := range schema.Fields {
		total += fieldWidth(f.DataType)
	}
	return total
}

func fieldWidth(dt types.DataType) int64 {
	switch dt {
	case types.TypeBool:
		return 1
	case types.TypeI32, types.TypeF32:
		return 4
	case types.TypeI64, types.TypeF64:
		return 8
	case types.TypeUtf8, types.TypeBinary:
		return 32 // average-case guess for variable-length data
	default:
		return 8
	}
}
