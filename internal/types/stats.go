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

package types

// StatsCollector incrementally computes a ColumnStats for one column
// across materialized batches (SPEC_FULL §3, supplementing a Scan that
// has no caller-supplied SchemaStats). Distinct counting is a bounded
// exact set up to distinctCap entries; once the cap is exceeded the
// collector stops tracking individual values and reports the cap itself
// as a conservative DistinctCount estimate — stats remain advisory, never
// load-bearing for correctness (§3).
type StatsCollector struct {
	distinctCap int
	seen        map[string]struct{}
	min, max    Scalar
	haveMinMax  bool
	nullCount   int64
	totalCount  int64
	overflowed  bool
}

// NewStatsCollector returns a collector that tracks up to distinctCap
// distinct values exactly.
func NewStatsCollector(distinctCap int) *StatsCollector {
	if distinctCap <= 0 {
		distinctCap = 10000
	}
	return &StatsCollector{distinctCap: distinctCap, seen: make(map[string]struct{})}
}

// Observe folds one value into the running statistics.
func (c *StatsCollector) Observe(v Scalar) {
	c.totalCount++
	if v.IsNull() {
		c.nullCount++
		return
	}
	if !c.haveMinMax {
		c.min, c.max = v, v
		c.haveMinMax = true
	} else {
		if v.Compare(c.min) < 0 {
			c.min = v
		}
		if v.Compare(c.max) > 0 {
			c.max = v
		}
	}
	if !c.overflowed {
		key := string(v.stableSerialize())
		if _, ok := c.seen[key]; !ok {
			if len(c.seen) >= c.distinctCap {
				c.overflowed = true
			} else {
				c.seen[key] = struct{}{}
			}
		}
	}
}

// Finish returns the accumulated ColumnStats.
func (c *StatsCollector) Finish() ColumnStats {
	distinct := int64(len(c.seen))
	if c.overflowed {
		distinct = int64(c.distinctCap)
	}
	return ColumnStats{
		Min:           c.min,
		Max:           c.max,
		NullCount:     c.nullCount,
		DistinctCount: distinct,
		TotalCount:    c.totalCount,
	}
}
