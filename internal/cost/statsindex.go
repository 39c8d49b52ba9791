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

package cost

import "github.com/google/btree"

// StatsIndex remembers ColumnStats observed from prior runs against a
// given source, keyed by "source.column", so a Scan with no row-count
// hint can still borrow a row count from a previous run's stats instead
// of falling back to the coarse unknownRows default (§4.F names stats as advisory and optional; this is the mechanism that
// lets them persist across runs of the same pipeline). Backed by
// google/btree so range lookups by source prefix stay ordered and cheap
// as the index grows across many sources.
type StatsIndex struct {
	tree *btree.BTree
}

// NewStatsIndex returns an empty index.
func NewStatsIndex() *StatsIndex {
	return &StatsIndex{tree: btree.New(32)}
}

type statsEntry struct {
	key   string
	stats SchemaColumnStats
}

func (e statsEntry) Less(other btree.Item) bool {
	return e.key < other.(statsEntry).key
}

// SchemaColumnStats is a column's Min/Max/DistinctCount carried across
// Estimate calls, independent of any one Schema value's lifetime.
type SchemaColumnStats struct {
	DistinctCount int64
	Min, Max      float64
	HasMinMax     bool
}

// Record stores stats for source.column, overwriting any prior entry.
func (idx *StatsIndex) Record(source, column string, stats SchemaColumnStats) {
	idx.tree.ReplaceOrInsert(statsEntry{key: source + "." + column, stats: stats})
}

// Lookup returns the stats recorded for source.column, if any.
func (idx *StatsIndex) Lookup(source, column string) (SchemaColumnStats, bool) {
	item := idx.tree.Get(statsEntry{key: source + "." + column})
	if item == nil {
		return SchemaColumnStats{}, false
	}
	return item.(statsEntry).stats, true
}

// SourcePrefix returns every column's stats recorded for source, keyed
// by column name, by range-scanning the tree between "source." and
// its upper bound.
func (idx *StatsIndex) SourcePrefix(source string) map[string]SchemaColumnStats {
	out := map[string]SchemaColumnStats{}
	lo := statsEntry{key: source + "."}
	hi := statsEntry{key: source + "/"} // '/' sorts just after '.' in ASCII, bounding the scan
	idx.tree.AscendRange(lo, hi, func(item btree.Item) bool {
		e := item.(statsEntry)
		col := e.key[len(source)+1:]
		out[col] = e.stats
		return true
	})
	return out
}
