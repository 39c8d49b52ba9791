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
	"github.com/logannye/emsqrt/internal/logical"
)

func TestStatsIndexRecordAndLookup(t *testing.T) {
	idx := cost.NewStatsIndex()
	idx.Record("customers.csv", "id", cost.SchemaColumnStats{DistinctCount: 500})

	got, ok := idx.Lookup("customers.csv", "id")
	require.True(t, ok)
	require.EqualValues(t, 500, got.DistinctCount)

	_, ok = idx.Lookup("customers.csv", "missing")
	require.False(t, ok)
}

func TestStatsIndexBorrowsRowCountForScanWithoutHint(t *testing.T) {
	idx := cost.NewStatsIndex()
	idx.Record("customers.csv", "id", cost.SchemaColumnStats{DistinctCount: 500})
	idx.Record("customers.csv", "region", cost.SchemaColumnStats{DistinctCount: 4})

	scan := &logical.Scan{Source: "customers.csv"} // no EstimatedRows hint
	est := cost.EstimateWithIndex(scan, idx)
	require.EqualValues(t, 500, est.TotalRows)
	require.Greater(t, est.Confidence, 0.1) // better than the blind default
}
