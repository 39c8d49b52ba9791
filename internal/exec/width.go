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

package exec

import "github.com/logannye/emsqrt/internal/types"

// rowWidth sums the same coarse per-kind byte widths internal/cost uses
// for its WorkEstimate (1, 4, 8 or 32 bytes a field); Scan and Sink
// report it as their MemoryNeed bytes-per-row.
func rowWidth(schema types.Schema) int64 {
	var total int64
	for _, f := range schema.Fields {
		total += fieldWidth(f.DataType)
	}
	if total == 0 {
		return 8
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
	default: // Utf8, Binary
		return 32
	}
}

// estimateBatchBytes is a rough in-memory size estimate for a concrete
// batch, used to decide when a Grace join bucket or an external sort's
// current run spills.
func estimateBatchBytes(batch types.RowBatch) int64 {
	if len(batch.Columns) == 0 {
		return 0
	}
	rows := int64(batch.NumRows())
	var perRow int64
	for range batch.Columns {
		perRow += 32 // conservative flat estimate; Scalar's variant payload is <=32B for every kind but Binary/Utf8, which this already covers
	}
	return rows * perRow
}
