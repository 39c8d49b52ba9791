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

import "github.com/logannye/emsqrt/internal/emerrors"

// Column is a named, ordered sequence of Scalar values (§3).
type Column struct {
	Name   string
	Values []Scalar
}

// Len returns the number of values in the column.
func (c Column) Len() int { return len(c.Values) }

// RowBatch is an ordered sequence of equal-length Columns (§3). An empty
// batch (NumRows() == 0) with a populated column header is a valid
// end-of-stream sentinel.
type RowBatch struct {
	Columns []Column
}

// NewRowBatch validates that every column has the same length before
// returning the batch; this is the "at batch construction" enforcement
// point §3 calls for at sources.
func NewRowBatch(columns []Column) (RowBatch, error) {
	b := RowBatch{Columns: columns}
	if err := b.Validate(); err != nil {
		return RowBatch{}, err
	}
	return b, nil
}

// NumRows returns the shared column length, or 0 for a batch with no
// columns.
func (b RowBatch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// Validate checks the schema-conservation invariant of §3/§8: every
// column in the batch has identical length.
func (b RowBatch) Validate() error {
	if len(b.Columns) == 0 {
		return nil
	}
	n := b.Columns[0].Len()
	for _, c := range b.Columns[1:] {
		if c.Len() != n {
			return emerrors.New(emerrors.KindSchema, "column %q has length %d, expected %d", c.Name, c.Len(), n)
		}
	}
	return nil
}

// ColumnByName returns the named column and its index, or ok=false.
func (b RowBatch) ColumnByName(name string) (Column, int, bool) {
	for i, c := range b.Columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// IsEmpty reports whether the batch is the zero-rows sentinel.
func (b RowBatch) IsEmpty() bool { return b.NumRows() == 0 }

// Slice returns the [start,end) row range of b as a new batch, sharing no
// backing storage with b (kernels that spill or buffer slices must be
// free to mutate them independently).
func (b RowBatch) Slice(start, end int) RowBatch {
	out := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		vals := make([]Scalar, end-start)
		copy(vals, c.Values[start:end])
		out[i] = Column{Name: c.Name, Values: vals}
	}
	return RowBatch{Columns: out}
}

// SelectRows returns a new batch containing only the rows at idxs, in the
// order given (used by the partitioned aggregate/join kernels to route
// rows to a partition bucket without mutating the source batch).
func (b RowBatch) SelectRows(idxs []int) RowBatch {
	out := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		vals := make([]Scalar, len(idxs))
		for j, idx := range idxs {
			vals[j] = c.Values[idx]
		}
		out[i] = Column{Name: c.Name, Values: vals}
	}
	return RowBatch{Columns: out}
}

// Concat appends two batches with identical column headers row-wise.
func Concat(batches ...RowBatch) (RowBatch, error) {
	nonEmpty := make([]RowBatch, 0, len(batches))
	for _, b := range batches {
		if len(b.Columns) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return RowBatch{}, nil
	}
	header := nonEmpty[0].Columns
	out := make([]Column, len(header))
	for i, c := range header {
		out[i] = Column{Name: c.Name}
	}
	for _, b := range nonEmpty {
		if len(b.Columns) != len(header) {
			return RowBatch{}, emerrors.New(emerrors.KindSchema, "batch column count %d does not match %d", len(b.Columns), len(header))
		}
		for i, c := range b.Columns {
			if c.Name != header[i].Name {
				return RowBatch{}, emerrors.New(emerrors.KindSchema, "batch column %d named %q, expected %q", i, c.Name, header[i].Name)
			}
			out[i].Values = append(out[i].Values, c.Values...)
		}
	}
	return RowBatch{Columns: out}, nil
}
