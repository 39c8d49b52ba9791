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

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/types"
)

// SourceReader is the boundary contract a Scan operator reads through
// (§4.I, §1's "row-batch I/O is out of scope except as a boundary
// contract"). ReadBatch returns io.EOF once the source is exhausted; the
// batch accompanying that final error may still carry a short, non-empty
// final chunk, matching bufio.Reader/io.Reader idiom.
type SourceReader interface {
	Schema() types.Schema
	ReadBatch(maxRows int) (types.RowBatch, error)
	Close() error
}

// SinkWriter is the boundary contract a Sink operator writes through.
type SinkWriter interface {
	WriteBatch(batch types.RowBatch) error
	Close() error
}

// SourceOpener opens a SourceReader for a scan's configured source locator.
type SourceOpener func(source string, schema types.Schema) (SourceReader, error)

// SinkOpener opens a SinkWriter for a sink's configured destination/format.
type SinkOpener func(destination, format string, schema types.Schema) (SinkWriter, error)

func emptyBatch(schema types.Schema) types.RowBatch {
	cols := make([]types.Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = types.Column{Name: f.Name}
	}
	return types.RowBatch{Columns: cols}
}

// csvSourceReader is the in-tree SourceReader reference implementation
// (SPEC_FULL §3 supplement: the spec leaves row-batch I/O as a boundary
// contract without mandating a concrete format, so CSV — the format every
// seed scenario in §8 is expressed against — ships as the one wired
// implementation), built on stdlib encoding/csv the way nothing in the
// retrieved pack reaches for a dedicated CSV library for something this
// simple.
type csvSourceReader struct {
	f      *os.File
	r      *csv.Reader
	schema types.Schema
	done   bool
}

// OpenCSVSource opens path as a headered CSV file whose columns are
// expected to appear in schema's field order.
func OpenCSVSource(path string, schema types.Schema) (SourceReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, emerrors.Wrap(err, "exec: open csv source "+path)
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return &csvSourceReader{f: f, r: r, schema: schema, done: true}, nil
		}
		f.Close()
		return nil, emerrors.Wrap(err, "exec: read csv header from "+path)
	}
	return &csvSourceReader{f: f, r: r, schema: schema}, nil
}

func (c *csvSourceReader) Schema() types.Schema { return c.schema }

func (c *csvSourceReader) ReadBatch(maxRows int) (types.RowBatch, error) {
	if c.done {
		return emptyBatch(c.schema), io.EOF
	}
	cols := make([]types.Column, len(c.schema.Fields))
	for i, f := range c.schema.Fields {
		cols[i] = types.Column{Name: f.Name}
	}
	n := 0
	for n < maxRows {
		record, err := c.r.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, "exec: read csv record")
		}
		if len(record) != len(c.schema.Fields) {
			return types.RowBatch{}, emerrors.New(emerrors.KindSchema, "csv record has %d fields, expected %d", len(record), len(c.schema.Fields))
		}
		for i, f := range c.schema.Fields {
			v, err := parseCSVScalar(record[i], f)
			if err != nil {
				return types.RowBatch{}, err
			}
			cols[i].Values = append(cols[i].Values, v)
		}
		n++
	}
	batch, err := types.NewRowBatch(cols)
	if err != nil {
		return types.RowBatch{}, err
	}
	if c.done && n == 0 {
		return batch, io.EOF
	}
	return batch, nil
}

func (c *csvSourceReader) Close() error {
	if c.f == nil {
		return nil
	}
	return c.f.Close()
}

func parseCSVScalar(raw string, f types.Field) (types.Scalar, error) {
	if raw == "" && f.Nullable {
		return types.Null(), nil
	}
	switch f.DataType {
	case types.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return types.Scalar{}, emerrors.New(emerrors.KindSchema, "column %q: invalid bool %q", f.Name, raw)
		}
		return types.Bool(b), nil
	case types.TypeI32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return types.Scalar{}, emerrors.New(emerrors.KindSchema, "column %q: invalid int32 %q", f.Name, raw)
		}
		return types.I32(int32(v)), nil
	case types.TypeI64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.Scalar{}, emerrors.New(emerrors.KindSchema, "column %q: invalid int64 %q", f.Name, raw)
		}
		return types.I64(v), nil
	case types.TypeF32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return types.Scalar{}, emerrors.New(emerrors.KindSchema, "column %q: invalid float32 %q", f.Name, raw)
		}
		return types.F32(float32(v)), nil
	case types.TypeF64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Scalar{}, emerrors.New(emerrors.KindSchema, "column %q: invalid float64 %q", f.Name, raw)
		}
		return types.F64(v), nil
	case types.TypeBinary:
		return types.Binary([]byte(raw)), nil
	default:
		return types.Utf8(raw), nil
	}
}

func formatCSVScalar(s types.Scalar) string {
	if s.IsNull() {
		return ""
	}
	return s.String()
}

// csvSinkWriter is the in-tree SinkWriter reference implementation: the
// first WriteBatch call writes the header row, every subsequent call
// appends rows only (§4.I's Sink boundary behavior).
type csvSinkWriter struct {
	f           *os.File
	w           *csv.Writer
	schema      types.Schema
	wroteHeader bool
}

// OpenCSVSink creates (or truncates) path and returns a SinkWriter over it.
func OpenCSVSink(path string, schema types.Schema) (SinkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, emerrors.Wrap(err, "exec: create csv sink "+path)
	}
	return &csvSinkWriter{f: f, w: csv.NewWriter(f), schema: schema}, nil
}

func (c *csvSinkWriter) WriteBatch(batch types.RowBatch) error {
	if !c.wroteHeader {
		if err := c.w.Write(c.schema.ColumnNames()); err != nil {
			return emerrors.Wrap(err, "exec: write csv header")
		}
		c.wroteHeader = true
	}
	for row := 0; row < batch.NumRows(); row++ {
		record := make([]string, len(batch.Columns))
		for i, col := range batch.Columns {
			record[i] = formatCSVScalar(col.Values[row])
		}
		if err := c.w.Write(record); err != nil {
			return emerrors.Wrap(err, "exec: write csv record")
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvSinkWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return emerrors.Wrap(err, "exec: flush csv sink")
	}
	return c.f.Close()
}

// dispatchSinkOpener is the default SinkOpener: csv is the only format the
// in-tree reference implementation understands (§1's non-goal "row-batch
// I/O implementations for every format" — one concrete format is enough to
// exercise the Sink boundary contract end-to-end).
func dispatchSinkOpener(destination, format string, schema types.Schema) (SinkWriter, error) {
	switch format {
	case "", "csv":
		return OpenCSVSink(destination, schema)
	default:
		return nil, emerrors.New(emerrors.KindConfig, "sink: unsupported format %q", format)
	}
}
