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
	"encoding/json"
	"io"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

type scanConfig struct {
	Source string               `json:"source"`
	Fields []physical.FieldJSON `json:"fields"`
}

// Scan streams rows from a SourceReader opened lazily on its first
// EvalBlock call, advancing sequentially across calls without replay — the
// boundary contract of §4.I rather than an operator that re-seeks by the
// block's RangeRows, since TE's block decomposition for a Source already
// hands out monotonically advancing row ranges in schedule order.
type Scan struct {
	source    string
	schema    types.Schema
	rows      int64
	opener    SourceOpener
	reader    SourceReader
	exhausted bool
}

// NewScan is this kernel's Maker, registered under physical.KeySource.
func NewScan(config json.RawMessage, deps Deps) (Operator, error) {
	var cfg scanConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "scan: bad config: %v", err)
	}
	opener := deps.OpenSource
	if opener == nil {
		opener = OpenCSVSource
	}
	rows := deps.RowsPerBlock
	if rows <= 0 {
		rows = 1000
	}
	return &Scan{
		source: cfg.Source,
		schema: physical.SchemaFromJSON(cfg.Fields),
		rows:   rows,
		opener: opener,
	}, nil
}

func (s *Scan) Name() string { return "Scan" }

func (s *Scan) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: rowWidth(s.schema), OverheadBytes: 4096}
}

func (s *Scan) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	return OpPlan{OutputSchema: s.schema, Footprint: s.MemoryNeed(0, 0)}, nil
}

func (s *Scan) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if s.exhausted {
		return emptyBatch(s.schema), nil
	}
	if s.reader == nil {
		r, err := s.opener(s.source, s.schema)
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("Scan", 0, 0, 0, 0))
		}
		s.reader = r
	}
	batch, err := s.reader.ReadBatch(int(s.rows))
	if err != nil && err != io.EOF {
		return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("Scan", 0, 0, 0, 0))
	}
	if err == io.EOF {
		s.exhausted = true
	}
	return batch, nil
}

// Close releases the underlying SourceReader, satisfying exec.Closer.
func (s *Scan) Close() error {
	if s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
