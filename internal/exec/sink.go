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

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

type sinkConfig struct {
	Destination string               `json:"destination"`
	Format      string               `json:"format"`
	Fields      []physical.FieldJSON `json:"fields"`
}

// Sink writes every batch it is handed to a SinkWriter opened lazily on
// the first call (§4.I): the first call, even with an empty batch, writes
// a header, every later call appends rows only.
type Sink struct {
	destination string
	format      string
	schema      types.Schema
	opener      SinkOpener
	writer      SinkWriter
}

// NewSink is this kernel's Maker, registered under physical.KeySink.
func NewSink(config json.RawMessage, deps Deps) (Operator, error) {
	var cfg sinkConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "sink: bad config: %v", err)
	}
	opener := deps.OpenSink
	if opener == nil {
		opener = dispatchSinkOpener
	}
	return &Sink{
		destination: cfg.Destination,
		format:      cfg.Format,
		schema:      physical.SchemaFromJSON(cfg.Fields),
		opener:      opener,
	}, nil
}

func (s *Sink) Name() string { return "Sink" }

func (s *Sink) MemoryNeed(rows, bytes int64) te.Footprint {
	return te.Footprint{BytesPerRow: rowWidth(s.schema), OverheadBytes: 4096}
}

func (s *Sink) Plan(inputSchemas []types.Schema) (OpPlan, error) {
	return OpPlan{OutputSchema: s.schema, Footprint: s.MemoryNeed(0, 0)}, nil
}

func (s *Sink) EvalBlock(inputs []types.RowBatch, b *budget.Budget) (types.RowBatch, error) {
	if len(inputs) != 1 {
		return types.RowBatch{}, emerrors.New(emerrors.KindPlan, "sink: expected exactly one input, got %d", len(inputs))
	}
	if s.writer == nil {
		w, err := s.opener(s.destination, s.format, s.schema)
		if err != nil {
			return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("Sink", 0, 0, 0, 0))
		}
		s.writer = w
	}
	batch := inputs[0]
	if err := s.writer.WriteBatch(batch); err != nil {
		return types.RowBatch{}, emerrors.Wrap(err, emerrors.OperatorContext("Sink", 0, 0, int64(batch.NumRows()), 0))
	}
	return batch, nil
}

// Close flushes and releases the underlying SinkWriter, satisfying
// exec.Closer; the engine runtime calls this once after this operator's
// last scheduled block has run.
func (s *Sink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
