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

package exec_test

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/exec"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/types"
)

func writeCSV(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var body string
	for i, l := range lines {
		if i > 0 {
			body += "\n"
		}
		body += l
	}
	require.NoError(t, os.WriteFile(path, []byte(body+"\n"), 0o644))
	return path
}

func peopleFields() []physical.FieldJSON {
	return []physical.FieldJSON{
		{Name: "id", DataType: "i64"},
		{Name: "name", DataType: "utf8"},
		{Name: "age", DataType: "i64"},
	}
}

func TestScanReadsAllRowsAcrossMultipleBlocks(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv", []string{
		"id,name,age",
		"1,alice,30",
		"2,bob,40",
		"3,carol,50",
	})

	cfg, err := json.Marshal(map[string]any{"source": path, "fields": peopleFields()})
	require.NoError(t, err)
	op, err := exec.NewScan(cfg, exec.Deps{RowsPerBlock: 2})
	require.NoError(t, err)

	b := budget.New(1 << 20)
	first, err := op.EvalBlock(nil, b)
	require.NoError(t, err)
	require.Equal(t, 2, first.NumRows())

	second, err := op.EvalBlock(nil, b)
	require.NoError(t, err)
	require.Equal(t, 1, second.NumRows())

	third, err := op.EvalBlock(nil, b)
	require.NoError(t, err)
	require.Equal(t, 0, third.NumRows())

	closer, ok := op.(exec.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
}

func TestOpenCSVSourceParsesTypedColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "people.csv", []string{
		"id,name,age",
		"1,alice,30",
		",bob,",
	})
	schema := physical.SchemaFromJSON(peopleFields())
	schema.Fields[0].Nullable = true
	schema.Fields[2].Nullable = true

	r, err := exec.OpenCSVSource(path, schema)
	require.NoError(t, err)
	defer r.Close()

	batch, err := r.ReadBatch(10)
	require.NoError(t, err)
	require.Equal(t, 2, batch.NumRows())

	_, err = r.ReadBatch(10)
	require.ErrorIs(t, err, io.EOF)

	idCol, _, ok := batch.ColumnByName("id")
	require.True(t, ok)
	require.Equal(t, types.I64(1), idCol.Values[0])
	require.True(t, idCol.Values[1].IsNull())

	ageCol, _, ok := batch.ColumnByName("age")
	require.True(t, ok)
	require.Equal(t, types.I64(30), ageCol.Values[0])
	require.True(t, ageCol.Values[1].IsNull())
}
