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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePipelineFixture(t *testing.T, dir string) (pipelinePath, srcPath, dstPath string) {
	t.Helper()
	srcPath = filepath.Join(dir, "in.csv")
	dstPath = filepath.Join(dir, "out.csv")
	pipelinePath = filepath.Join(dir, "pipeline.yaml")

	rows := "id,age\n"
	for i := 0; i < 20; i++ {
		rows += fmt.Sprintf("%d,%d\n", i, 20+i)
	}
	require.NoError(t, os.WriteFile(srcPath, []byte(rows), 0o644))

	doc := fmt.Sprintf(`
steps:
  - op: scan
    source: %s
    fields:
      - {name: id, type: i64}
      - {name: age, type: i64}
    estimated_rows: 20
  - op: filter
    expr: "age > 25"
  - op: sink
    destination: %s
    format: csv
`, srcPath, dstPath)
	require.NoError(t, os.WriteFile(pipelinePath, []byte(doc), 0o644))
	return pipelinePath, srcPath, dstPath
}

func TestValidateCommandAcceptsWellFormedPipeline(t *testing.T) {
	dir := t.TempDir()
	pipelinePath, _, _ := writePipelineFixture(t, dir)

	cmd := newValidateCmd()
	cmd.SetArgs([]string{"--pipeline", pipelinePath})
	require.NoError(t, cmd.Execute())
}

func TestValidateCommandRejectsUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
steps:
  - op: scan
    source: in.csv
    fields:
      - {name: id, type: i64}
  - op: filter
    expr: "age > 25"
  - op: sink
    destination: out.csv
`), 0o644))

	cmd := newValidateCmd()
	cmd.SetArgs([]string{"--pipeline", path})
	require.Error(t, cmd.Execute())
}

func TestRunCommandExecutesPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	pipelinePath, _, dstPath := writePipelineFixture(t, dir)
	logger = zap.NewNop()

	cmd := newRunCmd()
	cmd.SetArgs([]string{"--pipeline", pipelinePath, "--memory-cap", "1048576"})
	require.NoError(t, cmd.Execute())

	out, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	require.Contains(t, string(out), "id,age")
}

func TestExplainCommandPrintsBlockSummary(t *testing.T) {
	dir := t.TempDir()
	pipelinePath, _, _ := writePipelineFixture(t, dir)

	cmd := newExplainCmd()
	cmd.SetArgs([]string{"--pipeline", pipelinePath})
	require.NoError(t, cmd.Execute())
}
