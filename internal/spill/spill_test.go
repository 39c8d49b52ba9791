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

package spill_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/types"
)

func makeBatch(n int) types.RowBatch {
	vals := make([]types.Scalar, n)
	for i := range vals {
		vals[i] = types.I64(int64(i))
	}
	b, _ := types.NewRowBatch([]types.Column{{Name: "id", Values: vals}})
	return b
}

func TestRoundTripAllCodecs(t *testing.T) {
	for _, codec := range []spill.Codec{spill.CodecNone, spill.CodecZstd, spill.CodecLz4} {
		codec := codec
		t.Run(codec.String(), func(t *testing.T) {
			store, err := spill.NewFileStore(t.TempDir())
			require.NoError(t, err)
			mgr := spill.NewManager(store, codec)

			batch := makeBatch(1000)
			meta, err := mgr.WriteBatch(batch, types.SpillId(1), 0)
			require.NoError(t, err)

			b := budget.New(10 << 20)
			got, err := mgr.ReadBatch(meta, b)
			require.NoError(t, err)
			require.Equal(t, batch, got)
			require.EqualValues(t, 0, b.Used())
		})
	}
}

func TestChecksumMismatchOnCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := spill.NewFileStore(dir)
	require.NoError(t, err)
	mgr := spill.NewManager(store, spill.CodecZstd)

	batch := makeBatch(1000)
	meta, err := mgr.WriteBatch(batch, types.SpillId(7), 3)
	require.NoError(t, err)

	path := filepath.Join(dir, meta.Name+".seg")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip one payload byte, well past the fixed-size header.
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	b := budget.New(10 << 20)
	_, err = mgr.ReadBatch(meta, b)
	require.Error(t, err)
}

func TestSegmentNameDerivedFromSpillIDAndRunIndexNeverCollides(t *testing.T) {
	a := spill.SegmentName(types.SpillId(1), 0)
	b := spill.SegmentName(types.SpillId(1), 1)
	c := spill.SegmentName(types.SpillId(2), 0)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestDeleteAndListSegments(t *testing.T) {
	store, err := spill.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := spill.NewManager(store, spill.CodecNone)

	meta, err := mgr.WriteBatch(makeBatch(10), types.SpillId(1), 0)
	require.NoError(t, err)
	require.Len(t, mgr.ListSegments(), 1)

	require.NoError(t, mgr.DeleteSegment(meta.Name))
	require.Len(t, mgr.ListSegments(), 0)
}
