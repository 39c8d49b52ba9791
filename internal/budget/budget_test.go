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

package budget_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
)

func TestReserveAndRelease(t *testing.T) {
	b := budget.New(100)
	g, err := b.Reserve("hash_table", 40)
	require.NoError(t, err)
	require.EqualValues(t, 40, b.Used())

	g2, err := b.Reserve("sort_run", 60)
	require.NoError(t, err)
	require.EqualValues(t, 100, b.Used())

	require.NoError(t, g.Release())
	require.EqualValues(t, 60, b.Used())
	require.NoError(t, g2.Release())
	require.EqualValues(t, 0, b.Used())
}

func TestReserveExceedingCapacityFails(t *testing.T) {
	b := budget.New(10)
	_, err := b.Reserve("join_build", 11)
	require.Error(t, err)
	var emErr *emerrors.Error
	require.ErrorAs(t, err, &emErr)
	require.Equal(t, emerrors.KindBudget, emErr.Kind)
}

func TestZeroCapacityRejectsNonTrivialAllocation(t *testing.T) {
	b := budget.New(0)
	_, err := b.Reserve("spill_read", 1)
	require.Error(t, err)
}

func TestDoubleReleaseIsReported(t *testing.T) {
	b := budget.New(10)
	g, err := b.Reserve("t", 5)
	require.NoError(t, err)
	require.NoError(t, g.Release())
	require.Error(t, g.Release())
}
