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

package exprlang

import "github.com/logannye/emsqrt/internal/emerrors"

func columnNotFound(name string) error {
	return emerrors.New(emerrors.KindSchema, "unknown column %q in expression", name)
}

func rowOutOfRange(row, n int) error {
	return emerrors.New(emerrors.KindPlan, "row index %d out of range [0,%d)", row, n)
}

func unknownOperator() error {
	return emerrors.New(emerrors.KindPlan, "unknown operator")
}
