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

import "math"

func mathFloatBits(f float64) uint64 { return math.Float64bits(f) }

func float32bits(f float32) uint32       { return math.Float32bits(f) }
func float32frombits(b uint32) float32   { return math.Float32frombits(b) }
func float64frombits(b uint64) float64   { return math.Float64frombits(b) }
