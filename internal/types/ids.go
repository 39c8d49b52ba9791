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

import "sync/atomic"

// OpId, BlockId and SpillId are opaque 64-bit handles assigned
// monotonically by the lowering and scheduling phases (§3). Equality and
// hashing are structural (they are plain integers).
type (
	OpId    uint64
	BlockId uint64
	SpillId uint64
)

// IDAllocator hands out monotonically increasing ids starting at 1 (0 is
// reserved as "no id"/zero value) for one of the three id spaces. It is
// safe for concurrent use, matching the "currently single-threaded" (§5)
// engine as well as the future parallel-block-execution extension.
type IDAllocator struct {
	next uint64
}

// NewIDAllocator returns an allocator whose first Next() call returns 1.
func NewIDAllocator() *IDAllocator { return &IDAllocator{} }

// Next returns the next id in the sequence.
func (a *IDAllocator) Next() uint64 {
	return atomic.AddUint64(&a.next, 1)
}

// NextOpId is a typed convenience wrapper over Next.
func (a *IDAllocator) NextOpId() OpId { return OpId(a.Next()) }

// NextBlockId is a typed convenience wrapper over Next.
func (a *IDAllocator) NextBlockId() BlockId { return BlockId(a.Next()) }

// NextSpillId is a typed convenience wrapper over Next.
func (a *IDAllocator) NextSpillId() SpillId { return SpillId(a.Next()) }
