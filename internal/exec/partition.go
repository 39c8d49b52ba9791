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
	"github.com/spaolacci/murmur3"

	"github.com/logannye/emsqrt/internal/types"
)

// maxPartitions and targetPartitionBytes bound the partition count
// choosePartitionCount picks. Neither the Grace hash join nor the
// partitioned aggregate path calls it: both use a fixed 16 partitions
// when a spill manager is present and 1 otherwise.
const (
	maxPartitions        = 256
	targetPartitionBytes = 1 << 20
)

// choosePartitionCount picks the smallest partition count, capped at
// maxPartitions, that keeps the estimated bytes per partition at or below
// targetPartitionBytes.
func choosePartitionCount(estimatedBytes int64) int {
	if estimatedBytes <= targetPartitionBytes {
		return 1
	}
	n := 1
	for int64(n)*targetPartitionBytes < estimatedBytes && n < maxPartitions {
		n *= 2
	}
	if n > maxPartitions {
		n = maxPartitions
	}
	return n
}

// partitionOf hashes an already-computed Hash256 key tuple down to a
// partition index via murmur3 over the hash's bytes — distinct from the
// SHA-256 used for content identity (§4.A), murmur3 is the fast,
// non-cryptographic hash the pack wires in specifically for bucket
// assignment.
func partitionOf(key types.Hash256, n int) int {
	if n <= 1 {
		return 0
	}
	h := murmur3.Sum32(key[:])
	return int(h % uint32(n))
}
