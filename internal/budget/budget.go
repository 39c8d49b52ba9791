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

// Package budget implements the process-wide memory budget and scoped
// guards of §4.C: a bounded reservation pool with no blocking wait —
// contention is surfaced to the caller as BudgetExceeded so it can spill.
package budget

import (
	"sync/atomic"

	"github.com/logannye/emsqrt/internal/emerrors"
)

// Budget is an explicitly-passed handle (§9: "represent them as
// explicitly passed handles, not ambient globals, so tests can
// instantiate independent engines per test") around a fixed byte
// capacity.
type Budget struct {
	capacity uint64
	used     uint64
}

// New returns a Budget with the given byte capacity.
func New(capacityBytes uint64) *Budget {
	return &Budget{capacity: capacityBytes}
}

// Capacity returns the configured byte capacity.
func (b *Budget) Capacity() uint64 { return b.capacity }

// Used returns the bytes currently reserved across all live guards.
func (b *Budget) Used() uint64 { return atomic.LoadUint64(&b.used) }

// Reserve attempts to reserve n bytes under tag, returning a Guard that
// releases those bytes exactly once, on Release (or Close). The happy
// path is a single atomic CAS loop (§5); the failure path takes no locks
// and returns a BudgetExceeded error carrying the dedicated suggestion
// set (§7).
func (b *Budget) Reserve(tag string, n uint64) (*Guard, error) {
	for {
		cur := atomic.LoadUint64(&b.used)
		next := cur + n
		if next > b.capacity {
			return nil, emerrors.BudgetExceeded(tag, n, b.capacity, cur)
		}
		if atomic.CompareAndSwapUint64(&b.used, cur, next) {
			return &Guard{budget: b, tag: tag, bytes: n}, nil
		}
	}
}

// Guard is a scoped handle over a reservation; its bytes return to the
// pool exactly once, whichever of Release/Close runs first along any
// code path that holds it (§4.C, §GLOSSARY).
type Guard struct {
	budget   *Budget
	tag      string
	bytes    uint64
	released uint32
}

// Tag returns the reservation's tag.
func (g *Guard) Tag() string { return g.tag }

// Bytes returns the number of bytes this guard holds reserved.
func (g *Guard) Bytes() uint64 { return g.bytes }

// Release returns the guard's bytes to the budget. A second call is a
// caller bug (SPEC_FULL §3's GuardDoubleRelease) and returns a Config
// error instead of corrupting the shared counter.
func (g *Guard) Release() error {
	if !atomic.CompareAndSwapUint32(&g.released, 0, 1) {
		return emerrors.New(emerrors.KindConfig, "guard for tag %q released twice", g.tag)
	}
	atomic.AddUint64(&g.budget.used, ^(g.bytes - 1)) // subtract g.bytes
	return nil
}

// Close is an alias for Release so Guard satisfies io.Closer, matching
// the "releases on drop" idiom via `defer guard.Close()`.
func (g *Guard) Close() error { return g.Release() }
