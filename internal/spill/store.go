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

package spill

import (
	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/types"
)

// BlobStore is the pluggable backend a Manager writes segments through
// (§4.D: "object-store-like backend"). Two implementations ship in-tree:
// FileStore (one file per segment) and BadgerStore (an embedded LSM KV
// store).
type BlobStore interface {
	// Put persists raw (an already-encoded segment: header + payload)
	// under name, atomically with respect to concurrent readers.
	Put(name string, raw []byte) error
	// Get retrieves the raw bytes previously stored under name.
	Get(name string) ([]byte, error)
	// List returns the names of all segments currently stored.
	List() ([]string, error)
	// Delete removes the named segment.
	Delete(name string) error
}

// Manager owns a BlobStore and the codec used for new writes, and
// exposes the write_batch/read_batch/list_segments/delete_segment
// contract of §4.D. Per §5, the in-memory segment index is guarded by a
// single mutex while file/store I/O happens outside the lock.
type Manager struct {
	store BlobStore
	codec Codec
	ids   *types.IDAllocator

	mu    chan struct{} // binary semaphore; see lock()/unlock() below
	index map[string]SegmentMeta
}

// NewManager returns a Manager that writes new segments with codec and
// persists them through store.
func NewManager(store BlobStore, codec Codec) *Manager {
	return &Manager{
		store: store,
		codec: codec,
		ids:   types.NewIDAllocator(),
		mu:    make(chan struct{}, 1),
		index: make(map[string]SegmentMeta),
	}
}

func (m *Manager) lock()   { m.mu <- struct{}{} }
func (m *Manager) unlock() { <-m.mu }

// WriteBatch serializes batch, applies the manager's codec, computes the
// segment header + checksum, and persists it through the blob store
// (§4.D write_batch). The in-memory index update is the only critical
// section; the store.Put call happens outside the lock.
func (m *Manager) WriteBatch(batch types.RowBatch, spillID types.SpillId, runIndex uint64) (SegmentMeta, error) {
	raw, meta, err := encodeSegment(batch, m.codec, spillID, runIndex)
	if err != nil {
		return SegmentMeta{}, err
	}
	if err := m.store.Put(meta.Name, raw); err != nil {
		return SegmentMeta{}, err
	}
	m.lock()
	m.index[meta.Name] = meta
	m.unlock()
	return meta, nil
}

// ReadBatch retrieves and decodes the segment described by meta,
// reserving the decompressed size under budget tag "spill_read" and
// failing with ChecksumMismatch on corruption (§4.D read_batch, §8).
// Per §5, reads may proceed concurrently with other reads since segment
// files are immutable after creation — ReadBatch takes no lock.
func (m *Manager) ReadBatch(meta SegmentMeta, b *budget.Budget) (types.RowBatch, error) {
	raw, err := m.store.Get(meta.Name)
	if err != nil {
		return types.RowBatch{}, err
	}
	batch, _, err := decodeSegment(raw, b)
	return batch, err
}

// ListSegments returns all segments currently known to the manager's
// index.
func (m *Manager) ListSegments() []SegmentMeta {
	m.lock()
	defer m.unlock()
	out := make([]SegmentMeta, 0, len(m.index))
	for _, meta := range m.index {
		out = append(out, meta)
	}
	return out
}

// DeleteSegment removes a segment from the store and the in-memory
// index (§4.D delete_segment, used for end-of-run / between-phase GC).
func (m *Manager) DeleteSegment(name string) error {
	if err := m.store.Delete(name); err != nil {
		return err
	}
	m.lock()
	delete(m.index, name)
	m.unlock()
	return nil
}

// NextSpillID allocates a fresh SpillId for a new spilling operator
// instance.
func (m *Manager) NextSpillID() types.SpillId { return m.ids.NextSpillId() }
