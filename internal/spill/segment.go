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

// Package spill implements the EM-√ spill manager (§4.D): a pluggable
// blob store (filesystem, badger) holding checksummed, optionally
// compressed segments, and the codec registry (none/zstd/lz4) each
// segment self-describes (§6).
package spill

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/types"
)

// Codec names a segment's compression codec (§6 codec codes).
type Codec uint8

const (
	CodecNone Codec = 0
	CodecZstd Codec = 1
	CodecLz4  Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLz4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCodec maps a config string to a Codec, failing with a Config
// error on an unrecognized name (§7: "unknown codec").
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLz4, nil
	default:
		return 0, emerrors.New(emerrors.KindConfig, "unknown codec %q", name)
	}
}

var magic = [4]byte{'E', 'M', 'S', 'Q'}

const headerVersion uint16 = 1
const headerLen = 4 + 2 + 1 + 1 + 8 + 8 + 32 // = 56 bytes

// SegmentMeta describes one spilled artifact (§3, §4.D).
type SegmentMeta struct {
	Name            string
	SpillID         types.SpillId
	RunIndex        uint64
	UncompressedLen uint64
	CompressedLen   uint64
	Codec           Codec
	Checksum        [32]byte
}

// SegmentName derives a collision-free file/key name from spill_id and
// run_index (§4.D: "guaranteeing that segments from parallel operators
// cannot collide").
func SegmentName(spillID types.SpillId, runIndex uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(spillID))
	binary.BigEndian.PutUint64(buf[8:], runIndex)
	return "spill-" + hexEncode(buf[:])
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

// encodeSegment serializes batch under codec into the on-disk segment
// format of §6: header followed by the (possibly compressed) payload.
func encodeSegment(batch types.RowBatch, codec Codec, spillID types.SpillId, runIndex uint64) ([]byte, SegmentMeta, error) {
	var raw bytes.Buffer
	if err := types.EncodeRowBatch(&raw, batch); err != nil {
		return nil, SegmentMeta{}, emerrors.Wrap(err, "spill: encode row batch")
	}
	uncompressed := raw.Bytes()
	payload, err := compress(codec, uncompressed)
	if err != nil {
		return nil, SegmentMeta{}, err
	}
	checksum := sha256.Sum256(payload)

	var out bytes.Buffer
	out.Write(magic[:])
	writeU16(&out, headerVersion)
	out.WriteByte(byte(codec))
	out.WriteByte(0) // reserved
	writeU64(&out, uint64(len(uncompressed)))
	writeU64(&out, uint64(len(payload)))
	out.Write(checksum[:])
	out.Write(payload)

	meta := SegmentMeta{
		Name:            SegmentName(spillID, runIndex),
		SpillID:         spillID,
		RunIndex:        runIndex,
		UncompressedLen: uint64(len(uncompressed)),
		CompressedLen:   uint64(len(payload)),
		Codec:           codec,
		Checksum:        checksum,
	}
	return out.Bytes(), meta, nil
}

// decodeSegment reverses encodeSegment, reserving the decompressed
// buffer's bytes under budget tag "spill_read" (§4.D) before
// deserializing, and failing with ChecksumMismatch on corruption (§8).
func decodeSegment(raw []byte, b *budget.Budget) (types.RowBatch, SegmentMeta, error) {
	if len(raw) < headerLen {
		return types.RowBatch{}, SegmentMeta{}, emerrors.New(emerrors.KindStorage, "segment truncated: %d bytes < header length %d", len(raw), headerLen)
	}
	if !bytes.Equal(raw[:4], magic[:]) {
		return types.RowBatch{}, SegmentMeta{}, emerrors.New(emerrors.KindStorage, "bad segment magic")
	}
	r := bytes.NewReader(raw[4:])
	version := readU16(r)
	_ = version
	codecByte, _ := r.ReadByte()
	_, _ = r.ReadByte() // reserved
	uncompressedLen := readU64(r)
	compressedLen := readU64(r)
	var checksum [32]byte
	if _, err := io.ReadFull(r, checksum[:]); err != nil {
		return types.RowBatch{}, SegmentMeta{}, emerrors.Wrap(err, "spill: read checksum")
	}
	payloadStart := len(raw) - r.Len()
	if uint64(len(raw)-payloadStart) != compressedLen {
		return types.RowBatch{}, SegmentMeta{}, emerrors.New(emerrors.KindStorage, "segment payload length mismatch")
	}
	payload := raw[payloadStart:]

	guard, err := b.Reserve("spill_read", uncompressedLen+headerLen)
	if err != nil {
		return types.RowBatch{}, SegmentMeta{}, err
	}
	defer guard.Release()

	actual := sha256.Sum256(payload)
	if actual != checksum {
		return types.RowBatch{}, SegmentMeta{}, emerrors.ChecksumMismatch("segment")
	}

	codec := Codec(codecByte)
	uncompressed, err := decompress(codec, payload, int(uncompressedLen))
	if err != nil {
		return types.RowBatch{}, SegmentMeta{}, err
	}
	batch, err := types.DecodeRowBatch(bytes.NewReader(uncompressed))
	if err != nil {
		return types.RowBatch{}, SegmentMeta{}, emerrors.Wrap(err, "spill: decode row batch")
	}
	meta := SegmentMeta{
		UncompressedLen: uncompressedLen,
		CompressedLen:   compressedLen,
		Codec:           codec,
		Checksum:        checksum,
	}
	return batch, meta, nil
}

func writeU16(w *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.Write(buf[:])
}

func writeU64(w *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func readU16(r *bytes.Reader) uint16 {
	var buf [2]byte
	io.ReadFull(r, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func readU64(r *bytes.Reader) uint64 {
	var buf [8]byte
	io.ReadFull(r, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}
