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
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/logannye/emsqrt/internal/emerrors"
)

// compress applies codec to uncompressed, returning the bytes that are
// persisted as a segment's payload (§4.D, §6). CodecNone is the identity.
func compress(codec Codec, uncompressed []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return uncompressed, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, emerrors.Wrap(err, "spill: construct zstd encoder")
		}
		defer enc.Close()
		return enc.EncodeAll(uncompressed, nil), nil
	case CodecLz4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(uncompressed); err != nil {
			return nil, emerrors.Wrap(err, "spill: lz4 compress")
		}
		if err := w.Close(); err != nil {
			return nil, emerrors.Wrap(err, "spill: lz4 compress")
		}
		return buf.Bytes(), nil
	default:
		return nil, emerrors.New(emerrors.KindConfig, "unknown codec byte %d", codec)
	}
}

// decompress reverses compress, given the expected uncompressed length
// (already validated against the header's uncompressed_len).
func decompress(codec Codec, payload []byte, uncompressedLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, emerrors.Wrap(err, "spill: construct zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, emerrors.New(emerrors.KindStorage, "zstd decompression failed: %v", err)
		}
		return out, nil
	case CodecLz4:
		r := lz4.NewReader(bytes.NewReader(payload))
		out := make([]byte, uncompressedLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, emerrors.New(emerrors.KindStorage, "lz4 decompression failed: %v", err)
		}
		return out, nil
	default:
		return nil, emerrors.New(emerrors.KindConfig, "unknown codec byte %d", codec)
	}
}
