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

import (
	"encoding/binary"
	"crypto/sha256"
)

// Hash256 is the canonical content hash (§4.A): SHA-256 over a value's
// stable serialized form.
type Hash256 [32]byte

// CombineHash XORs two hashes byte-wise; §4.A and §8 require this
// combinator to be commutative, which byte-wise XOR trivially is.
func CombineHash(a, b Hash256) Hash256 {
	var out Hash256
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// stableSerialize writes the canonical, order-preserving byte encoding of
// s into the running hash state: a kind tag followed by a length-prefixed
// value payload.
func (s Scalar) stableSerialize() []byte {
	buf := []byte{byte(s.kind)}
	switch s.kind {
	case KindNull:
		// no payload
	case KindBool:
		if s.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindI32, KindI64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(s.i))
		buf = append(buf, tmp[:]...)
	case KindF32, KindF64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], mathFloatBits(s.f))
		buf = append(buf, tmp[:]...)
	case KindUtf8:
		buf = append(buf, lengthPrefixed([]byte(s.s))...)
	case KindBinary:
		buf = append(buf, lengthPrefixed(s.bin)...)
	}
	return buf
}

func lengthPrefixed(b []byte) []byte {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	out := make([]byte, 0, 8+len(b))
	out = append(out, lenBuf[:]...)
	out = append(out, b...)
	return out
}

// Hash returns the Hash256 of s's stable serialized form.
func (s Scalar) Hash() Hash256 {
	return sha256.Sum256(s.stableSerialize())
}

// HashBytes returns the Hash256 of an arbitrary byte string; used to hash
// serialized plans, binding maps, and TE block orders (§4.A).
func HashBytes(b []byte) Hash256 {
	return sha256.Sum256(b)
}

// HashTuple hashes an ordered tuple of scalars as a single Hash256,
// mixing in a separator between fields so {("a","b")} != {("ab",)} —
// needed for multi-column group-by keys (§9 open question) and join keys.
func HashTuple(vals []Scalar) Hash256 {
	h := sha256.New()
	for _, v := range vals {
		ser := v.stableSerialize()
		h.Write(lengthPrefixed(ser))
	}
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}
