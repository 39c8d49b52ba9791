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
	"io"

	"github.com/logannye/emsqrt/internal/emerrors"
)

// EncodeScalar writes s's exact round-trip encoding (distinct from the
// hash's stable-serialization form only in that it must be reversible,
// whereas the hash form need not be). Byte-identical on Utf8/Binary;
// bit-identical on numeric columns per §8's round-trip law.
func EncodeScalar(w io.Writer, s Scalar) error {
	if _, err := w.Write([]byte{byte(s.kind)}); err != nil {
		return err
	}
	switch s.kind {
	case KindNull:
		return nil
	case KindBool:
		v := byte(0)
		if s.b {
			v = 1
		}
		_, err := w.Write([]byte{v})
		return err
	case KindI32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(s.i)))
		_, err := w.Write(buf[:])
		return err
	case KindI64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(s.i))
		_, err := w.Write(buf[:])
		return err
	case KindF32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], float32bits(float32(s.f)))
		_, err := w.Write(buf[:])
		return err
	case KindF64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], mathFloatBits(s.f))
		_, err := w.Write(buf[:])
		return err
	case KindUtf8:
		return writeLenPrefixed(w, []byte(s.s))
	case KindBinary:
		return writeLenPrefixed(w, s.bin)
	default:
		return emerrors.New(emerrors.KindSchema, "cannot encode scalar of unknown kind %d", s.kind)
	}
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeScalar reads one scalar previously written by EncodeScalar.
func DecodeScalar(r io.Reader) (Scalar, error) {
	var kindBuf [1]byte
	if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
		return Scalar{}, err
	}
	kind := Kind(kindBuf[0])
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Scalar{}, err
		}
		return Bool(b[0] != 0), nil
	case KindI32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Scalar{}, err
		}
		return I32(int32(binary.LittleEndian.Uint32(buf[:]))), nil
	case KindI64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Scalar{}, err
		}
		return I64(int64(binary.LittleEndian.Uint64(buf[:]))), nil
	case KindF32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Scalar{}, err
		}
		return F32(float32frombits(binary.LittleEndian.Uint32(buf[:]))), nil
	case KindF64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Scalar{}, err
		}
		return F64(float64frombits(binary.LittleEndian.Uint64(buf[:]))), nil
	case KindUtf8:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Scalar{}, err
		}
		return Utf8(string(b)), nil
	case KindBinary:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Scalar{}, err
		}
		return Binary(b), nil
	default:
		return Scalar{}, emerrors.New(emerrors.KindStorage, "unknown scalar kind tag %d while decoding", kind)
	}
}

// EncodeRowBatch writes the full column-headers-then-values encoding of a
// batch: column count, then per column a length-prefixed name, a data
// kind byte, a row count, then that many encoded scalars.
func EncodeRowBatch(w io.Writer, b RowBatch) error {
	var numCols [4]byte
	binary.LittleEndian.PutUint32(numCols[:], uint32(len(b.Columns)))
	if _, err := w.Write(numCols[:]); err != nil {
		return err
	}
	for _, col := range b.Columns {
		if err := writeLenPrefixed(w, []byte(col.Name)); err != nil {
			return err
		}
		var numRows [4]byte
		binary.LittleEndian.PutUint32(numRows[:], uint32(len(col.Values)))
		if _, err := w.Write(numRows[:]); err != nil {
			return err
		}
		for _, v := range col.Values {
			if err := EncodeScalar(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeRowBatch reads a batch previously written by EncodeRowBatch.
func DecodeRowBatch(r io.Reader) (RowBatch, error) {
	var numCols [4]byte
	if _, err := io.ReadFull(r, numCols[:]); err != nil {
		return RowBatch{}, err
	}
	n := binary.LittleEndian.Uint32(numCols[:])
	cols := make([]Column, n)
	for i := range cols {
		name, err := readLenPrefixed(r)
		if err != nil {
			return RowBatch{}, err
		}
		var numRows [4]byte
		if _, err := io.ReadFull(r, numRows[:]); err != nil {
			return RowBatch{}, err
		}
		rows := binary.LittleEndian.Uint32(numRows[:])
		vals := make([]Scalar, rows)
		for j := range vals {
			v, err := DecodeScalar(r)
			if err != nil {
				return RowBatch{}, err
			}
			vals[j] = v
		}
		cols[i] = Column{Name: string(name), Values: vals}
	}
	return RowBatch{Columns: cols}, nil
}
