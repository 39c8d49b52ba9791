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

import "github.com/logannye/emsqrt/internal/emerrors"

// Add implements `+` (§4.B): numeric same-variant-class addition widened
// to float64, or string concatenation when both operands are Utf8.
func (s Scalar) Add(o Scalar) (Scalar, error) {
	if s.kind == KindUtf8 && o.kind == KindUtf8 {
		return Utf8(s.s + o.s), nil
	}
	if !s.kind.isNumeric() || !o.kind.isNumeric() {
		return Scalar{}, emerrors.New(emerrors.KindPlan, "cannot add %s and %s", s.kind, o.kind)
	}
	return numericResult(s, o, s.AsFloat64()+o.AsFloat64()), nil
}

// Sub implements `-`.
func (s Scalar) Sub(o Scalar) (Scalar, error) {
	if !s.kind.isNumeric() || !o.kind.isNumeric() {
		return Scalar{}, emerrors.New(emerrors.KindPlan, "cannot subtract %s and %s", s.kind, o.kind)
	}
	return numericResult(s, o, s.AsFloat64()-o.AsFloat64()), nil
}

// Mul implements `*`.
func (s Scalar) Mul(o Scalar) (Scalar, error) {
	if !s.kind.isNumeric() || !o.kind.isNumeric() {
		return Scalar{}, emerrors.New(emerrors.KindPlan, "cannot multiply %s and %s", s.kind, o.kind)
	}
	return numericResult(s, o, s.AsFloat64()*o.AsFloat64()), nil
}

// Div implements `/`; division by zero fails with an Exec (Plan-kind)
// error per §4.B.
func (s Scalar) Div(o Scalar) (Scalar, error) {
	if !s.kind.isNumeric() || !o.kind.isNumeric() {
		return Scalar{}, emerrors.New(emerrors.KindPlan, "cannot divide %s and %s", s.kind, o.kind)
	}
	divisor := o.AsFloat64()
	if divisor == 0 {
		return Scalar{}, emerrors.New(emerrors.KindPlan, "division by zero")
	}
	return numericResult(s, o, s.AsFloat64()/divisor), nil
}

// numericResult picks I64 when both operands are integral and the result
// is exactly representable, otherwise F64 — mirroring the widen-to-larger-
// type rule of §4.A while keeping exact integer arithmetic in the common
// case.
func numericResult(s, o Scalar, v float64) Scalar {
	if (s.kind == KindI32 || s.kind == KindI64) && (o.kind == KindI32 || o.kind == KindI64) && v == float64(int64(v)) {
		return I64(int64(v))
	}
	return F64(v)
}
