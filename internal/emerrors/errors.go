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

// Package emerrors defines the six error kinds EM-√ propagates between
// layers (§7) and the context-chain wrapping every operator and the engine
// runtime apply before an error crosses a component boundary.
package emerrors

import (
	"fmt"

	pingcaperr "github.com/pingcap/errors"
)

// Kind classifies an error for the purposes of retry policy (§4.J) and
// user-facing suggestions (§7).
type Kind uint8

const (
	// KindConfig covers a misconfigured cap, unknown codec, or bad path.
	KindConfig Kind = iota
	// KindSchema covers an unknown column, type mismatch, or nullable
	// violation on write.
	KindSchema
	// KindPlan covers a malformed pipeline, unsupported step combination,
	// or missing source.
	KindPlan
	// KindBudget is BudgetExceeded.
	KindBudget
	// KindStorage covers I/O failure, ChecksumMismatch, decompression
	// failure.
	KindStorage
	// KindRecoverable marks a transient error explicitly retried by the
	// engine runtime.
	KindRecoverable
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "Config"
	case KindSchema:
		return "Schema"
	case KindPlan:
		return "Plan"
	case KindBudget:
		return "Budget"
	case KindStorage:
		return "Storage"
	case KindRecoverable:
		return "Recoverable"
	default:
		return "Unknown"
	}
}

// Error is the wrapped error type threaded through every component
// boundary. Context is populated by Wrap as the error travels up through
// the engine runtime; Suggestions are attached at creation for the kinds
// that have a canonical remedy (today, only Budget).
type Error struct {
	Kind        Kind
	Message     string
	Context     []string
	Suggestions []string
	cause       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	for _, c := range e.Context {
		msg += " | " + c
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New constructs a fresh *Error of the given kind, capturing a stack trace
// via pingcap/errors so the context chain survives repeated wrapping.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   pingcaperr.New(fmt.Sprintf(format, args...)),
	}
}

// Wrap attaches a new layer of context ("operator=Filter op_id=3
// block_id=17 input_rows=512") to err without discarding the original
// kind and cause. If err is not already an *Error, it is classified as
// KindStorage (the common case for wrapping raw I/O errors at a boundary);
// callers that know better should construct their own *Error instead.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if asError(err, &e) {
		e.Context = append(e.Context, context)
		return e
	}
	return &Error{
		Kind:    KindStorage,
		Message: err.Error(),
		Context: []string{context},
		cause:   pingcaperr.Trace(err),
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// BudgetExceeded builds the dedicated Budget error with its suggestion
// set, per §7.
func BudgetExceeded(tag string, requested, capacity, used uint64) *Error {
	return &Error{
		Kind:    KindBudget,
		Message: fmt.Sprintf("budget exceeded for tag %q: requested=%d capacity=%d used=%d", tag, requested, capacity, used),
		Suggestions: []string{
			"increase --memory-cap",
			"use external (spill-capable) operators for this step",
		},
		cause: pingcaperr.New("budget exceeded"),
	}
}

// ChecksumMismatch builds the dedicated Storage error for a corrupted
// segment (§4.D, §8).
func ChecksumMismatch(segment string) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: fmt.Sprintf("checksum mismatch reading segment %q", segment),
		cause:   pingcaperr.New("checksum mismatch"),
	}
}

// Recoverable wraps err as a KindRecoverable error eligible for the
// engine runtime's retry policy (§4.J).
func Recoverable(err error) *Error {
	return &Error{
		Kind:    KindRecoverable,
		Message: err.Error(),
		cause:   pingcaperr.Trace(err),
	}
}

// IsRecoverable reports whether err (or any error it wraps) is classified
// KindRecoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if asError(err, &e) {
		return e.Kind == KindRecoverable
	}
	return false
}

// OperatorContext formats the {operator, op_id, block_id, input_rows,
// input_bytes} context tuple the engine attaches before returning a
// non-recoverable operator error (§4.J step 4).
func OperatorContext(operator string, opID, blockID uint64, inputRows, inputBytes int64) string {
	return fmt.Sprintf("operator=%s op_id=%d block_id=%d input_rows=%d input_bytes=%d", operator, opID, blockID, inputRows, inputBytes)
}
