// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"

	"github.com/candor-lang/candor/internal/core"
)

// ErrCode identifies the reason a Throw unwound the managed call. The base
// spec leaves these unenumerated beyond "a distinct error code"; these are
// the codes a Throw may carry. The coercion and binop paths in this package
// do not raise any of them.
type ErrCode int

const (
	ErrNone ErrCode = iota
	ErrNotAFunction
	ErrNotANumber
	ErrNotCallable
	ErrInvalidAssignTarget
)

func (c ErrCode) String() string {
	switch c {
	case ErrNotAFunction:
		return "not a function"
	case ErrNotANumber:
		return "not a number"
	case ErrNotCallable:
		return "not callable"
	case ErrInvalidAssignTarget:
		return "invalid assignment target"
	default:
		return "none"
	}
}

// Exception is the value Throw raises. Invoke recovers it at the ABI
// boundary a generated-code call site would target, matching the base
// spec's pending_exception + stack-unwind-to-root_stack discipline with
// Go's native panic/recover.
type Exception struct {
	Code    ErrCode
	Message string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("candor: %s: %s", e.Code, e.Message)
}

// Throw raises code as a managed exception. It never returns; Invoke is the
// only place that may recover it.
func (h *Heap) Throw(code ErrCode, format string, args ...interface{}) {
	panic(&Exception{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Invoke calls fn (a func(stackTop) representing compiled code reached from
// the host or from another managed frame) and recovers any *Exception it
// raises via Throw, returning it as an ordinary Go error instead of letting
// it propagate past the managed boundary — the idiomatic-Go realization of
// "unwind rsp to the stored root_stack and return to the host" (§7).
//
// stackTop is passed to fn unchanged; Invoke records nothing on the heap.
// This call plays the part of the base design's "saved root frame": any
// Throw inside fn unwinds straight back to this call, not into fn's own
// Go call stack (which is already gone by the time recover runs).
func (h *Heap) Invoke(stackTop core.Address, fn func(stackTop core.Address) (Value, error)) (result Value, pending *Exception, err error) {
	defer func() {
		if r := recover(); r != nil {
			exc, ok := r.(*Exception)
			if !ok {
				panic(r) // not ours; a real bug, let it crash same as the base design's fatal assertions
			}
			pending = exc
			result = Nil
		}
	}()
	result, err = fn(stackTop)
	return result, nil, err
}

// Op identifies a candor binary operator (§6).
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpBitOr
	OpBitAnd
	OpBitXor
	OpEq
	OpNeq
	OpStrictEq
	OpStrictNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
)

// BinOp implements the ABI's polymorphic BinOp* family (§4.5). For +,
// nil + nil -> 0 and nil + x or x + nil -> x, returned unchanged. The other
// arithmetic, bitwise and ordering operators coerce a nil operand to 0 and
// proceed. Object op Object (for any operator other than the (in)equality
// family, which compare by reference, and && / ||, which yield a Boolean)
// yields nil, matching "object+object -> nil".
func (h *Heap) BinOp(op Op, lhs, rhs Value, stackTop core.Address) (Value, error) {
	switch op {
	case OpStrictEq:
		return h.boolValue(h.strictEqual(lhs, rhs), stackTop)
	case OpStrictNeq:
		return h.boolValue(!h.strictEqual(lhs, rhs), stackTop)
	case OpEq:
		return h.boolValue(h.looseEqual(lhs, rhs), stackTop)
	case OpNeq:
		return h.boolValue(!h.looseEqual(lhs, rhs), stackTop)
	case OpAnd:
		return h.boolValue(h.asBool(lhs) && h.asBool(rhs), stackTop)
	case OpOr:
		return h.boolValue(h.asBool(lhs) || h.asBool(rhs), stackTop)
	}

	if h.isObjectLike(lhs) && h.isObjectLike(rhs) {
		return Nil, nil
	}

	switch op {
	case OpAdd:
		if lhs.IsNil() {
			return h.identityOrZero(rhs, stackTop)
		}
		if rhs.IsNil() {
			return h.identityOrZero(lhs, stackTop)
		}
		if h.isStringLike(lhs) || h.isStringLike(rhs) {
			cat := append(append([]byte{}, h.asBytes(lhs)...), h.asBytes(rhs)...)
			addr, err := h.NewString(cat, stackTop)
			return FromAddr(addr), err
		}
		return h.numberOp(lhs, rhs, stackTop, func(a, b float64) float64 { return a + b })
	case OpSub:
		return h.numberOp(h.nilToZero(lhs), h.nilToZero(rhs), stackTop, func(a, b float64) float64 { return a - b })
	case OpMul:
		return h.numberOp(h.nilToZero(lhs), h.nilToZero(rhs), stackTop, func(a, b float64) float64 { return a * b })
	case OpDiv:
		return h.numberOp(h.nilToZero(lhs), h.nilToZero(rhs), stackTop, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case OpBitOr:
		return h.intOp(lhs, rhs, stackTop, func(a, b int64) int64 { return a | b })
	case OpBitAnd:
		return h.intOp(lhs, rhs, stackTop, func(a, b int64) int64 { return a & b })
	case OpBitXor:
		return h.intOp(lhs, rhs, stackTop, func(a, b int64) int64 { return a ^ b })
	case OpLt:
		return h.boolValue(h.asFloat64(lhs) < h.asFloat64(rhs), stackTop)
	case OpGt:
		return h.boolValue(h.asFloat64(lhs) > h.asFloat64(rhs), stackTop)
	case OpLe:
		return h.boolValue(h.asFloat64(lhs) <= h.asFloat64(rhs), stackTop)
	case OpGe:
		return h.boolValue(h.asFloat64(lhs) >= h.asFloat64(rhs), stackTop)
	}
	return Nil, fmt.Errorf("heap: unknown binop %d", op)
}

func (h *Heap) identityOrZero(v Value, stackTop core.Address) (Value, error) {
	if v.IsNil() {
		return TagInt(0), nil
	}
	return v, nil
}

func (h *Heap) nilToZero(v Value) Value {
	if v.IsNil() {
		return TagInt(0)
	}
	return v
}

func (h *Heap) numberOp(lhs, rhs Value, stackTop core.Address, f func(a, b float64) float64) (Value, error) {
	result := f(h.asFloat64(lhs), h.asFloat64(rhs))
	if result == float64(int64(result)) {
		return TagInt(int64(result)), nil
	}
	addr, err := h.NewNumber(result, stackTop)
	return FromAddr(addr), err
}

func (h *Heap) intOp(lhs, rhs Value, stackTop core.Address, f func(a, b int64) int64) (Value, error) {
	a := int64(h.asFloat64(h.nilToZero(lhs)))
	b := int64(h.asFloat64(h.nilToZero(rhs)))
	return TagInt(f(a, b)), nil
}

func (h *Heap) boolValue(v bool, stackTop core.Address) (Value, error) {
	addr, err := h.NewBoolean(v, stackTop)
	if err != nil {
		return Nil, err
	}
	return FromAddr(addr), nil
}

func (h *Heap) isObjectLike(v Value) bool {
	if v.IsNil() || v.IsUnboxed() {
		return false
	}
	switch h.TagAt(v.Addr()) {
	case TagObject, TagFunction:
		return true
	default:
		return false
	}
}

func (h *Heap) isStringLike(v Value) bool {
	return !v.IsNil() && !v.IsUnboxed() && h.TagAt(v.Addr()) == TagString
}

// strictEqual is === / !==: identical representation, no coercion. Two
// unboxed ints are equal iff numerically equal; two heap pointers are equal
// iff they name the same cell (reference identity), except Strings, which
// compare by content since two distinct String cells can hold the same
// text and the language has no separate interning guarantee, and boxed
// Numbers and Booleans, which compare by value.
func (h *Heap) strictEqual(a, b Value) bool {
	if a == b {
		return true
	}
	if a.IsNil() || b.IsNil() || a.IsUnboxed() != b.IsUnboxed() {
		return false
	}
	if a.IsUnboxed() {
		return a == b
	}
	ta, tb := h.TagAt(a.Addr()), h.TagAt(b.Addr())
	if ta != tb {
		return false
	}
	switch ta {
	case TagString:
		return h.stringEqual(a.Addr(), b.Addr())
	case TagNumber:
		return h.NumberValue(a.Addr()) == h.NumberValue(b.Addr())
	case TagBoolean:
		return h.BooleanValue(a.Addr()) == h.BooleanValue(b.Addr())
	default:
		return false // Object/Function: already failed the reference-equality fast path above
	}
}

// looseEqual is == / !=: strictEqual, plus numeric coercion across
// String/Number/Boolean.
func (h *Heap) looseEqual(a, b Value) bool {
	if h.strictEqual(a, b) {
		return true
	}
	if h.isObjectLike(a) || h.isObjectLike(b) {
		return false
	}
	return h.asFloat64(a) == h.asFloat64(b)
}
