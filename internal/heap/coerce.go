// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"
	"strconv"

	"github.com/candor-lang/candor/internal/core"
)

// asFloat64, asBool and asBytes are the internal halves of the §4.2
// coercion table: they read the native Go value out of a tagged Value
// without allocating. CoerceToNumber/CoerceToBoolean/CoerceToString (below)
// are the ABI-facing entry points that box the result back into a heap
// Value, since that is what compiled code's slow paths actually need back.
func (h *Heap) asFloat64(v Value) float64 {
	if v.IsNil() {
		return 0
	}
	if v.IsUnboxed() {
		return float64(UntagInt(v))
	}
	switch h.TagAt(v.Addr()) {
	case TagNumber:
		return h.NumberValue(v.Addr())
	case TagString:
		n, err := strconv.ParseInt(string(h.StringBytes(v.Addr())), 10, 64)
		if err != nil {
			return 0
		}
		return float64(n)
	case TagBoolean:
		if h.BooleanValue(v.Addr()) {
			return 1
		}
		return 0
	default: // Object, Function
		return 0
	}
}

func (h *Heap) asBool(v Value) bool {
	if v.IsNil() {
		return false
	}
	if v.IsUnboxed() {
		return UntagInt(v) != 0
	}
	switch h.TagAt(v.Addr()) {
	case TagString:
		return h.StringLen(v.Addr()) > 0
	case TagNumber:
		return h.NumberValue(v.Addr()) != 0
	case TagBoolean:
		return h.BooleanValue(v.Addr())
	default: // Object, Function
		return true
	}
}

func (h *Heap) asBytes(v Value) []byte {
	if v.IsNil() {
		return nil
	}
	if v.IsUnboxed() {
		return []byte(strconv.FormatInt(UntagInt(v), 10))
	}
	switch h.TagAt(v.Addr()) {
	case TagString:
		return h.StringBytes(v.Addr())
	case TagNumber:
		n := h.NumberValue(v.Addr())
		if n == float64(int64(n)) {
			return []byte(strconv.FormatInt(int64(n), 10))
		}
		return []byte(strconv.FormatFloat(n, 'g', -1, 64))
	case TagBoolean:
		if h.BooleanValue(v.Addr()) {
			return []byte("true")
		}
		return []byte("false")
	default: // Object, Function
		return nil
	}
}

// CoerceToNumber implements the ABI's ToNumber entry (§4.5): the argument is
// coerced per the §4.2 table and reboxed, preferring the unboxed
// representation when the result is integral so downstream fast paths see a
// tagged int rather than a boxed Number.
func (h *Heap) CoerceToNumber(v Value, stackTop core.Address) (Value, error) {
	if !v.IsNil() && !v.IsUnboxed() && h.TagAt(v.Addr()) == TagNumber {
		return v, nil // identity
	}
	n := h.asFloat64(v)
	if n == float64(int64(n)) {
		return TagInt(int64(n)), nil
	}
	addr, err := h.NewNumber(n, stackTop)
	if err != nil {
		return Nil, err
	}
	return FromAddr(addr), nil
}

// CoerceToBoolean implements the ABI's ToBoolean entry.
func (h *Heap) CoerceToBoolean(v Value, stackTop core.Address) (Value, error) {
	if !v.IsNil() && !v.IsUnboxed() && h.TagAt(v.Addr()) == TagBoolean {
		return v, nil // identity
	}
	addr, err := h.NewBoolean(h.asBool(v), stackTop)
	if err != nil {
		return Nil, err
	}
	return FromAddr(addr), nil
}

// CoerceToString implements the ABI's ToString entry.
func (h *Heap) CoerceToString(v Value, stackTop core.Address) (Value, error) {
	if !v.IsNil() && !v.IsUnboxed() && h.TagAt(v.Addr()) == TagString {
		return v, nil // identity
	}
	addr, err := h.NewString(h.asBytes(v), stackTop)
	if err != nil {
		return Nil, err
	}
	return FromAddr(addr), nil
}

// Describe renders v for diagnostics (logging, Exception messages, the host
// CLI's object dump); never used on a hot path.
func (h *Heap) Describe(v Value) string {
	if v.IsNil() {
		return "nil"
	}
	if v.IsUnboxed() {
		return fmt.Sprintf("%d", UntagInt(v))
	}
	switch h.TagAt(v.Addr()) {
	case TagString:
		return string(h.StringBytes(v.Addr()))
	case TagNumber:
		return fmt.Sprintf("%g", h.NumberValue(v.Addr()))
	case TagBoolean:
		return fmt.Sprintf("%t", h.BooleanValue(v.Addr()))
	default:
		return fmt.Sprintf("%s@%v", h.TagAt(v.Addr()), v.Addr())
	}
}
