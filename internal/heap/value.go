// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/candor-lang/candor/internal/core"

// A Value is a machine-word-sized tagged datum: either an unboxed small
// integer (low bit set) or an aligned heap pointer (low bit clear). The nil
// value is the zero Value.
type Value core.Address

// Nil is the candor `nil` value.
const Nil Value = 0

// IsNil reports whether v is nil.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsUnboxed reports whether v is an unboxed small integer.
func (v Value) IsUnboxed() bool {
	return v&1 == 1
}

// Addr reinterprets v as a heap pointer. The caller must already know v is
// not unboxed and not nil.
func (v Value) Addr() core.Address {
	return core.Address(v)
}

// TagInt encodes n as an unboxed small integer value.
func TagInt(n int64) Value {
	return Value(uint64(n)<<1 | 1)
}

// UntagInt decodes an unboxed small integer value back to n. v must satisfy
// IsUnboxed.
func UntagInt(v Value) int64 {
	return int64(v) >> 1
}

// FromAddr reinterprets a heap pointer as a Value.
func FromAddr(a core.Address) Value {
	return Value(a)
}
