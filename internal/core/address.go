// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package core provides the lowest-level memory primitives the candor
// runtime is built on: an address type for naming locations inside a
// managed memory arena, and the arena itself.
package core

import "fmt"

// An Address is the raw machine address of a byte inside some Arena (an
// Arena's Base is the address of its first mapped byte). It plays the
// same role that a raw char* plays in the reference implementation: most of
// the runtime never looks at memory except through one.
type Address uintptr

// Nil is the address representing the `nil` heap value.
const Nil Address = 0

// Add returns a+n.
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns a-b.
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

// IsNil reports whether a is the nil address.
func (a Address) IsNil() bool {
	return a == Nil
}

// Aligned reports whether a is a multiple of n.
func (a Address) Aligned(n int64) bool {
	return int64(a)%n == 0
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}
