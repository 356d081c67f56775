// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "testing"

// --- Property 7: the §4.2 coercion table ---

func TestCoercionTable(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	str := func(s string) Value {
		addr, err := h.NewString([]byte(s), full)
		if err != nil {
			t.Fatalf("NewString: %v", err)
		}
		return FromAddr(addr)
	}
	num := func(n float64) Value {
		addr, err := h.NewNumber(n, full)
		if err != nil {
			t.Fatalf("NewNumber: %v", err)
		}
		return FromAddr(addr)
	}
	boolean := func(b bool) Value {
		addr, err := h.NewBoolean(b, full)
		if err != nil {
			t.Fatalf("NewBoolean: %v", err)
		}
		return FromAddr(addr)
	}
	obj := func() Value {
		addr, err := h.NewObject()
		if err != nil {
			t.Fatalf("NewObject: %v", err)
		}
		return FromAddr(addr)
	}

	toNum := func(v Value) float64 {
		r, err := h.CoerceToNumber(v, full)
		if err != nil {
			t.Fatalf("CoerceToNumber: %v", err)
		}
		return h.asFloat64(r)
	}
	toBool := func(v Value) bool {
		r, err := h.CoerceToBoolean(v, full)
		if err != nil {
			t.Fatalf("CoerceToBoolean: %v", err)
		}
		return h.asBool(r)
	}
	toStr := func(v Value) string {
		r, err := h.CoerceToString(v, full)
		if err != nil {
			t.Fatalf("CoerceToString: %v", err)
		}
		return string(h.StringBytes(r.Addr()))
	}

	// String -> Number: integer parse of bytes; non-numeric -> 0.
	if got := toNum(str("42")); got != 42 {
		t.Fatalf(`ToNumber("42") = %v, want 42`, got)
	}
	if got := toNum(str("nope")); got != 0 {
		t.Fatalf(`ToNumber("nope") = %v, want 0`, got)
	}
	// String -> Boolean: length > 0.
	if toBool(str("")) {
		t.Fatalf(`ToBoolean("") = true, want false`)
	}
	if !toBool(str("x")) {
		t.Fatalf(`ToBoolean("x") = false, want true`)
	}

	// Number -> String: integral values print without a decimal point.
	if got := toStr(num(5)); got != "5" {
		t.Fatalf("ToString(5.0) = %q, want %q", got, "5")
	}
	// Number -> Boolean: value != 0.
	if toBool(num(0)) {
		t.Fatalf("ToBoolean(0) = true, want false")
	}
	if !toBool(num(1)) {
		t.Fatalf("ToBoolean(1) = false, want true")
	}

	// Boolean -> String / Number: identity-ish per the table.
	if got := toStr(boolean(true)); got != "true" {
		t.Fatalf("ToString(true) = %q, want %q", got, "true")
	}
	if got := toStr(boolean(false)); got != "false" {
		t.Fatalf("ToString(false) = %q, want %q", got, "false")
	}
	if got := toNum(boolean(true)); got != 1 {
		t.Fatalf("ToNumber(true) = %v, want 1", got)
	}
	if got := toNum(boolean(false)); got != 0 {
		t.Fatalf("ToNumber(false) = %v, want 0", got)
	}

	// Object -> String/Number/Boolean.
	if got := toStr(obj()); got != "" {
		t.Fatalf("ToString(object) = %q, want empty", got)
	}
	if got := toNum(obj()); got != 0 {
		t.Fatalf("ToNumber(object) = %v, want 0", got)
	}
	if !toBool(obj()) {
		t.Fatalf("ToBoolean(object) = false, want true")
	}

	// Nil -> String/Number/Boolean.
	if got := toStr(Nil); got != "" {
		t.Fatalf("ToString(nil) = %q, want empty", got)
	}
	if got := toNum(Nil); got != 0 {
		t.Fatalf("ToNumber(nil) = %v, want 0", got)
	}
	if toBool(Nil) {
		t.Fatalf("ToBoolean(nil) = true, want false")
	}

	// Unboxed int -> String/Boolean (number identity already covered by
	// CoerceToNumber's fast path).
	if got := toStr(TagInt(7)); got != "7" {
		t.Fatalf("ToString(7) = %q, want %q", got, "7")
	}
	if !toBool(TagInt(7)) || toBool(TagInt(0)) {
		t.Fatalf("ToBoolean(unboxed int) does not match value != 0")
	}
}

func TestCoerceToNumberIdentity(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()
	addr, err := h.NewNumber(3.25, full)
	if err != nil {
		t.Fatalf("NewNumber: %v", err)
	}
	got, err := h.CoerceToNumber(FromAddr(addr), full)
	if err != nil {
		t.Fatalf("CoerceToNumber: %v", err)
	}
	if got.Addr() != addr {
		t.Fatalf("CoerceToNumber on an existing Number reboxed instead of returning identity")
	}
}
