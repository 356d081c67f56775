// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"testing"

	"github.com/candor-lang/candor/internal/core"
)

// --- Property 2 & 3: GC preserves reachability, reclaims unreachable ---

func TestGCPreservesReachableString(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	addr, err := h.NewString([]byte("reachable"), full)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	stack.WriteAddress(slot(stack, 0), addr)

	if err := h.CollectGarbage(full); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}

	moved := stack.ReadAddress(slot(stack, 0))
	if string(h.StringBytes(moved)) != "reachable" {
		t.Fatalf("after GC, root points at %q, want %q", h.StringBytes(moved), "reachable")
	}
}

func TestGCReclaimsUnreachable(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	// Allocate and immediately drop k strings, with nothing ever rooted.
	const k = 200
	for i := 0; i < k; i++ {
		if _, err := h.NewString([]byte("garbage"), full); err != nil {
			t.Fatalf("NewString %d: %v", i, err)
		}
	}
	before := h.BytesInUse()

	if err := h.CollectGarbage(full); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	after := h.BytesInUse()

	if after >= before {
		t.Fatalf("BytesInUse after GC = %d, want less than %d (nothing was reachable)", after, before)
	}
	if after > 64 {
		t.Fatalf("BytesInUse after GC = %d, want bounded near 0 with no roots", after)
	}
}

// --- Property 4: forwarding monotonicity ---

func TestForwardingMonotonicity(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	addr, err := h.NewString([]byte("shared"), full)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	// Two independent roots alias the same cell.
	stack.WriteAddress(slot(stack, 0), addr)
	stack.WriteAddress(slot(stack, 1), addr)

	if err := h.CollectGarbage(full); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}

	a := stack.ReadAddress(slot(stack, 0))
	b := stack.ReadAddress(slot(stack, 1))
	if a != b {
		t.Fatalf("aliased roots relocated to different addresses: %v vs %v", a, b)
	}
}

// --- GC preserves a Context<->Function cycle (closures referencing their
// defining context, which references the closure back) without looping
// forever and without losing either half. ---

func TestGCPreservesClosureCycle(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	ctx, err := h.NewContext(1, full)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	fn, err := h.NewFunction(core.Address(0x401000), ctx, full)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	// Close the cycle: the context holds the function that closes over it.
	h.ContextSet(ctx, 0, FromAddr(fn))

	stack.WriteAddress(slot(stack, 0), fn)

	if err := h.CollectGarbage(full); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}

	movedFn := stack.ReadAddress(slot(stack, 0))
	movedCtx := h.FunctionParent(movedFn)
	if h.ContextGet(movedCtx, 0).Addr() != movedFn {
		t.Fatalf("closure cycle broken: context's slot 0 does not point back at the relocated function")
	}
}

// --- GC does not disturb an active no-GC scope's dangling-free invariant:
// an Object allocated via NewObject is never observed with a stale map
// pointer even if a collection runs immediately afterward. ---

func TestGCAfterObjectCreation(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	obj, err := h.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	stack.WriteAddress(slot(stack, 0), obj)

	slotAddr, err := h.LookupProperty(obj, mustString(t, h, full, "k"), true, full)
	if err != nil {
		t.Fatalf("LookupProperty: %v", err)
	}
	h.arenaFor(slotAddr).WriteAddress(slotAddr, TagInt(9).Addr())

	if err := h.CollectGarbage(full); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}

	moved := stack.ReadAddress(slot(stack, 0))
	got, err := h.LookupProperty(moved, mustString(t, h, full, "k"), false, full)
	if err != nil {
		t.Fatalf("LookupProperty after GC: %v", err)
	}
	if got == NotFound {
		t.Fatalf("property lost across GC")
	}
	if v := Value(h.arenaFor(got).ReadAddress(got)); UntagInt(v) != 9 {
		t.Fatalf("property value = %v, want TagInt(9)", v)
	}
}

func mustString(t *testing.T, h *Heap, stackTop core.Address, s string) Value {
	t.Helper()
	addr, err := h.NewString([]byte(s), stackTop)
	if err != nil {
		t.Fatalf("NewString(%q): %v", s, err)
	}
	return FromAddr(addr)
}
