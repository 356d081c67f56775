// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"
	"testing"

	"github.com/candor-lang/candor/internal/core"
)

func setProperty(t *testing.T, h *Heap, obj core.Address, key string, v Value, stackTop core.Address) {
	t.Helper()
	keyAddr, err := h.NewString([]byte(key), stackTop)
	if err != nil {
		t.Fatalf("NewString(%q): %v", key, err)
	}
	slotAddr, err := h.LookupProperty(obj, FromAddr(keyAddr), true, stackTop)
	if err != nil {
		t.Fatalf("LookupProperty(%q, insert): %v", key, err)
	}
	h.arenaFor(slotAddr).WriteAddress(slotAddr, core.Address(v))
}

func getProperty(t *testing.T, h *Heap, obj core.Address, key string, stackTop core.Address) Value {
	t.Helper()
	keyAddr, err := h.NewString([]byte(key), stackTop)
	if err != nil {
		t.Fatalf("NewString(%q): %v", key, err)
	}
	slotAddr, err := h.LookupProperty(obj, FromAddr(keyAddr), false, stackTop)
	if err != nil {
		t.Fatalf("LookupProperty(%q, lookup): %v", key, err)
	}
	if slotAddr == NotFound {
		return Nil
	}
	return Value(h.arenaFor(slotAddr).ReadAddress(slotAddr))
}

// --- Property 6: lookup/insert idempotence ---

func TestLookupInsertIdempotence(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	obj, err := h.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	key, err := h.NewString([]byte("x"), full)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}

	insertSlot, err := h.LookupProperty(obj, FromAddr(key), true, full)
	if err != nil {
		t.Fatalf("LookupProperty(insert): %v", err)
	}
	lookupSlot, err := h.LookupProperty(obj, FromAddr(key), false, full)
	if err != nil {
		t.Fatalf("LookupProperty(lookup): %v", err)
	}
	if insertSlot != lookupSlot {
		t.Fatalf("insert slot %v != lookup slot %v", insertSlot, lookupSlot)
	}
}

func TestLookupMissingNoInsert(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()
	obj, err := h.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	key, err := h.NewString([]byte("absent"), full)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	got, err := h.LookupProperty(obj, FromAddr(key), false, full)
	if err != nil {
		t.Fatalf("LookupProperty: %v", err)
	}
	if got != NotFound {
		t.Fatalf("LookupProperty(absent key, insert=false) = %v, want NotFound", got)
	}
}

// --- Property 5: object map capacity grows on overflow ---

func TestObjectGrowsOnOverflow(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()

	obj, err := h.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	initialMask := h.objectMask(obj)
	initialSlots := mapSlots(initialMask)

	// Insert twice the initial capacity of distinct keys; at least one
	// grow must have occurred by the time we're done.
	for i := int64(0); i < initialSlots*2; i++ {
		setProperty(t, h, obj, fmt.Sprintf("k%d", i), TagInt(i), full)
	}

	finalSlots := mapSlots(h.objectMask(obj))
	if finalSlots <= initialSlots {
		t.Fatalf("capacity did not grow: initial %d, final %d", initialSlots, finalSlots)
	}
	// Every key must still be present and correct after growth (growth
	// rehashes the whole table).
	for i := int64(0); i < initialSlots*2; i++ {
		got := getProperty(t, h, obj, fmt.Sprintf("k%d", i), full)
		if UntagInt(got) != i {
			t.Fatalf("k%d = %v, want TagInt(%d)", i, got, i)
		}
	}
}

func TestStringEqualKeysCollide(t *testing.T) {
	h, stack := newTestHeap(t)
	full := stack.Base()
	obj, err := h.NewObject()
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	// Two distinct String cells with identical content must be treated as
	// the same key.
	setProperty(t, h, obj, "dup", TagInt(1), full)
	setProperty(t, h, obj, "dup", TagInt(2), full)
	if got := getProperty(t, h, obj, "dup", full); UntagInt(got) != 2 {
		t.Fatalf("dup = %v, want TagInt(2) (second write should overwrite, not add a slot)", got)
	}
}
