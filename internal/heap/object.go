// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"

	"github.com/candor-lang/candor/internal/core"
)

// initialMapSlots is the slot count of a freshly allocated object's map.
// Must be a power of two so mask = slots*wordSize - wordSize keeps
// hash&mask confined to slot-aligned offsets (§4.4).
const initialMapSlots = 4

// NotFound is the sentinel LookupProperty returns for insert=false on a key
// that is absent, resolving the base design's "undefined behavior, fires an
// assertion" open question (§9) into an ordinary not-found return.
const NotFound core.Address = 0

// NewObject allocates an Object and its backing Map as a single no-GC scope,
// exactly as the ordering contract in §4.1 requires: a GC between the two
// allocations would leave the Object's map pointer dangling.
func (h *Heap) NewObject() (core.Address, error) {
	mapAddr, err := h.allocateMap(initialMapSlots, core.Nil)
	if err != nil {
		return 0, err
	}
	objAddr, err := h.AllocateNoGC(TagObject, objectSize)
	if err != nil {
		return 0, err
	}
	a := h.arenaFor(objAddr)
	a.WriteUint32(objAddr.Add(objectMaskOffset), uint32(mask(initialMapSlots)))
	a.WriteAddress(objAddr.Add(objectMapOffset), mapAddr)
	return objAddr, nil
}

func mask(slots int64) int64 {
	return slots*wordSize - wordSize
}

// allocateMap allocates a Map with the given slot count, zeroing its
// key/value payload so every slot starts empty (key == nil). Both callers
// pass core.Nil as stackTop: NewObject, because GC must not run between the
// Object and Map allocations (the §4.1 ordering contract), and growObject,
// because it runs with GC suppressed throughout (see its comment).
func (h *Heap) allocateMap(slots int64, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagMap, mapPayloadOffset+2*slots*wordSize, stackTop)
	if err != nil {
		return 0, err
	}
	a := h.arenaFor(addr)
	a.WriteUint32(addr.Add(mapSizeOffset), uint32(slots))
	a.Zero(addr.Add(mapPayloadOffset), 2*slots*wordSize)
	return addr, nil
}

// WriteSlot stores v into the address LookupProperty returned. Compiled code
// would emit this as a plain store; it is exported so callers outside this
// package (the host CLI, §4.6) can finish a property write without reaching
// into arenaFor.
func (h *Heap) WriteSlot(slotAddr core.Address, v Value) error {
	if slotAddr == NotFound {
		return fmt.Errorf("heap: WriteSlot on NotFound address")
	}
	h.arenaFor(slotAddr).WriteAddress(slotAddr, v.Addr())
	return nil
}

// ReadSlot loads the value at the address LookupProperty returned.
func (h *Heap) ReadSlot(slotAddr core.Address) Value {
	return Value(h.arenaFor(slotAddr).ReadAddress(slotAddr))
}

// Properties walks obj's map and returns every live (key, value) pair as Go
// strings/Values, for diagnostics (the host CLI's object dump) rather than
// any compiled-code path, which would never need a non-key-driven traversal.
func (h *Heap) Properties(obj core.Address) map[string]Value {
	mapAddr := h.objectMapAddr(obj)
	slots := mapSlots(h.objectMask(obj))
	out := make(map[string]Value)
	for idx := int64(0); idx < slots; idx++ {
		kSlot := keySlotAddr(mapAddr, idx)
		k := h.arenaFor(kSlot).ReadAddress(kSlot)
		if k == core.Nil {
			continue
		}
		vSlot := valueSlotAddr(mapAddr, idx, slots)
		v := Value(h.arenaFor(vSlot).ReadAddress(vSlot))
		out[string(h.StringBytes(k))] = v
	}
	return out
}

func (h *Heap) objectMask(obj core.Address) int64 {
	return int64(h.arenaFor(obj).ReadUint32(obj.Add(objectMaskOffset)))
}

func (h *Heap) objectMapAddr(obj core.Address) core.Address {
	return h.arenaFor(obj).ReadAddress(obj.Add(objectMapOffset))
}

func mapSlots(mask int64) int64 {
	return (mask + wordSize) / wordSize
}

func keySlotAddr(mapAddr core.Address, idx int64) core.Address {
	return mapAddr.Add(mapPayloadOffset + idx*wordSize)
}

func valueSlotAddr(mapAddr core.Address, idx, slots int64) core.Address {
	return mapAddr.Add(mapPayloadOffset + (slots+idx)*wordSize)
}

// LookupProperty implements §4.4: it canonicalizes key to a heap String,
// hashes it (computing and caching the hash lazily), and linearly probes
// obj's map for a matching or empty key slot, wrapping at the map's mask.
// If insert is true and the table is found full, the map is grown (§4.4.1)
// and the probe restarts. If insert is false and no match is found —
// including on a full table — NotFound is returned rather than asserting.
//
// stackTop is accepted (and forwarded where nothing unsafe depends on it)
// to match the ABI signature in §4.5, but every allocation this function
// performs itself — key coercion, map growth — runs GC-suppressed: obj is
// an ordinary Go value here, not a slot inside the scanned stackArena, so a
// mid-lookup collection could relocate obj's cell out from under this
// function with no way to notice. See growObject's comment for the full
// reasoning.
func (h *Heap) LookupProperty(obj core.Address, key Value, insert bool, stackTop core.Address) (core.Address, error) {
	keyVal, err := h.CoerceToString(key, core.Nil)
	if err != nil {
		return 0, err
	}
	keyAddr := keyVal.Addr()
	hash := h.StringHash(keyAddr)

	for {
		mapAddr := h.objectMapAddr(obj)
		maskBits := h.objectMask(obj)
		slots := mapSlots(maskBits)
		start := int64(hash) & maskBits / wordSize

		idx := start
		for steps := int64(0); steps < slots; steps++ {
			kSlot := keySlotAddr(mapAddr, idx)
			k := h.arenaFor(kSlot).ReadAddress(kSlot)
			if k == core.Nil {
				if !insert {
					return NotFound, nil
				}
				h.arenaFor(kSlot).WriteAddress(kSlot, keyAddr)
				return valueSlotAddr(mapAddr, idx, slots), nil
			}
			if h.stringEqual(k, keyAddr) {
				return valueSlotAddr(mapAddr, idx, slots), nil
			}
			idx = (idx + 1) % slots
		}

		// Table traversed fully with no hit and no empty slot.
		if !insert {
			return NotFound, nil
		}
		if err := h.growObject(obj, stackTop); err != nil {
			return 0, err
		}
	}
}

// growObject doubles obj's map capacity (§4.4.1): allocate a fresh,
// zeroed, double-size Map, install it on obj, then re-insert every
// live (key, value) pair from the old map via LookupProperty(insert=true).
// The old map becomes garbage, reclaimed by the next collection.
//
// The whole operation runs with GC suppressed (stackTop is never forwarded
// to the allocator here), not just the final install. In the reference C
// runtime this is unnecessary beyond the initial Object/Map pairing, because
// LookupProperty's own locals live in the native call stack that
// conservative scanning already covers end to end. Here obj and oldMapAddr
// are ordinary Go local variables outside the scanned stackArena range: a
// collection between allocating the new map and re-pointing obj at it would
// relocate obj's cell (it is still reachable from the real roots) without
// any way to update these locals, leaving them dangling. Disabling GC for
// the duration sidesteps that gap in what our conservative scan can see.
func (h *Heap) growObject(obj core.Address, stackTop core.Address) error {
	oldMapAddr := h.objectMapAddr(obj)
	oldMask := h.objectMask(obj)
	oldSlots := mapSlots(oldMask)

	newSlots := oldSlots * 2
	newMapAddr, err := h.allocateMap(newSlots, core.Nil)
	if err != nil {
		return err
	}

	a := h.arenaFor(obj)
	a.WriteUint32(obj.Add(objectMaskOffset), uint32(mask(newSlots)))
	a.WriteAddress(obj.Add(objectMapOffset), newMapAddr)

	for idx := int64(0); idx < oldSlots; idx++ {
		kSlot := keySlotAddr(oldMapAddr, idx)
		k := h.arenaFor(kSlot).ReadAddress(kSlot)
		if k == core.Nil {
			continue
		}
		vSlot := valueSlotAddr(oldMapAddr, idx, oldSlots)
		v := h.arenaFor(vSlot).ReadAddress(vSlot)

		dst, err := h.LookupProperty(obj, FromAddr(k), true, stackTop)
		if err != nil {
			return err
		}
		h.arenaFor(dst).WriteAddress(dst, v)
	}
	return nil
}
