// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/candor-lang/candor/internal/core"

// forwardTag marks a source-space cell as already relocated. It is written
// over the cell's tag byte; the forwarding address follows immediately
// after, reusing the first word of the cell's payload the way the base
// design stores the forwarding pointer in place. Because cellSize
// (layout.go) makes every cell at least two words long, even a Boolean whose
// own payload is one byte, this never reads or writes past a cell's bounds.
const forwardTag = Tag(0xff)

const forwardAddrOffset = wordSize // first payload word, same slot as the smallest cell's first field

// IsGCMarked reports whether the cell at addr already carries a forwarding
// mark installed by a collection in progress.
func (h *Heap) IsGCMarked(addr core.Address) bool {
	return h.arenaFor(addr).ReadUint8(addr) == uint8(forwardTag)
}

// forwardingAddr reads the destination address out of a marked cell.
func (h *Heap) forwardingAddr(addr core.Address) core.Address {
	return h.arenaFor(addr).ReadAddress(addr.Add(forwardAddrOffset))
}

// mark installs a forwarding mark on the source cell at from, pointing at to.
func (h *Heap) mark(from, to core.Address) {
	a := h.arenaFor(from)
	a.WriteUint8(from, uint8(forwardTag))
	a.WriteAddress(from.Add(forwardAddrOffset), to)
}

// a grey entry is a slot that holds a pointer into the space being
// collected, discovered either as a conservative stack root or as a field
// of an object already relocated to to_space.
type greyEntry struct {
	slot core.Address // address of the word to overwrite once v is relocated
	val  core.Address // the pointer currently stored there (old-space address)
}

// CollectGarbage runs one stop-the-world Cheney collection: it scans
// [stackTop, rootStack) for conservative roots, copies everything
// transitively reachable from them into a fresh to-space, rewrites every
// discovered root and field in place, and swaps the copy in as the new
// mutator-visible space. Forwarding marks are only ever written on the
// discarded source cells, so the copies need no mark clearing.
//
// stackTop must be non-zero; Allocate is responsible for skipping GC
// entirely during a no-GC scope rather than calling in with stackTop==0.
func (h *Heap) CollectGarbage(stackTop core.Address) error {
	if stackTop == core.Nil {
		return nil
	}
	to, err := newSpace(h.newSpace.pageSize)
	if err != nil {
		return err
	}
	h.toSpace = to

	var grey []greyEntry
	var black []core.Address

	roots := h.scanRoots(stackTop)
	grey = append(grey, roots...)

	for len(grey) > 0 {
		n := len(grey) - 1
		e := grey[n]
		grey = grey[:n]

		if h.IsGCMarked(e.val) {
			h.writeRoot(e.slot, h.forwardingAddr(e.val))
			continue
		}

		dst, err := h.copyCell(e.val, to)
		if err != nil {
			return err
		}
		h.mark(e.val, dst)
		h.writeRoot(e.slot, dst)
		black = append(black, dst)

		grey = append(grey, h.traceOutgoing(dst)...)
	}

	// Mark clearing (§4.3 phase 3) is a no-op here: forwarding marks are
	// written only onto the superseded source cell (mark writes to
	// `from`, never to the copy), and the entire source space is
	// discarded below rather than reused, so no marked byte survives
	// into the next cycle.
	old := h.newSpace
	h.newSpace = to
	h.toSpace = nil
	old.close()
	h.gcCount++
	h.log.Debugf("gc #%d: %d roots, %d objects relocated, %d bytes in use", h.gcCount, len(roots), len(black), h.newSpace.bytesInUse())
	return nil
}

// writeRoot overwrites *slot with v, wherever slot lives: inside the
// conservative stack arena (a root) or inside an already-relocated to-space
// cell (a field rewritten mid-trace).
func (h *Heap) writeRoot(slot, v core.Address) {
	if h.stackArena != nil && h.stackArena.Contains(slot) {
		h.stackArena.WriteAddress(slot, v)
		return
	}
	h.arenaFor(slot).WriteAddress(slot, v)
}

// scanRoots walks [stackTop, rootStack) in ascending address order and
// returns a grey entry for every word that looks like a live heap pointer:
// non-null, low bit clear (so unboxed integers are never treated as roots),
// and itself outside the scanned slice (filters saved frame pointers into
// the stack arena).
func (h *Heap) scanRoots(stackTop core.Address) []greyEntry {
	if h.stackArena == nil {
		return nil
	}
	var roots []greyEntry
	for addr := stackTop; addr < h.rootStack; addr = addr.Add(wordSize) {
		w := h.stackArena.ReadAddress(addr)
		if w == core.Nil {
			continue
		}
		if w&1 == 1 { // unboxed integer: low bit set, never a root
			continue
		}
		if w >= stackTop && w < h.rootStack {
			continue // filters saved frame pointers pointing back into the scanned slice itself
		}
		if h.arenaFor(w) == nil {
			continue // not a heap address at all; conservative scan tolerates false negatives here by construction, never false positives into foreign memory
		}
		roots = append(roots, greyEntry{slot: addr, val: w})
	}
	return roots
}

// copyCell performs the shallow CopyTo described in §4.2: the cell's raw
// bytes (tag plus fixed/variable payload) are copied verbatim into to. The
// cell's outgoing pointer fields are fixed up later by the grey-queue walk,
// not here — copyCell never recurses.
func (h *Heap) copyCell(addr core.Address, to *Space) (core.Address, error) {
	size := h.SizeOf(addr)
	src := h.arenaFor(addr)
	p := to.current()
	if p.remaining() < size {
		if err := to.grow(size); err != nil {
			return 0, err
		}
		p = to.current()
	}
	dst := p.bump(size)
	p.arena.WriteBytes(dst, src.Bytes(addr, size))
	return dst, nil
}

// traceOutgoing returns the grey entries for every pointer field owned by
// the (already-copied, to-space) cell at addr, per the precise per-tag trace
// in §4.3: Context enqueues each slot, Function enqueues its parent context,
// Object enqueues its map, and Map enqueues every non-null key and value
// slot (the base spec leaves this as "a full implementation must iterate
// key/value slots"; this is that full implementation). String, Number and
// Boolean own no outgoing references.
func (h *Heap) traceOutgoing(addr core.Address) []greyEntry {
	a := h.arenaFor(addr)
	switch Tag(a.ReadUint8(addr)) {
	case TagContext:
		n := h.ContextSlots(addr)
		entries := make([]greyEntry, 0, n)
		for i := 0; i < n; i++ {
			slot := contextSlotAddr(addr, i)
			v := a.ReadAddress(slot)
			if isTraceablePointer(v) {
				entries = append(entries, greyEntry{slot: slot, val: v})
			}
		}
		return entries
	case TagFunction:
		slot := addr.Add(functionParentOffset)
		v := a.ReadAddress(slot)
		if isTraceablePointer(v) {
			return []greyEntry{{slot: slot, val: v}}
		}
		return nil
	case TagObject:
		slot := addr.Add(objectMapOffset)
		v := a.ReadAddress(slot)
		if isTraceablePointer(v) {
			return []greyEntry{{slot: slot, val: v}}
		}
		return nil
	case TagMap:
		size := int64(a.ReadUint32(addr.Add(mapSizeOffset)))
		payload := addr.Add(mapPayloadOffset)
		entries := make([]greyEntry, 0, 2*size)
		for i := int64(0); i < size; i++ {
			keySlot := payload.Add(i * wordSize)
			valSlot := payload.Add((size + i) * wordSize)
			if k := a.ReadAddress(keySlot); isTraceablePointer(k) {
				entries = append(entries, greyEntry{slot: keySlot, val: k})
			}
			if v := a.ReadAddress(valSlot); isTraceablePointer(v) {
				entries = append(entries, greyEntry{slot: valSlot, val: v})
			}
		}
		return entries
	default:
		return nil
	}
}

// isTraceablePointer reports whether v is a non-nil, unboxed-clear value:
// the nil and low-bit checks scanRoots applies to conservative stack words,
// reused here because Context/Map slots mix tagged values with the nil
// sentinel just like stack words do. Unlike scanRoots, it does not check
// that v lies in heap memory.
func isTraceablePointer(v core.Address) bool {
	return v != core.Nil && v&1 == 0
}
