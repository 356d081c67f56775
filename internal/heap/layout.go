// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"
	"hash/fnv"

	"github.com/candor-lang/candor/internal/core"
)

func roundEven(n int64) int64 {
	if n%2 != 0 {
		n++
	}
	return n
}

// cellSize rounds n up to an even byte count and then up to at least two
// words. Every heap cell needs the second word during a collection even if
// its own layout doesn't use it: CollectGarbage overwrites a relocated
// cell's first payload word with the forwarding address (gc.go), so a
// Boolean's 1-byte payload still needs a full word reserved behind it.
func cellSize(n int64) int64 {
	n = roundEven(n)
	if n < 2*wordSize {
		n = 2 * wordSize
	}
	return n
}

// TagAt reads the tag byte of the cell at addr.
func (h *Heap) TagAt(addr core.Address) Tag {
	a := h.arenaFor(addr)
	if a == nil {
		panic(fmt.Sprintf("heap: %v is not a heap address", addr))
	}
	return Tag(a.ReadUint8(addr))
}

// SizeOf returns the number of bytes occupied by the heap cell at addr,
// including the tag word and any rounding Allocate applied.
func (h *Heap) SizeOf(addr core.Address) int64 {
	a := h.arenaFor(addr)
	switch Tag(a.ReadUint8(addr)) {
	case TagNumber:
		return cellSize(numberValueOffset + 8)
	case TagBoolean:
		return cellSize(booleanValueOffset + 1)
	case TagString:
		length := a.ReadUint32(addr.Add(stringLenOffset))
		return cellSize(stringBytesOffset + int64(length))
	case TagObject:
		return cellSize(objectSize)
	case TagFunction:
		return cellSize(functionSize)
	case TagContext:
		count := a.ReadUint64(addr.Add(contextCountOffset))
		return cellSize(contextSlotsOffset + int64(count)*wordSize)
	case TagMap:
		size := a.ReadUint32(addr.Add(mapSizeOffset))
		return cellSize(mapPayloadOffset + 2*int64(size)*wordSize)
	default:
		panic(fmt.Sprintf("heap: unknown tag at %v", addr))
	}
}

// --- Number ---

// NewNumber allocates a boxed Number cell holding v.
func (h *Heap) NewNumber(v float64, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagNumber, numberValueOffset+8, stackTop)
	if err != nil {
		return 0, err
	}
	h.arenaFor(addr).WriteFloat64(addr.Add(numberValueOffset), v)
	return addr, nil
}

// NumberValue reads the double out of a boxed Number cell.
func (h *Heap) NumberValue(addr core.Address) float64 {
	return h.arenaFor(addr).ReadFloat64(addr.Add(numberValueOffset))
}

// --- Boolean ---

// NewBoolean allocates a Boolean cell.
func (h *Heap) NewBoolean(v bool, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagBoolean, booleanValueOffset+1, stackTop)
	if err != nil {
		return 0, err
	}
	b := uint8(0)
	if v {
		b = 1
	}
	h.arenaFor(addr).WriteUint8(addr.Add(booleanValueOffset), b)
	return addr, nil
}

// BooleanValue reads the flag out of a Boolean cell.
func (h *Heap) BooleanValue(addr core.Address) bool {
	return h.arenaFor(addr).ReadUint8(addr.Add(booleanValueOffset)) != 0
}

// --- String ---

// NewString allocates a String cell copying s. The hash is left unset (0);
// it is computed lazily on first property lookup.
func (h *Heap) NewString(s []byte, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagString, stringBytesOffset+int64(len(s)), stackTop)
	if err != nil {
		return 0, err
	}
	a := h.arenaFor(addr)
	a.WriteUint32(addr.Add(stringHashOffset), unsetHash)
	a.WriteUint32(addr.Add(stringLenOffset), uint32(len(s)))
	a.WriteBytes(addr.Add(stringBytesOffset), s)
	return addr, nil
}

// StringLen returns the byte length of the String cell at addr.
func (h *Heap) StringLen(addr core.Address) int64 {
	return int64(h.arenaFor(addr).ReadUint32(addr.Add(stringLenOffset)))
}

// StringBytes returns the raw bytes of the String cell at addr.
func (h *Heap) StringBytes(addr core.Address) []byte {
	a := h.arenaFor(addr)
	n := h.StringLen(addr)
	return a.Bytes(addr.Add(stringBytesOffset), n)
}

// StringHash returns the cached hash of the String cell at addr, computing
// and caching it on first call. A legitimate hash of 0 is remapped to 1 so
// that the "0 means unset" sentinel stays unambiguous.
func (h *Heap) StringHash(addr core.Address) uint32 {
	a := h.arenaFor(addr)
	hashAddr := addr.Add(stringHashOffset)
	hash := a.ReadUint32(hashAddr)
	if hash != unsetHash {
		return hash
	}
	hash = computeHash(h.StringBytes(addr))
	if hash == unsetHash {
		hash = unsetHashSentinel
	}
	a.WriteUint32(hashAddr, hash)
	return hash
}

// computeHash is the hash used to place string keys in an Object's
// open-addressed map.
func computeHash(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}

// stringEqual compares the String cells at a and b for byte equality,
// checking lengths first as the base spec requires.
func (h *Heap) stringEqual(a, b core.Address) bool {
	if a == b {
		return true
	}
	la, lb := h.StringLen(a), h.StringLen(b)
	if la != lb {
		return false
	}
	ba, bb := h.StringBytes(a), h.StringBytes(b)
	for i := range ba {
		if ba[i] != bb[i] {
			return false
		}
	}
	return true
}

// --- Context ---

// NewContext allocates a Context with the given slot count, all slots nil.
func (h *Heap) NewContext(slots int, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagContext, contextSlotsOffset+int64(slots)*wordSize, stackTop)
	if err != nil {
		return 0, err
	}
	a := h.arenaFor(addr)
	a.WriteUint64(addr.Add(contextCountOffset), uint64(slots))
	a.Zero(addr.Add(contextSlotsOffset), int64(slots)*wordSize)
	return addr, nil
}

// ContextSlots returns the slot count of the Context at addr.
func (h *Heap) ContextSlots(addr core.Address) int {
	return int(h.arenaFor(addr).ReadUint64(addr.Add(contextCountOffset)))
}

// ContextGet reads slot i of the Context at addr.
func (h *Heap) ContextGet(addr core.Address, i int) Value {
	return Value(h.arenaFor(addr).ReadAddress(contextSlotAddr(addr, i)))
}

// ContextSet writes slot i of the Context at addr.
func (h *Heap) ContextSet(addr core.Address, i int, v Value) {
	h.arenaFor(addr).WriteAddress(contextSlotAddr(addr, i), core.Address(v))
}

func contextSlotAddr(addr core.Address, i int) core.Address {
	return addr.Add(contextSlotsOffset + int64(i)*wordSize)
}

// --- Function ---

// NewFunction allocates a Function closing over parent (a Context address,
// or core.Nil for a top-level function).
func (h *Heap) NewFunction(code core.Address, parent core.Address, stackTop core.Address) (core.Address, error) {
	addr, err := h.Allocate(TagFunction, functionSize, stackTop)
	if err != nil {
		return 0, err
	}
	a := h.arenaFor(addr)
	a.WriteAddress(addr.Add(functionCodeOffset), code)
	a.WriteAddress(addr.Add(functionParentOffset), parent)
	return addr, nil
}

// FunctionCode returns the code entry point stored in the Function at addr.
func (h *Heap) FunctionCode(addr core.Address) core.Address {
	return h.arenaFor(addr).ReadAddress(addr.Add(functionCodeOffset))
}

// FunctionParent returns the closed-over Context address (or core.Nil).
func (h *Heap) FunctionParent(addr core.Address) core.Address {
	return h.arenaFor(addr).ReadAddress(addr.Add(functionParentOffset))
}
