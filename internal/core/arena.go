// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

// An Arena is a fixed-size, page-aligned region of memory obtained directly
// from the operating system via an anonymous mmap. It is the Go-native
// replacement for the raw heap pages the reference implementation carves out
// of a process's C heap: a []byte slice would work just as well for
// correctness, but mmap gives every page a stable base address that survives
// slice growth, which matters once Address values computed from one page are
// compared against another.
type Arena struct {
	base Address
	mem  []byte
}

// NewArena allocates a new Arena of the given size, rounded up to the system
// page size by the kernel.
func NewArena(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("core: arena size must be positive, got %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("core: mmap %d bytes: %w", size, err)
	}
	return &Arena{
		base: Address(uintptr(unsafe.Pointer(&mem[0]))),
		mem:  mem,
	}, nil
}

// Close unmaps the arena. The arena must not be used afterward.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Base returns the address of the first byte of the arena.
func (a *Arena) Base() Address {
	return a.base
}

// Size returns the arena's length in bytes.
func (a *Arena) Size() int64 {
	return int64(len(a.mem))
}

// End returns the address just past the last byte of the arena.
func (a *Arena) End() Address {
	return a.base.Add(a.Size())
}

// Contains reports whether addr names a byte within the arena.
func (a *Arena) Contains(addr Address) bool {
	return addr >= a.base && addr < a.End()
}

func (a *Arena) off(addr Address, n int64) []byte {
	start := addr.Sub(a.base)
	if start < 0 || start+n > int64(len(a.mem)) {
		panic(fmt.Sprintf("core: access [%d,%d) out of bounds for arena of size %d", start, start+n, len(a.mem)))
	}
	return a.mem[start : start+n]
}

// Bytes returns the n bytes of the arena starting at addr.
func (a *Arena) Bytes(addr Address, n int64) []byte {
	return a.off(addr, n)
}

// WriteBytes copies b into the arena at addr.
func (a *Arena) WriteBytes(addr Address, b []byte) {
	copy(a.off(addr, int64(len(b))), b)
}

// Zero fills n bytes starting at addr with zero.
func (a *Arena) Zero(addr Address, n int64) {
	b := a.off(addr, n)
	for i := range b {
		b[i] = 0
	}
}

// ReadUint8 reads a single byte at addr.
func (a *Arena) ReadUint8(addr Address) uint8 {
	return a.off(addr, 1)[0]
}

// WriteUint8 writes a single byte at addr.
func (a *Arena) WriteUint8(addr Address, v uint8) {
	a.off(addr, 1)[0] = v
}

// ReadUint32 reads a little-endian uint32 at addr.
func (a *Arena) ReadUint32(addr Address) uint32 {
	return binary.LittleEndian.Uint32(a.off(addr, 4))
}

// WriteUint32 writes a little-endian uint32 at addr.
func (a *Arena) WriteUint32(addr Address, v uint32) {
	binary.LittleEndian.PutUint32(a.off(addr, 4), v)
}

// ReadUint64 reads a little-endian uint64 at addr.
func (a *Arena) ReadUint64(addr Address) uint64 {
	return binary.LittleEndian.Uint64(a.off(addr, 8))
}

// WriteUint64 writes a little-endian uint64 at addr.
func (a *Arena) WriteUint64(addr Address, v uint64) {
	binary.LittleEndian.PutUint64(a.off(addr, 8), v)
}

// ReadAddress reads a word-sized Address at addr.
func (a *Arena) ReadAddress(addr Address) Address {
	return Address(a.ReadUint64(addr))
}

// WriteAddress writes a word-sized Address at addr.
func (a *Arena) WriteAddress(addr Address, v Address) {
	a.WriteUint64(addr, uint64(v))
}

// ReadFloat64 reads a little-endian IEEE-754 double at addr.
func (a *Arena) ReadFloat64(addr Address) float64 {
	return math.Float64frombits(a.ReadUint64(addr))
}

// WriteFloat64 writes a little-endian IEEE-754 double at addr.
func (a *Arena) WriteFloat64(addr Address, v float64) {
	a.WriteUint64(addr, math.Float64bits(v))
}
