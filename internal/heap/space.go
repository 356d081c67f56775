// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"errors"
	"fmt"
	"os"

	"github.com/candor-lang/candor/internal/core"
	"github.com/candor-lang/candor/internal/logutil"
)

// ErrOutOfMemory is returned when a page cannot be grown to satisfy an
// allocation. The base spec treats this as fatal; candor leaves that
// decision to the caller (typically cmd/candor, which logs and exits).
var ErrOutOfMemory = errors.New("heap: out of memory")

// A page is one fixed-size arena within a Space, bump-allocated from top
// toward limit.
type page struct {
	arena *core.Arena
	top   core.Address
	limit core.Address
}

func newPage(size int64) (*page, error) {
	a, err := core.NewArena(int(size))
	if err != nil {
		return nil, err
	}
	return &page{arena: a, top: a.Base(), limit: a.End()}, nil
}

func (p *page) contains(addr core.Address) bool {
	return p.arena.Contains(addr)
}

// remaining returns the number of free bytes left in the page.
func (p *page) remaining() int64 {
	return p.limit.Sub(p.top)
}

// bump reserves n bytes at the current top, returning their address.
// Caller must have checked remaining() >= n.
func (p *page) bump(n int64) core.Address {
	addr := p.top
	p.top = p.top.Add(n)
	return addr
}

// A Space is a sequence of pages that together hold one generation (or, for
// the duration of a collection, the copy destination) of the managed heap.
type Space struct {
	pages    []*page
	pageSize int64
}

func newSpace(pageSize int64) (*Space, error) {
	s := &Space{pageSize: pageSize}
	p, err := newPage(pageSize)
	if err != nil {
		return nil, err
	}
	s.pages = append(s.pages, p)
	return s, nil
}

func (s *Space) current() *page {
	return s.pages[len(s.pages)-1]
}

// grow adds a fresh page to the space, sized to hold at least need bytes.
func (s *Space) grow(need int64) error {
	size := s.pageSize
	if need > size {
		size = need
	}
	p, err := newPage(size)
	if err != nil {
		return err
	}
	s.pages = append(s.pages, p)
	return nil
}

func (s *Space) contains(addr core.Address) bool {
	for _, p := range s.pages {
		if p.contains(addr) {
			return true
		}
	}
	return false
}

// close releases every page's backing arena.
func (s *Space) close() {
	for _, p := range s.pages {
		p.arena.Close()
	}
}

// bytesInUse returns the number of bytes bump-allocated across every page.
func (s *Space) bytesInUse() int64 {
	var n int64
	for _, p := range s.pages {
		n += p.top.Sub(p.arena.Base())
	}
	return n
}

// A Heap is the candor managed heap: two semispaces, the conservative stack
// range used for root scanning, and the log used to report collector
// activity. It is the runtime-facing analogue of the reference
// implementation's Heap class.
type Heap struct {
	newSpace *Space
	toSpace  *Space // non-nil only while a collection is in progress

	// The conservative root range: words in [stackTop, rootStack) of
	// stackArena are treated as candidate GC roots. The compiler/codegen
	// that would normally maintain an actual machine stack is out of
	// scope here, so tests and cmd/candor populate stackArena directly.
	stackArena *core.Arena
	rootStack  core.Address

	gcCount int
	log     *logutil.Logger
}

// Config configures a new Heap.
type Config struct {
	PageSize int64 // bytes per page; rounded up by the OS to a page boundary
	GCTrace  bool  // if set, CollectGarbage logs a line per collection at debug level
	Log      *logutil.Logger
}

// DefaultPageSize is used when Config.PageSize is zero.
const DefaultPageSize = 1 << 16

// NewHeap creates a Heap with one page in its new space.
func NewHeap(cfg Config) (*Heap, error) {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	ns, err := newSpace(pageSize)
	if err != nil {
		return nil, err
	}
	l := cfg.Log
	if l == nil {
		l = logutil.New(os.Stderr, cfg.GCTrace)
	} else if cfg.GCTrace {
		l.SetDebug(true)
	}
	return &Heap{newSpace: ns, log: l}, nil
}

// Close releases all arenas owned by the heap. The stack arena installed by
// SetStack is not closed; it stays with the caller.
func (h *Heap) Close() {
	h.newSpace.close()
	if h.toSpace != nil {
		h.toSpace.close()
	}
}

// SetStack installs the arena and upper bound (root_stack) used for
// conservative root scanning. stackArena need not be one of the heap's own
// pages — it represents whatever memory range holds the managed mutator's
// live references.
func (h *Heap) SetStack(stackArena *core.Arena, rootStack core.Address) {
	h.stackArena = stackArena
	h.rootStack = rootStack
}

// GCCount returns the number of completed collections, for tests and stats.
func (h *Heap) GCCount() int {
	return h.gcCount
}

// BytesInUse returns the number of bytes bump-allocated in the active new
// space.
func (h *Heap) BytesInUse() int64 {
	return h.newSpace.bytesInUse()
}

// arenaFor locates the arena backing addr, across both the active new space
// and (if a collection is underway) the to space. Returns nil if addr is not
// heap memory at all (e.g. it is an unboxed integer misread as a pointer).
func (h *Heap) arenaFor(addr core.Address) *core.Arena {
	for _, p := range h.newSpace.pages {
		if p.contains(addr) {
			return p.arena
		}
	}
	if h.toSpace != nil {
		for _, p := range h.toSpace.pages {
			if p.contains(addr) {
				return p.arena
			}
		}
	}
	return nil
}

// Allocate reserves size bytes tagged tag in the new space, running a
// collection first if the current page cannot satisfy the request.
// size is rounded up to an even number of bytes as the base spec requires.
//
// A zero stackTop disables collection for the duration of this call — the
// "no-GC scope" used to pair an Object with its Map atomically. Prefer
// AllocateNoGC, which names that intent instead of relying on the sentinel.
func (h *Heap) Allocate(tag Tag, size int64, stackTop core.Address) (core.Address, error) {
	size = cellSize(size)
	p := h.newSpace.current()
	if p.remaining() < size {
		if stackTop != core.Nil {
			if err := h.CollectGarbage(stackTop); err != nil {
				return 0, err
			}
			p = h.newSpace.current()
		}
		if p.remaining() < size {
			if err := h.newSpace.grow(size); err != nil {
				return 0, fmt.Errorf("%w: growing new space: %v", ErrOutOfMemory, err)
			}
			p = h.newSpace.current()
		}
	}
	addr := p.bump(size)
	p.arena.WriteUint8(addr, uint8(tag))
	return addr, nil
}

// AllocateNoGC is Allocate with GC suppressed, for use inside a no-GC scope
// (see NewObject).
func (h *Heap) AllocateNoGC(tag Tag, size int64) (core.Address, error) {
	return h.Allocate(tag, size, core.Nil)
}
