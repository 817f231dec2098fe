// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// Allocator provides memory whose address stays valid while native code
// holds it, such as synthesized vtables and owned buffers.
type Allocator interface {
	// Alloc returns a block of at least size bytes, aligned to the platform
	// word size. Callers must not assume its contents are zeroed.
	Alloc(size uintptr) (unsafe.Pointer, error)
	// Free releases a block previously returned by Alloc.
	Free(p unsafe.Pointer) error
	// Live returns the number of blocks currently allocated.
	Live() int
}

const wordSize = unsafe.Sizeof(uintptr(0))

type pinnedBlock struct {
	words  []uintptr
	pinner runtime.Pinner
}

// PinnedHeap allocates from the Go heap and pins each block with a
// runtime.Pinner so that its address may be stored in native memory. Blocks
// are not scanned by the garbage collector, so they must not hold the only
// reference to any Go value.
type PinnedHeap struct {
	mu     sync.Mutex
	blocks map[unsafe.Pointer]*pinnedBlock
}

// NewPinnedHeap returns an empty PinnedHeap.
func NewPinnedHeap() *PinnedHeap {
	return &PinnedHeap{blocks: make(map[unsafe.Pointer]*pinnedBlock)}
}

func (h *PinnedHeap) Alloc(size uintptr) (unsafe.Pointer, error) {
	n := (size + wordSize - 1) / wordSize
	if n == 0 {
		n = 1
	}

	b := &pinnedBlock{words: make([]uintptr, n)}
	p := unsafe.Pointer(&b.words[0])
	b.pinner.Pin(p)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocks[p] = b
	return p, nil
}

func (h *PinnedHeap) Free(p unsafe.Pointer) error {
	h.mu.Lock()
	b, ok := h.blocks[p]
	delete(h.blocks, p)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %p was not allocated by this heap", ErrInvalidState, p)
	}
	b.pinner.Unpin()
	return nil
}

func (h *PinnedHeap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blocks)
}

// NewAllocator returns the allocator named by kind: "go" (or empty) for a
// PinnedHeap, "native" for the platform C heap.
func NewAllocator(kind string) (Allocator, error) {
	switch kind {
	case "", AllocatorGo:
		return NewPinnedHeap(), nil
	case AllocatorNative:
		h, err := NewNativeHeap()
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown allocator %q", kind)
	}
}
