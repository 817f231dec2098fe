// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package dxinterop

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	lmemFixed    = 0x0000
	lmemZeroInit = 0x0040
)

// NativeHeap allocates from the process heap via LocalAlloc.
type NativeHeap struct {
	live atomic.Int64
}

// NewNativeHeap returns a NativeHeap.
func NewNativeHeap() (*NativeHeap, error) {
	return &NativeHeap{}, nil
}

func (h *NativeHeap) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		size = wordSize
	}
	p, err := windows.LocalAlloc(lmemFixed|lmemZeroInit, uint32(size))
	if err != nil {
		return nil, err
	}
	h.live.Add(1)
	return unsafe.Pointer(p), nil
}

func (h *NativeHeap) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	if _, err := windows.LocalFree(windows.Handle(uintptr(p))); err != nil {
		return err
	}
	h.live.Add(-1)
	return nil
}

func (h *NativeHeap) Live() int {
	return int(h.live.Load())
}
