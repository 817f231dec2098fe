// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build (darwin || linux || freebsd) && (amd64 || arm64)

package dxinterop

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	libcOnce   sync.Once
	libcErr    error
	libcCalloc func(n, size uintptr) uintptr
	libcFree   func(p uintptr)
)

func libcName() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	default:
		return "libc.so.6"
	}
}

func loadLibc() error {
	libcOnce.Do(func() {
		lib, err := purego.Dlopen(libcName(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			libcErr = fmt.Errorf("loading libc: %w", err)
			return
		}
		purego.RegisterLibFunc(&libcCalloc, lib, "calloc")
		purego.RegisterLibFunc(&libcFree, lib, "free")
	})
	return libcErr
}

// NativeHeap allocates from the C runtime heap.
type NativeHeap struct {
	live atomic.Int64
}

// NewNativeHeap binds the C runtime allocator.
func NewNativeHeap() (*NativeHeap, error) {
	if err := loadLibc(); err != nil {
		return nil, err
	}
	return &NativeHeap{}, nil
}

func (h *NativeHeap) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		size = wordSize
	}
	p := libcCalloc(1, size)
	if p == 0 {
		return nil, ErrorFromHRESULT(E_OUTOFMEMORY)
	}
	h.live.Add(1)
	return unsafe.Pointer(p), nil
}

func (h *NativeHeap) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	libcFree(uintptr(p))
	h.live.Add(-1)
	return nil
}

func (h *NativeHeap) Live() int {
	return int(h.live.Load())
}
