// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !windows && !((darwin || linux || freebsd) && (amd64 || arm64))

package dxinterop

import (
	"unsafe"
)

// NativeHeap is unavailable on this platform.
type NativeHeap struct{}

// NewNativeHeap always fails with ErrUnsupported on this platform.
func NewNativeHeap() (*NativeHeap, error) {
	return nil, ErrUnsupported
}

func (h *NativeHeap) Alloc(size uintptr) (unsafe.Pointer, error) {
	return nil, ErrUnsupported
}

func (h *NativeHeap) Free(p unsafe.Pointer) error {
	return ErrUnsupported
}

func (h *NativeHeap) Live() int {
	return 0
}
