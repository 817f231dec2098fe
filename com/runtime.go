// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

// Runtime issues calls through native vtables. Call invokes slot of the
// interface pointer h, passing h as the implicit first argument followed by
// args, and returns the raw result register.
type Runtime interface {
	Call(h Handle, slot int, args ...uintptr) uintptr
}

// callVtable is the single path through which this package hands pointers to
// native code. The directive forces any pointer converted to uintptr in the
// argument list onto the heap and keeps it alive for the call, exactly as
// for syscall.SyscallN.
//
//go:uintptrescapes
//go:noinline
func callVtable(rt Runtime, h Handle, slot int, args ...uintptr) uintptr {
	return rt.Call(h, slot, args...)
}

func hresultOf(r uintptr) dxinterop.HRESULT {
	return dxinterop.HRESULT(int32(uint32(r)))
}

func queryInterface(rt Runtime, h Handle, iid *IID) (Handle, dxinterop.HRESULT) {
	var out Handle
	rc := callVtable(rt, h, slotQueryInterface, uintptr(unsafe.Pointer(iid)), uintptr(unsafe.Pointer(&out)))
	return out, hresultOf(rc)
}

func addRef(rt Runtime, h Handle) uint32 {
	return uint32(callVtable(rt, h, slotAddRef))
}

func release(rt Runtime, h Handle) uint32 {
	return uint32(callVtable(rt, h, slotRelease))
}

// vtableSlot reads the function pointer stored in slot of h's vtable.
func vtableSlot(h Handle, slot int) uintptr {
	vtbl := *(**uintptr)(unsafe.Pointer(h))
	return unsafe.Slice(vtbl, slot+1)[slot]
}
