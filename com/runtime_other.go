// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !(amd64 || arm64)

package com

import (
	"github.com/dblohm7/dxinterop"
)

type nativeRuntime struct{}

// NativeRuntime returns a Runtime whose calls all fail with E_NOTIMPL; native
// calls are only wired up on amd64 and arm64.
func NativeRuntime() Runtime {
	return nativeRuntime{}
}

func (nativeRuntime) Call(h Handle, slot int, args ...uintptr) uintptr {
	return hresultResult(dxinterop.E_NOTIMPL)
}

type nativeThunks struct{}

// NativeThunks returns a ThunkFactory that always fails on this platform.
func NativeThunks() ThunkFactory {
	return nativeThunks{}
}

func (nativeThunks) NewThunk(fn any) (uintptr, error) {
	return 0, dxinterop.ErrUnsupported
}
