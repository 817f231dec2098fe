// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build amd64 || arm64

package com

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type nativeRuntime struct{}

// NativeRuntime returns the Runtime that calls real native vtables.
func NativeRuntime() Runtime {
	return nativeRuntime{}
}

func (nativeRuntime) Call(h Handle, slot int, args ...uintptr) uintptr {
	fn := vtableSlot(h, slot)
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, uintptr(h))
	all = append(all, args...)
	r1, _, _ := purego.SyscallN(fn, all...)
	return r1
}

type nativeThunks struct{}

// NativeThunks returns the ThunkFactory that turns Go funcs into C-callable
// function pointers. Pointers it creates are never freed, so callers must
// create at most one per (interface, slot).
func NativeThunks() ThunkFactory {
	return nativeThunks{}
}

func (nativeThunks) NewThunk(fn any) (p uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("creating thunk: %v", r)
		}
	}()
	return purego.NewCallback(fn), nil
}
