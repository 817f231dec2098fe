// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package com bridges Go and native COM objects in both directions:
// CppObject and ComObject wrap native interface pointers with explicit
// lifetime management, while ShadowContainer exposes Go callbacks to native
// code as COM objects with synthesized vtables.
package com

import (
	"fmt"

	"github.com/dblohm7/dxinterop"
)

// Handle is the address of a native interface pointer, that is, a pointer to
// a pointer to a vtable. The zero Handle means "unbound".
type Handle uintptr

func (h Handle) String() string {
	return fmt.Sprintf("0x%X", uintptr(h))
}

// IID is a GUID that represents an interface ID.
type IID dxinterop.GUID

// CLSID is a GUID that represents a class ID.
type CLSID dxinterop.GUID

func (iid IID) String() string {
	return dxinterop.GUID(iid).String()
}

func (clsid CLSID) String() string {
	return dxinterop.GUID(clsid).String()
}

// MustParseIID parses s into an IID, panicking on malformed input.
func MustParseIID(s string) *IID {
	iid := IID(dxinterop.MustParseGUID(s))
	return &iid
}

// Vtable slots shared by every COM interface.
const (
	slotQueryInterface = 0
	slotAddRef         = 1
	slotRelease        = 2

	unknownSlots = 3
)

var (
	IID_IUnknown = &IID{0x00000000, 0x0000, 0x0000, [8]byte{0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}}
)
