// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"unsafe"
)

var (
	IID_ID3DBlob = &IID{0x8BA5FB08, 0x5195, 0x40E2, [8]byte{0xAC, 0x58, 0x0D, 0x98, 0x9C, 0x3A, 0x01, 0x02}}
)

const (
	slotBlobBufferPointer = unknownSlots + iota
	slotBlobBufferSize
)

// Blob wraps an ID3DBlob reference: an immutable native byte buffer owned
// by the blob.
type Blob struct {
	*ComObject
}

func (Blob) GetIID() *IID {
	return IID_ID3DBlob
}

func (Blob) Make(obj *ComObject) any {
	return Blob{obj}
}

// BufferPointer returns the address of the blob's data. It stays valid until
// the blob is released.
func (o Blob) BufferPointer() (unsafe.Pointer, error) {
	h, err := o.boundHandle("GetBufferPointer")
	if err != nil {
		return nil, err
	}
	p := callVtable(o.host.rt, h, slotBlobBufferPointer)
	return unsafe.Pointer(p), nil
}

// BufferSize returns the length of the blob's data in bytes.
func (o Blob) BufferSize() (uintptr, error) {
	h, err := o.boundHandle("GetBufferSize")
	if err != nil {
		return 0, err
	}
	return callVtable(o.host.rt, h, slotBlobBufferSize), nil
}
