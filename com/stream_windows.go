// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"io"
	"unsafe"

	"github.com/dblohm7/dxinterop"
	"golang.org/x/sys/windows"
)

var (
	modshlwapi            = windows.NewLazySystemDLL("shlwapi.dll")
	procSHCreateMemStream = modshlwapi.NewProc("SHCreateMemStream")
)

func freeCoTaskMem(p uintptr) {
	windows.CoTaskMemFree(unsafe.Pointer(p))
}

// NewMemoryStream creates a new in-memory Stream object initially containing
// initialBytes. Its seek pointer is guaranteed to be the start of the stream.
func NewMemoryStream(host *Host, initialBytes []byte) (result Stream, _ error) {
	if len(initialBytes) > maxStreamRWLen {
		return result, dxinterop.ErrorFromHRESULT(dxinterop.E_OUTOFMEMORY)
	}
	if err := procSHCreateMemStream.Find(); err != nil {
		return result, err
	}

	var base *byte
	var length uint32
	if l := len(initialBytes); l > 0 {
		base = &initialBytes[0]
		length = uint32(l)
	}

	r0, _, _ := procSHCreateMemStream.Call(uintptr(unsafe.Pointer(base)), uintptr(length))
	if r0 == 0 {
		return result, dxinterop.ErrorFromHRESULT(dxinterop.E_OUTOFMEMORY)
	}

	obj := Stream{NewComObject(host, Handle(r0))}
	if _, err := obj.Seek(0, io.SeekStart); err != nil {
		obj.Close()
		return result, err
	}

	return obj, nil
}
