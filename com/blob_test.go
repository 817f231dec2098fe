// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/dblohm7/dxinterop"
	"github.com/dblohm7/dxinterop/buffer"
	"github.com/dblohm7/dxinterop/com"
	"github.com/dblohm7/dxinterop/com/comtest"
)

var blobData = []uint32{0xDEADBEEF, 0x01020304, 42}

func TestBlobDataBuffer(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	fake := env.Runtime.NewObject(com.IID_ID3DBlob)
	fake.SetMethod(3, func([]uintptr) uintptr {
		return uintptr(unsafe.Pointer(&blobData[0]))
	})
	fake.SetMethod(4, func([]uintptr) uintptr {
		return uintptr(len(blobData)) * unsafe.Sizeof(blobData[0])
	})

	blob := com.Wrap[com.Blob](env.Host, fake.Handle())
	buf, err := buffer.NewDataBufferFromBlob(blob)
	if err != nil {
		t.Fatalf("NewDataBufferFromBlob: %v", err)
	}
	if got, want := buf.Size(), 12; got != want {
		t.Errorf("Size got %d, want %d", got, want)
	}
	if got := buf.Mode(); got != buffer.Foreign {
		t.Errorf("Mode got %s, want %s", got, buffer.Foreign)
	}
	v, err := buffer.Get[uint32](buf, 4)
	if err != nil || v != 0x01020304 {
		t.Errorf("Get got (%#x, %v), want (0x1020304, nil)", v, err)
	}
	if _, err := buffer.Get[uint32](buf, 12); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("Get past the end got %v, want ErrOutOfRange", err)
	}

	if err := buf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := fake.RefCount(); got != 0 {
		t.Errorf("closing the buffer left refcount %d, want 0", got)
	}
	if _, err := blob.BufferPointer(); !errors.Is(err, dxinterop.ErrInvalidState) {
		t.Errorf("BufferPointer after Close got %v, want ErrInvalidState", err)
	}
}

func TestEmptyBlobDataStream(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	fake := env.Runtime.NewObject(com.IID_ID3DBlob)
	fake.SetMethod(3, func([]uintptr) uintptr { return 0 })
	fake.SetMethod(4, func([]uintptr) uintptr { return 0 })
	unk := env.Host.Wrap(fake.Handle())
	defer unk.Close()

	blob, err := com.QueryInterface[com.Blob](unk)
	if err != nil {
		t.Fatalf("QueryInterface: %v", err)
	}
	ds, err := buffer.NewDataStreamFromBlob(blob)
	if err != nil {
		t.Fatalf("NewDataStreamFromBlob: %v", err)
	}
	if ds.CanWrite() || ds.Length() != 0 {
		t.Errorf("got writable %v length %d, want read-only and empty", ds.CanWrite(), ds.Length())
	}
	if got := fake.RefCount(); got != 2 {
		t.Errorf("refcount got %d, want 2", got)
	}
	ds.Close()
	if got := fake.RefCount(); got != 1 {
		t.Errorf("refcount after Close got %d, want 1", got)
	}
}
