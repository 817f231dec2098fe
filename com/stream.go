// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"io"
	"math"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

var (
	IID_ISequentialStream = &IID{0x0C733A30, 0x2A1C, 0x11CE, [8]byte{0xAD, 0xE5, 0x00, 0xAA, 0x00, 0x44, 0x77, 0x3D}}
	IID_IStream           = &IID{0x0000000C, 0x0000, 0x0000, [8]byte{0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}}
)

type STGC uint32

const (
	STGC_DEFAULT                            = STGC(0)
	STGC_OVERWRITE                          = STGC(1)
	STGC_ONLYIFCURRENT                      = STGC(2)
	STGC_DANGEROUSLYCOMMITMERELYTODISKCACHE = STGC(4)
	STGC_CONSOLIDATE                        = STGC(8)
)

type LOCKTYPE uint32

const (
	LOCK_WRITE     = LOCKTYPE(1)
	LOCK_EXCLUSIVE = LOCKTYPE(2)
	LOCK_ONLYONCE  = LOCKTYPE(4)
)

type STGTY uint32

const (
	STGTY_STORAGE   = STGTY(1)
	STGTY_STREAM    = STGTY(2)
	STGTY_LOCKBYTES = STGTY(3)
	STGTY_PROPERTY  = STGTY(4)
)

type STATFLAG uint32

const (
	STATFLAG_DEFAULT = STATFLAG(0)
	STATFLAG_NONAME  = STATFLAG(1)
	STATFLAG_NOOPEN  = STATFLAG(2)
)

// Filetime mirrors the native FILETIME structure.
type Filetime struct {
	LowDateTime  uint32
	HighDateTime uint32
}

type STATSTG struct {
	// Name is a CoTaskMem-allocated UTF-16 string, or zero.
	Name           uintptr
	Type           STGTY
	Size           uint64
	MTime          Filetime
	CTime          Filetime
	ATime          Filetime
	Mode           uint32
	LocksSupported LOCKTYPE
	ClsID          CLSID
	_              uint32 // StateBits
	_              uint32 // reserved
}

// Close frees st.Name.
func (st *STATSTG) Close() error {
	if st.Name != 0 {
		freeCoTaskMem(st.Name)
		st.Name = 0
	}
	return nil
}

const (
	slotSequentialRead = unknownSlots + iota
	slotSequentialWrite
	slotStreamSeek
	slotStreamSetSize
	slotStreamCopyTo
	slotStreamCommit
	slotStreamRevert
	slotStreamLockRegion
	slotStreamUnlockRegion
	slotStreamStat
	slotStreamClone
)

// maxStreamRWLen is the largest buffer a single Read or Write passes to
// native code.
const maxStreamRWLen = math.MaxInt32

// Stream wraps an IStream reference. It implements io.ReadWriteSeeker.
type Stream struct {
	*ComObject
}

func (Stream) GetIID() *IID {
	return IID_IStream
}

func (Stream) Make(obj *ComObject) any {
	return Stream{obj}
}

func (o Stream) Read(p []byte) (int, error) {
	h, err := o.boundHandle("Read")
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > maxStreamRWLen {
		p = p[:maxStreamRWLen]
	}

	var cbRead uint32
	rc := callVtable(o.host.rt, h, slotSequentialRead,
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(uint32(len(p))),
		uintptr(unsafe.Pointer(&cbRead)),
	)
	e := dxinterop.ErrorFromHRESULT(hresultOf(rc))
	if e.Failed() {
		return int(cbRead), e
	}

	// Various implementations of IStream handle EOF differently. We need to
	// deal with both.
	if e.AsHRESULT() == dxinterop.S_FALSE || cbRead == 0 {
		return int(cbRead), io.EOF
	}

	return int(cbRead), nil
}

func (o Stream) Write(p []byte) (int, error) {
	h, err := o.boundHandle("Write")
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > maxStreamRWLen {
		return 0, dxinterop.ErrorFromHRESULT(dxinterop.E_INVALIDARG)
	}

	var cbWritten uint32
	rc := callVtable(o.host.rt, h, slotSequentialWrite,
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(uint32(len(p))),
		uintptr(unsafe.Pointer(&cbWritten)),
	)
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return int(cbWritten), e
	}

	return int(cbWritten), nil
}

func (o Stream) Seek(offset int64, whence int) (n int64, _ error) {
	h, err := o.boundHandle("Seek")
	if err != nil {
		return 0, err
	}

	rc := callVtable(o.host.rt, h, slotStreamSeek,
		uintptr(offset),
		uintptr(uint32(whence)),
		uintptr(unsafe.Pointer(&n)),
	)
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return 0, e
	}

	return n, nil
}

func (o Stream) SetSize(newSize uint64) error {
	h, err := o.boundHandle("SetSize")
	if err != nil {
		return err
	}

	rc := callVtable(o.host.rt, h, slotStreamSetSize, uintptr(newSize))
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return e
	}

	return nil
}

func (o Stream) CopyTo(dest Stream, numBytesToCopy uint64) (bytesRead, bytesWritten uint64, _ error) {
	h, err := o.boundHandle("CopyTo")
	if err != nil {
		return 0, 0, err
	}
	dh, err := dest.boundHandle("CopyTo")
	if err != nil {
		return 0, 0, err
	}

	rc := callVtable(o.host.rt, h, slotStreamCopyTo,
		uintptr(dh),
		uintptr(numBytesToCopy),
		uintptr(unsafe.Pointer(&bytesRead)),
		uintptr(unsafe.Pointer(&bytesWritten)),
	)
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return bytesRead, bytesWritten, e
	}

	return bytesRead, bytesWritten, nil
}

func (o Stream) Commit(flags STGC) error {
	return o.simpleCall("Commit", slotStreamCommit, uintptr(flags))
}

func (o Stream) Revert() error {
	return o.simpleCall("Revert", slotStreamRevert)
}

func (o Stream) LockRegion(offset, numBytes uint64, lockType LOCKTYPE) error {
	return o.simpleCall("LockRegion", slotStreamLockRegion, uintptr(offset), uintptr(numBytes), uintptr(lockType))
}

func (o Stream) UnlockRegion(offset, numBytes uint64, lockType LOCKTYPE) error {
	return o.simpleCall("UnlockRegion", slotStreamUnlockRegion, uintptr(offset), uintptr(numBytes), uintptr(lockType))
}

// simpleCall must only be given arguments that are not pointers.
func (o Stream) simpleCall(op string, slot int, args ...uintptr) error {
	h, err := o.boundHandle(op)
	if err != nil {
		return err
	}

	rc := callVtable(o.host.rt, h, slot, args...)
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return e
	}

	return nil
}

// Stat returns the stream's statistics. Unless flags includes
// STATFLAG_NONAME, the caller must Close the result.
func (o Stream) Stat(flags STATFLAG) (result STATSTG, _ error) {
	h, err := o.boundHandle("Stat")
	if err != nil {
		return result, err
	}

	rc := callVtable(o.host.rt, h, slotStreamStat,
		uintptr(unsafe.Pointer(&result)),
		uintptr(flags),
	)
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return result, e
	}

	return result, nil
}

// Size returns the stream length as reported by Stat.
func (o Stream) Size() (uint64, error) {
	st, err := o.Stat(STATFLAG_NONAME)
	if err != nil {
		return 0, err
	}
	return st.Size, nil
}

func (o Stream) Clone() (result Stream, _ error) {
	h, err := o.boundHandle("Clone")
	if err != nil {
		return result, err
	}

	var out Handle
	rc := callVtable(o.host.rt, h, slotStreamClone, uintptr(unsafe.Pointer(&out)))
	if e := dxinterop.ErrorFromHRESULT(hresultOf(rc)); e.Failed() {
		return result, e
	}
	if out == 0 {
		return result, dxinterop.ErrorFromHRESULT(dxinterop.E_POINTER)
	}

	return Stream{NewComObject(o.host, out)}, nil
}
