// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"errors"
	"io"
	"sync"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

// ISequentialStream and IStream describe the stream interfaces that
// StreamCallback exposes to native code.
var (
	ISequentialStream = &Interface{
		IID:  IID_ISequentialStream,
		Name: "ISequentialStream",
		Methods: []Method{
			{Name: "Read", Arity: 3, Invoke: streamMethod((*StreamCallback).read)},
			{Name: "Write", Arity: 3, Invoke: streamMethod((*StreamCallback).write)},
		},
	}

	IStream = &Interface{
		IID:        IID_IStream,
		Name:       "IStream",
		Base:       ISequentialStream,
		Shadowable: true,
		Methods: []Method{
			{Name: "Seek", Arity: 3, Invoke: streamMethod((*StreamCallback).seek)},
			{Name: "SetSize", Arity: 1, Invoke: streamMethod((*StreamCallback).setSize)},
			{Name: "CopyTo", Arity: 4, Invoke: streamMethod((*StreamCallback).copyTo)},
			{Name: "Commit", Arity: 1, Invoke: streamMethod((*StreamCallback).commit)},
			{Name: "Revert", Arity: 0, Invoke: streamMethod((*StreamCallback).revert)},
			{Name: "LockRegion", Arity: 3, Invoke: streamMethod((*StreamCallback).lockRegion)},
			{Name: "UnlockRegion", Arity: 3, Invoke: streamMethod((*StreamCallback).unlockRegion)},
			{Name: "Stat", Arity: 2, Invoke: streamMethod((*StreamCallback).stat)},
			{Name: "Clone", Arity: 1, Invoke: streamMethod((*StreamCallback).clone)},
		},
	}
)

func streamMethod(fn func(*StreamCallback, []uintptr) dxinterop.HRESULT) func(Callback, []uintptr) uintptr {
	return func(cb Callback, args []uintptr) uintptr {
		s, ok := cb.(*StreamCallback)
		if !ok {
			return hresultResult(dxinterop.E_UNEXPECTED)
		}
		return hresultResult(fn(s, args))
	}
}

// copyChunk bounds the buffer used by CopyTo.
const copyChunk = 32 * 1024

// StreamCallback exposes an io.ReadWriteSeeker to native code as an IStream.
// If the underlying value also has a Truncate(int64) error method, SetSize
// uses it.
type StreamCallback struct {
	CallbackBase

	mu  sync.Mutex
	rws io.ReadWriteSeeker
}

// NewStreamCallback returns a StreamCallback serving rws.
func NewStreamCallback(rws io.ReadWriteSeeker) *StreamCallback {
	return &StreamCallback{rws: rws}
}

func (*StreamCallback) ShadowInterfaces() []*Interface {
	return []*Interface{IStream}
}

func (s *StreamCallback) read(args []uintptr) dxinterop.HRESULT {
	pv, cb, pcbRead := args[0], uint32(args[1]), args[2]
	if pv == 0 && cb > 0 {
		return dxinterop.STG_E_INVALIDPOINTER
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(pv)), cb)
	s.mu.Lock()
	n, err := io.ReadFull(s.rws, buf)
	s.mu.Unlock()

	if pcbRead != 0 {
		*(*uint32)(unsafe.Pointer(pcbRead)) = uint32(n)
	}
	// A short read at the end of the stream still succeeds; only a read
	// that returns nothing reports S_FALSE.
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF):
		return dxinterop.S_OK
	case errors.Is(err, io.EOF):
		return dxinterop.S_FALSE
	default:
		return dxinterop.STG_E_READFAULT
	}
}

func (s *StreamCallback) write(args []uintptr) dxinterop.HRESULT {
	pv, cb, pcbWritten := args[0], uint32(args[1]), args[2]
	if pv == 0 && cb > 0 {
		return dxinterop.STG_E_INVALIDPOINTER
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(pv)), cb)
	s.mu.Lock()
	n, err := s.rws.Write(buf)
	s.mu.Unlock()

	if pcbWritten != 0 {
		*(*uint32)(unsafe.Pointer(pcbWritten)) = uint32(n)
	}
	if err != nil {
		return dxinterop.STG_E_WRITEFAULT
	}
	return dxinterop.S_OK
}

// STREAM_SEEK_SET, STREAM_SEEK_CUR and STREAM_SEEK_END share their values
// with io.SeekStart, io.SeekCurrent and io.SeekEnd.
func (s *StreamCallback) seek(args []uintptr) dxinterop.HRESULT {
	offset, origin, pNewPos := int64(args[0]), int(uint32(args[1])), args[2]
	if origin > io.SeekEnd {
		return dxinterop.STG_E_INVALIDFUNCTION
	}

	s.mu.Lock()
	pos, err := s.rws.Seek(offset, origin)
	s.mu.Unlock()
	if err != nil {
		return dxinterop.STG_E_INVALIDFUNCTION
	}

	if pNewPos != 0 {
		*(*uint64)(unsafe.Pointer(pNewPos)) = uint64(pos)
	}
	return dxinterop.S_OK
}

func (s *StreamCallback) setSize(args []uintptr) dxinterop.HRESULT {
	t, ok := s.rws.(interface{ Truncate(int64) error })
	if !ok {
		return dxinterop.E_NOTIMPL
	}

	s.mu.Lock()
	err := t.Truncate(int64(args[0]))
	s.mu.Unlock()
	if err != nil {
		return dxinterop.STG_E_WRITEFAULT
	}
	return dxinterop.S_OK
}

// copyTo reads from s and writes through dest's own vtable, which may belong
// to another shadow or to a native stream.
func (s *StreamCallback) copyTo(args []uintptr) dxinterop.HRESULT {
	dest, total, pcbRead, pcbWritten := Handle(args[0]), uint64(args[1]), args[2], args[3]
	if dest == 0 {
		return dxinterop.STG_E_INVALIDPOINTER
	}
	c := s.Shadow()
	if c == nil {
		return dxinterop.E_UNEXPECTED
	}

	var read, written uint64
	hr := dxinterop.S_OK
	buf := make([]byte, copyChunk)
	for read < total {
		n := uint64(len(buf))
		if remaining := total - read; remaining < n {
			n = remaining
		}

		s.mu.Lock()
		m, err := s.rws.Read(buf[:n])
		s.mu.Unlock()

		if m > 0 {
			read += uint64(m)
			var cbWritten uint32
			rc := callVtable(c.host.rt, dest, slotSequentialWrite,
				uintptr(unsafe.Pointer(&buf[0])),
				uintptr(uint32(m)),
				uintptr(unsafe.Pointer(&cbWritten)),
			)
			written += uint64(cbWritten)
			if whr := hresultOf(rc); whr.Failed() {
				hr = whr
				break
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			hr = dxinterop.STG_E_READFAULT
			break
		}
	}

	if pcbRead != 0 {
		*(*uint64)(unsafe.Pointer(pcbRead)) = read
	}
	if pcbWritten != 0 {
		*(*uint64)(unsafe.Pointer(pcbWritten)) = written
	}
	return hr
}

func (s *StreamCallback) commit([]uintptr) dxinterop.HRESULT {
	return dxinterop.S_OK
}

func (s *StreamCallback) revert([]uintptr) dxinterop.HRESULT {
	return dxinterop.E_NOTIMPL
}

func (s *StreamCallback) lockRegion([]uintptr) dxinterop.HRESULT {
	return dxinterop.STG_E_INVALIDFUNCTION
}

func (s *StreamCallback) unlockRegion([]uintptr) dxinterop.HRESULT {
	return dxinterop.STG_E_INVALIDFUNCTION
}

func (s *StreamCallback) stat(args []uintptr) dxinterop.HRESULT {
	pstatstg := args[0]
	if pstatstg == 0 {
		return dxinterop.STG_E_INVALIDPOINTER
	}

	s.mu.Lock()
	size, err := streamSize(s.rws)
	s.mu.Unlock()
	if err != nil {
		return dxinterop.STG_E_READFAULT
	}

	*(*STATSTG)(unsafe.Pointer(pstatstg)) = STATSTG{
		Type: STGTY_STREAM,
		Size: uint64(size),
	}
	return dxinterop.S_OK
}

func (s *StreamCallback) clone(args []uintptr) dxinterop.HRESULT {
	if ppstm := args[0]; ppstm != 0 {
		*(*Handle)(unsafe.Pointer(ppstm)) = 0
	}
	return dxinterop.E_NOTIMPL
}

// streamSize returns the length of rws, leaving its position unchanged.
func streamSize(rws io.Seeker) (int64, error) {
	cur, err := rws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rws.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rws.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
