// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package buffer

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

// DataStream is a view over unmanaged memory with a cursor. It implements
// io.Reader, io.Writer, io.Seeker and io.ReaderAt, all bounds checked. A
// DataStream is not safe for concurrent use.
type DataStream struct {
	region
	pos      int64
	canRead  bool
	canWrite bool
}

func newDataStream(s span, canRead, canWrite bool) *DataStream {
	ds := &DataStream{canRead: canRead, canWrite: canWrite}
	ds.span = s
	return ds
}

// NewDataStream allocates a readable and writable stream of size bytes from
// alloc, or from a pinned Go heap when alloc is nil.
func NewDataStream(alloc dxinterop.Allocator, size int, zeroed bool) (*DataStream, error) {
	s, err := allocSpan(alloc, size, zeroed)
	if err != nil {
		return nil, err
	}
	return newDataStream(s, true, true), nil
}

// NewDataStreamFromPointer views size bytes at p, which stays owned by the
// caller.
func NewDataStreamFromPointer(p unsafe.Pointer, size int, canRead, canWrite bool) (*DataStream, error) {
	s, err := foreignSpan(p, size)
	if err != nil {
		return nil, err
	}
	return newDataStream(s, canRead, canWrite), nil
}

// PinDataStream views the backing array of s, pinning it until Close.
func PinDataStream[T any](s []T) *DataStream {
	return newDataStream(pinSpan(s), true, true)
}

// NewDataStreamFromBlob views the contents of blob read-only. On success the
// stream owns blob and closes it on Close.
func NewDataStreamFromBlob(blob BlobSource) (*DataStream, error) {
	s, err := blobSpan(blob)
	if err != nil {
		return nil, err
	}
	return newDataStream(s, true, false), nil
}

// CanRead reports whether the stream allows reads.
func (s *DataStream) CanRead() bool { return s.canRead }

// CanWrite reports whether the stream allows writes.
func (s *DataStream) CanWrite() bool { return s.canWrite }

// Position returns the cursor.
func (s *DataStream) Position() int64 { return s.pos }

// Length returns the stream length in bytes.
func (s *DataStream) Length() int64 { return int64(s.size) }

// RemainingLength returns the number of bytes after the cursor.
func (s *DataStream) RemainingLength() int64 { return int64(s.size) - s.pos }

// Seek moves the cursor. A target before the start or beyond the end fails
// with dxinterop.ErrOutOfRange and leaves the cursor unchanged; the end
// itself is a valid target.
func (s *DataStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(s.size) + offset
	default:
		return s.pos, fmt.Errorf("%w: invalid whence %d", dxinterop.ErrInvalidState, whence)
	}
	if target < 0 || target > int64(s.size) {
		return s.pos, fmt.Errorf("%w: seek to %d in stream of length %d", dxinterop.ErrOutOfRange, target, s.size)
	}
	s.pos = target
	return target, nil
}

func (s *DataStream) Read(p []byte) (int, error) {
	if !s.canRead {
		return 0, fmt.Errorf("%w: stream is not readable", dxinterop.ErrInvalidState)
	}
	if s.pos >= int64(s.size) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.Bytes()[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *DataStream) ReadAt(p []byte, off int64) (int, error) {
	if !s.canRead {
		return 0, fmt.Errorf("%w: stream is not readable", dxinterop.ErrInvalidState)
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", dxinterop.ErrOutOfRange, off)
	}
	if off >= int64(s.size) {
		return 0, io.EOF
	}
	n := copy(p, s.Bytes()[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write copies p at the cursor. A write that does not fit writes nothing and
// fails with dxinterop.ErrOutOfRange.
func (s *DataStream) Write(p []byte) (int, error) {
	if !s.canWrite {
		return 0, fmt.Errorf("%w: stream is not writable", dxinterop.ErrInvalidState)
	}
	if err := s.check(s.pos, len(p)); err != nil {
		return 0, err
	}
	n := copy(s.Bytes()[s.pos:], p)
	s.pos += int64(n)
	return n, nil
}

// ReadValue reads a T at the cursor and advances past it.
func ReadValue[T any](s *DataStream) (T, error) {
	var v T
	if !s.canRead {
		return v, fmt.Errorf("%w: stream is not readable", dxinterop.ErrInvalidState)
	}
	n := sizeOf[T]()
	if err := s.check(s.pos, n); err != nil {
		return v, err
	}
	v = *(*T)(s.at(s.pos))
	s.pos += int64(n)
	return v, nil
}

// ReadUnchecked reads a T at the cursor and advances past it, without any
// bounds or access check.
func ReadUnchecked[T any](s *DataStream) T {
	v := *(*T)(unsafe.Add(s.ptr, s.pos))
	s.pos += int64(unsafe.Sizeof(v))
	return v
}

// WriteValue writes v at the cursor and advances past it.
func WriteValue[T any](s *DataStream, v T) error {
	if !s.canWrite {
		return fmt.Errorf("%w: stream is not writable", dxinterop.ErrInvalidState)
	}
	if err := checkStore[T](&s.region); err != nil {
		return err
	}
	n := sizeOf[T]()
	if err := s.check(s.pos, n); err != nil {
		return err
	}
	*(*T)(s.at(s.pos)) = v
	s.pos += int64(n)
	return nil
}

// WriteUnchecked writes v at the cursor and advances past it, without any
// bounds or access check. T must not hold Go pointers unless s is Pinned.
func WriteUnchecked[T any](s *DataStream, v T) {
	*(*T)(unsafe.Add(s.ptr, s.pos)) = v
	s.pos += int64(unsafe.Sizeof(v))
}

// ReadRange fills dst from the cursor and advances past the values read.
func ReadRange[T any](s *DataStream, dst []T) error {
	if !s.canRead {
		return fmt.Errorf("%w: stream is not readable", dxinterop.ErrInvalidState)
	}
	n := len(dst) * sizeOf[T]()
	if err := s.check(s.pos, n); err != nil {
		return err
	}
	if len(dst) > 0 {
		copy(dst, unsafe.Slice((*T)(s.at(s.pos)), len(dst)))
	}
	s.pos += int64(n)
	return nil
}

// WriteRange copies src at the cursor and advances past it.
func WriteRange[T any](s *DataStream, src []T) error {
	if !s.canWrite {
		return fmt.Errorf("%w: stream is not writable", dxinterop.ErrInvalidState)
	}
	if err := checkStore[T](&s.region); err != nil {
		return err
	}
	n := len(src) * sizeOf[T]()
	if err := s.check(s.pos, n); err != nil {
		return err
	}
	if len(src) > 0 {
		copy(unsafe.Slice((*T)(s.at(s.pos)), len(src)), src)
	}
	s.pos += int64(n)
	return nil
}
