// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package buffer

import (
	"unsafe"

	"github.com/dblohm7/dxinterop"
	"golang.org/x/exp/constraints"
)

// DataBuffer is a fixed-size view over unmanaged memory accessed by byte
// offset. It is not safe to use concurrently with Close.
type DataBuffer struct {
	region
}

// NewDataBuffer allocates size bytes from alloc, or from a pinned Go heap
// when alloc is nil. The buffer owns and frees the allocation.
func NewDataBuffer(alloc dxinterop.Allocator, size int, zeroed bool) (*DataBuffer, error) {
	s, err := allocSpan(alloc, size, zeroed)
	if err != nil {
		return nil, err
	}
	b := &DataBuffer{}
	b.span = s
	return b, nil
}

// NewDataBufferFromPointer views size bytes at p, which stays owned by the
// caller.
func NewDataBufferFromPointer(p unsafe.Pointer, size int) (*DataBuffer, error) {
	s, err := foreignSpan(p, size)
	if err != nil {
		return nil, err
	}
	b := &DataBuffer{}
	b.span = s
	return b, nil
}

// PinDataBuffer views the backing array of s, pinning it until Close.
func PinDataBuffer[T any](s []T) *DataBuffer {
	b := &DataBuffer{}
	b.span = pinSpan(s)
	return b
}

// NewDataBufferFromBlob views the contents of blob. On success the buffer
// owns blob and closes it on Close.
func NewDataBufferFromBlob(blob BlobSource) (*DataBuffer, error) {
	s, err := blobSpan(blob)
	if err != nil {
		return nil, err
	}
	b := &DataBuffer{}
	b.span = s
	return b, nil
}

// Get reads a T at byte offset off.
func Get[T any, O constraints.Integer](b *DataBuffer, off O) (T, error) {
	var v T
	if err := b.check(int64(off), sizeOf[T]()); err != nil {
		return v, err
	}
	return *(*T)(b.at(int64(off))), nil
}

// GetUnchecked reads a T at byte offset off without any bounds check.
func GetUnchecked[T any, O constraints.Integer](b *DataBuffer, off O) T {
	return *(*T)(unsafe.Add(b.ptr, int(off)))
}

// Set writes v at byte offset off.
func Set[T any, O constraints.Integer](b *DataBuffer, off O, v T) error {
	if err := checkStore[T](&b.region); err != nil {
		return err
	}
	if err := b.check(int64(off), sizeOf[T]()); err != nil {
		return err
	}
	*(*T)(b.at(int64(off))) = v
	return nil
}

// SetUnchecked writes v at byte offset off without any bounds check. T must
// not hold Go pointers unless b is Pinned.
func SetUnchecked[T any, O constraints.Integer](b *DataBuffer, off O, v T) {
	*(*T)(unsafe.Add(b.ptr, int(off))) = v
}

// GetRange copies len(dst) values starting at byte offset off into dst.
func GetRange[T any, O constraints.Integer](b *DataBuffer, off O, dst []T) error {
	if err := b.check(int64(off), len(dst)*sizeOf[T]()); err != nil {
		return err
	}
	if len(dst) > 0 {
		copy(dst, unsafe.Slice((*T)(b.at(int64(off))), len(dst)))
	}
	return nil
}

// SetRange copies src into the buffer starting at byte offset off.
func SetRange[T any, O constraints.Integer](b *DataBuffer, off O, src []T) error {
	if err := checkStore[T](&b.region); err != nil {
		return err
	}
	if err := b.check(int64(off), len(src)*sizeOf[T]()); err != nil {
		return err
	}
	if len(src) > 0 {
		copy(unsafe.Slice((*T)(b.at(int64(off))), len(src)), src)
	}
	return nil
}

// Clear zeroes the whole buffer.
func (b *DataBuffer) Clear() {
	clear(b.Bytes())
}
