// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package buffer provides typed views over unmanaged memory.
//
// DataBuffer offers random access by byte offset and DataStream adds a
// cursor. Each has a checked API that fails with dxinterop.ErrOutOfRange and
// an Unchecked API that performs no bounds checks at all: callers of the
// latter must stay within Size or Length themselves.
//
// Every view has exactly one Ownership mode, fixed at construction, which
// determines what Close releases.
//
// Only Pinned views alias memory the garbage collector scans. Checked writes
// of values containing Go pointers into Owned or Foreign views fail with
// dxinterop.ErrInvalidState; the Unchecked API must never be used to store
// them there.
package buffer

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

// Ownership describes what a view releases when closed.
type Ownership int

const (
	// Owned views free their allocation.
	Owned Ownership = iota
	// Pinned views alias a Go slice and unpin it.
	Pinned
	// Foreign views alias memory owned elsewhere. They release nothing, or
	// only the blob object they were created from.
	Foreign
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case Pinned:
		return "pinned"
	case Foreign:
		return "foreign"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

// BlobSource is a native object owning a byte buffer, such as com.Blob.
type BlobSource interface {
	BufferPointer() (unsafe.Pointer, error)
	BufferSize() (uintptr, error)
	io.Closer
}

var defaultHeap = dxinterop.NewPinnedHeap()

// span is a block of memory and what releasing it takes.
type span struct {
	ptr     unsafe.Pointer
	size    int
	mode    Ownership
	release func() error
}

// region is the memory and ownership shared by DataBuffer and DataStream.
type region struct {
	span

	mu     sync.Mutex
	closed bool
}

func allocSpan(alloc dxinterop.Allocator, size int, zeroed bool) (span, error) {
	if size < 0 {
		return span{}, fmt.Errorf("%w: negative size %d", dxinterop.ErrOutOfRange, size)
	}
	if alloc == nil {
		alloc = defaultHeap
	}
	p, err := alloc.Alloc(uintptr(size))
	if err != nil {
		return span{}, err
	}
	if zeroed && size > 0 {
		clear(unsafe.Slice((*byte)(p), size))
	}
	return span{
		ptr:     p,
		size:    size,
		mode:    Owned,
		release: func() error { return alloc.Free(p) },
	}, nil
}

func foreignSpan(p unsafe.Pointer, size int) (span, error) {
	if size < 0 {
		return span{}, fmt.Errorf("%w: negative size %d", dxinterop.ErrOutOfRange, size)
	}
	if p == nil && size > 0 {
		return span{}, fmt.Errorf("%w: nil pointer with size %d", dxinterop.ErrInvalidState, size)
	}
	return span{ptr: p, size: size, mode: Foreign}, nil
}

func pinSpan[T any](s []T) span {
	if len(s) == 0 {
		return span{mode: Pinned}
	}
	var pinner runtime.Pinner
	p := unsafe.Pointer(unsafe.SliceData(s))
	pinner.Pin(p)
	return span{
		ptr:  p,
		size: len(s) * int(unsafe.Sizeof(s[0])),
		mode: Pinned,
		release: func() error {
			pinner.Unpin()
			return nil
		},
	}
}

// blobSpan takes ownership of blob only on success.
func blobSpan(blob BlobSource) (span, error) {
	p, err := blob.BufferPointer()
	if err != nil {
		return span{}, err
	}
	n, err := blob.BufferSize()
	if err != nil {
		return span{}, err
	}
	r, err := foreignSpan(p, int(n))
	if err != nil {
		return span{}, err
	}
	r.release = blob.Close
	return r, nil
}

// Size returns the region's length in bytes.
func (r *region) Size() int {
	return r.size
}

// Pointer returns the start of the region.
func (r *region) Pointer() unsafe.Pointer {
	return r.ptr
}

// Mode returns the ownership mode chosen at construction.
func (r *region) Mode() Ownership {
	return r.mode
}

// Bytes returns the region as a byte slice aliasing the memory.
func (r *region) Bytes() []byte {
	if r.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(r.ptr), r.size)
}

// DataPointer returns the region as an unowned DataPointer.
func (r *region) DataPointer() DataPointer {
	return DataPointer{Pointer: r.ptr, Size: r.size}
}

// Close releases what the ownership mode implies and empties the view.
// Close is idempotent.
func (r *region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.ptr = nil
	r.size = 0
	if r.release == nil {
		return nil
	}
	err := r.release()
	r.release = nil
	return err
}

// check verifies that n bytes starting at off lie within the region.
func (r *region) check(off int64, n int) error {
	if off < 0 || off > int64(r.size) || int64(n) > int64(r.size)-off {
		return fmt.Errorf("%w: [%d, %d) outside [0, %d)", dxinterop.ErrOutOfRange, off, off+int64(n), r.size)
	}
	return nil
}

func (r *region) at(off int64) unsafe.Pointer {
	return unsafe.Add(r.ptr, off)
}

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// checkStore verifies that values of type T may be written into r.
func checkStore[T any](r *region) error {
	if r.mode == Pinned {
		return nil
	}
	t := reflect.TypeFor[T]()
	if hasPointers(t) {
		return fmt.Errorf("%w: %v holds Go pointers and %s memory is not scanned by the GC", dxinterop.ErrInvalidState, t, r.mode)
	}
	return nil
}

var pointerTypes sync.Map // reflect.Type -> bool

func hasPointers(t reflect.Type) bool {
	if v, ok := pointerTypes.Load(t); ok {
		return v.(bool)
	}
	var has bool
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		has = true
	case reflect.Array:
		has = t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				has = true
				break
			}
		}
	}
	pointerTypes.Store(t, has)
	return has
}
