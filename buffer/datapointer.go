// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package buffer

import (
	"fmt"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

// DataPointer is an unowned pointer and length, as passed to and from native
// calls.
type DataPointer struct {
	Pointer unsafe.Pointer
	Size    int
}

// IsZero reports whether d points nowhere or has no length.
func (d DataPointer) IsZero() bool {
	return d.Pointer == nil || d.Size == 0
}

// View returns the memory as a byte slice aliasing it.
func (d DataPointer) View() []byte {
	if d.IsZero() {
		return nil
	}
	return unsafe.Slice((*byte)(d.Pointer), d.Size)
}

// ToBytes returns a copy of the memory.
func (d DataPointer) ToBytes() []byte {
	return append([]byte(nil), d.View()...)
}

// CopyFrom copies src to the start of the memory.
func (d DataPointer) CopyFrom(src []byte) error {
	if len(src) > d.Size {
		return fmt.Errorf("%w: %d bytes into %d", dxinterop.ErrOutOfRange, len(src), d.Size)
	}
	copy(d.View(), src)
	return nil
}
