// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package buffer_test

import (
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/dblohm7/dxinterop"
	"github.com/dblohm7/dxinterop/buffer"
	"golang.org/x/exp/slices"
)

type seekTestCase struct {
	offset  int64
	whence  int
	wantPos int64
	wantErr error
}

var seekTestCases = []seekTestCase{
	{0, io.SeekStart, 0, nil},
	{16, io.SeekStart, 16, nil},
	{0, io.SeekEnd, 16, nil},
	{-4, io.SeekEnd, 12, nil},
	{-1, io.SeekStart, 4, dxinterop.ErrOutOfRange},
	{17, io.SeekStart, 4, dxinterop.ErrOutOfRange},
	{1, io.SeekEnd, 4, dxinterop.ErrOutOfRange},
	{2, io.SeekCurrent, 6, nil},
	{-5, io.SeekCurrent, 4, dxinterop.ErrOutOfRange},
	{0, 3, 4, dxinterop.ErrInvalidState},
}

func TestDataStreamSeek(t *testing.T) {
	ds, err := buffer.NewDataStream(nil, 16, true)
	if err != nil {
		t.Fatalf("NewDataStream: %v", err)
	}
	defer ds.Close()

	for _, tc := range seekTestCases {
		if _, err := ds.Seek(4, io.SeekStart); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		pos, err := ds.Seek(tc.offset, tc.whence)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("Seek(%d, %d) got error %v, want %v", tc.offset, tc.whence, err, tc.wantErr)
		}
		if pos != tc.wantPos || ds.Position() != tc.wantPos {
			t.Errorf("Seek(%d, %d) got position %d, want %d", tc.offset, tc.whence, ds.Position(), tc.wantPos)
		}
	}
}

func TestDataStreamValues(t *testing.T) {
	ds, err := buffer.NewDataStream(dxinterop.NewPinnedHeap(), 32, true)
	if err != nil {
		t.Fatalf("NewDataStream: %v", err)
	}
	defer ds.Close()

	v := vertex{X: 0.5, Y: -1, Z: 2, Color: 0xFF00FF00}
	if err := buffer.WriteValue(ds, 3.25); err != nil {
		t.Fatalf("WriteValue(float64): %v", err)
	}
	if err := buffer.WriteValue(ds, v); err != nil {
		t.Fatalf("WriteValue(vertex): %v", err)
	}
	if err := buffer.WriteValue(ds, int32(-7)); err != nil {
		t.Fatalf("WriteValue(int32): %v", err)
	}
	if err := buffer.WriteValue(ds, uint16(0xBEEF)); err != nil {
		t.Fatalf("WriteValue(uint16): %v", err)
	}
	if err := buffer.WriteValue(ds, int8(-1)); err != nil {
		t.Fatalf("WriteValue(int8): %v", err)
	}
	if got := ds.RemainingLength(); got != 1 {
		t.Errorf("RemainingLength got %d, want 1", got)
	}
	if err := buffer.WriteValue(ds, uint16(1)); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("WriteValue past the end got %v, want ErrOutOfRange", err)
	}
	if got := ds.Position(); got != 31 {
		t.Errorf("failed write moved the cursor to %d", got)
	}

	if _, err := ds.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got, err := buffer.ReadValue[float64](ds); err != nil || got != 3.25 {
		t.Errorf("ReadValue[float64] got (%v, %v)", got, err)
	}
	if got, err := buffer.ReadValue[vertex](ds); err != nil || got != v {
		t.Errorf("ReadValue[vertex] got (%v, %v), want %v", got, err, v)
	}
	if got, err := buffer.ReadValue[int32](ds); err != nil || got != -7 {
		t.Errorf("ReadValue[int32] got (%v, %v)", got, err)
	}
	if got, err := buffer.ReadValue[uint16](ds); err != nil || got != 0xBEEF {
		t.Errorf("ReadValue[uint16] got (%#x, %v)", got, err)
	}
	if got, err := buffer.ReadValue[int8](ds); err != nil || got != -1 {
		t.Errorf("ReadValue[int8] got (%v, %v)", got, err)
	}
	if _, err := buffer.ReadValue[uint16](ds); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("ReadValue past the end got %v, want ErrOutOfRange", err)
	}

	ds.Seek(0, io.SeekStart)
	buffer.WriteUnchecked(ds, uint64(0x0102030405060708))
	buffer.WriteUnchecked(ds, v)
	ds.Seek(0, io.SeekStart)
	if got := buffer.ReadUnchecked[uint64](ds); got != 0x0102030405060708 {
		t.Errorf("ReadUnchecked[uint64] got %#x", got)
	}
	if got := buffer.ReadUnchecked[vertex](ds); got != v {
		t.Errorf("ReadUnchecked[vertex] got %v, want %v", got, v)
	}
	if got := ds.Position(); got != 24 {
		t.Errorf("Position got %d, want 24", got)
	}
}

func TestDataStreamRanges(t *testing.T) {
	backing := make([]float32, 8)
	ds := buffer.PinDataStream(backing)
	defer ds.Close()

	src := []float32{1, 2, 3}
	if err := buffer.WriteRange(ds, src); err != nil {
		t.Fatalf("WriteRange: %v", err)
	}
	if !slices.Equal(backing[:3], src) {
		t.Errorf("backing got %v, want prefix %v", backing, src)
	}
	if err := buffer.WriteRange(ds, make([]float32, 6)); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("WriteRange past the end got %v, want ErrOutOfRange", err)
	}

	ds.Seek(0, io.SeekStart)
	dst := make([]float32, 3)
	if err := buffer.ReadRange(ds, dst); err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if !slices.Equal(dst, src) {
		t.Errorf("ReadRange got %v, want %v", dst, src)
	}
	if got, want := ds.Position(), int64(3*unsafe.Sizeof(float32(0))); got != want {
		t.Errorf("Position got %d, want %d", got, want)
	}
}

func TestDataStreamIO(t *testing.T) {
	ds, err := buffer.NewDataStream(nil, 8, false)
	if err != nil {
		t.Fatalf("NewDataStream: %v", err)
	}
	defer ds.Close()

	if n, err := ds.Write([]byte("abcdefghi")); !errors.Is(err, dxinterop.ErrOutOfRange) || n != 0 {
		t.Errorf("oversized Write got (%d, %v), want (0, ErrOutOfRange)", n, err)
	}
	if n, err := ds.Write([]byte("abcdefgh")); err != nil || n != 8 {
		t.Errorf("Write got (%d, %v), want (8, nil)", n, err)
	}
	if _, err := ds.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read at end got %v, want io.EOF", err)
	}

	ds.Seek(2, io.SeekStart)
	rest, err := io.ReadAll(ds)
	if err != nil || string(rest) != "cdefgh" {
		t.Errorf("ReadAll got (%q, %v), want (\"cdefgh\", nil)", rest, err)
	}

	p := make([]byte, 4)
	if n, err := ds.ReadAt(p, 6); n != 2 || err != io.EOF || string(p[:n]) != "gh" {
		t.Errorf("ReadAt got (%d, %v, %q)", n, err, p[:n])
	}
	if _, err := ds.ReadAt(p, -1); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("ReadAt(-1) got %v, want ErrOutOfRange", err)
	}
}

func TestDataStreamAccess(t *testing.T) {
	backing := []byte("read only")
	ro, err := buffer.NewDataStreamFromPointer(unsafe.Pointer(&backing[0]), len(backing), true, false)
	if err != nil {
		t.Fatalf("NewDataStreamFromPointer: %v", err)
	}
	defer ro.Close()
	if !ro.CanRead() || ro.CanWrite() {
		t.Errorf("got read %v write %v, want read-only", ro.CanRead(), ro.CanWrite())
	}
	if _, err := ro.Write([]byte("x")); !errors.Is(err, dxinterop.ErrInvalidState) {
		t.Errorf("Write got %v, want ErrInvalidState", err)
	}
	if err := buffer.WriteValue(ro, byte(1)); !errors.Is(err, dxinterop.ErrInvalidState) {
		t.Errorf("WriteValue got %v, want ErrInvalidState", err)
	}
	if got, err := buffer.ReadValue[byte](ro); err != nil || got != 'r' {
		t.Errorf("ReadValue got (%q, %v), want ('r', nil)", got, err)
	}

	wo, err := buffer.NewDataStreamFromPointer(unsafe.Pointer(&backing[0]), len(backing), false, true)
	if err != nil {
		t.Fatalf("NewDataStreamFromPointer: %v", err)
	}
	defer wo.Close()
	if _, err := wo.Read(make([]byte, 1)); !errors.Is(err, dxinterop.ErrInvalidState) {
		t.Errorf("Read got %v, want ErrInvalidState", err)
	}
	if _, err := buffer.ReadValue[byte](wo); !errors.Is(err, dxinterop.ErrInvalidState) {
		t.Errorf("ReadValue got %v, want ErrInvalidState", err)
	}
}

func TestDataPointer(t *testing.T) {
	ds, err := buffer.NewDataStream(nil, 4, true)
	if err != nil {
		t.Fatalf("NewDataStream: %v", err)
	}
	defer ds.Close()

	dp := ds.DataPointer()
	if dp.IsZero() || dp.Size != 4 {
		t.Fatalf("DataPointer got %+v", dp)
	}
	if err := dp.CopyFrom([]byte{9, 8}); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	copied := dp.ToBytes()
	if !slices.Equal(copied, []byte{9, 8, 0, 0}) {
		t.Errorf("ToBytes got %v", copied)
	}
	copied[0] = 1
	if dp.View()[0] != 9 {
		t.Errorf("ToBytes aliases the memory")
	}
	if got, _ := buffer.ReadValue[byte](ds); got != 9 {
		t.Errorf("stream does not see writes through the DataPointer")
	}
	if err := dp.CopyFrom(make([]byte, 5)); !errors.Is(err, dxinterop.ErrOutOfRange) {
		t.Errorf("oversized CopyFrom got %v, want ErrOutOfRange", err)
	}

	var zero buffer.DataPointer
	if !zero.IsZero() || zero.View() != nil {
		t.Errorf("zero DataPointer is not empty")
	}
}
