// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com_test

import (
	"errors"
	"io"
	"testing"

	"github.com/dblohm7/dxinterop"
	"github.com/dblohm7/dxinterop/buffer"
	"github.com/dblohm7/dxinterop/com"
	"github.com/dblohm7/dxinterop/com/comtest"
	"golang.org/x/exp/slices"
)

// memFile is a growable in-memory file.
type memFile struct {
	data []byte
	pos  int64
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + int64(len(p)); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	n := copy(f.data[f.pos:], p)
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = int64(len(f.data)) + offset
	}
	if target < 0 {
		return f.pos, errors.New("memFile: negative position")
	}
	f.pos = target
	return target, nil
}

func (f *memFile) Truncate(size int64) error {
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	f.data = append(f.data, make([]byte, size-int64(len(f.data)))...)
	return nil
}

// newCallbackStream exposes rws through a shadow and returns a native-style
// Stream client for it.
func newCallbackStream(t *testing.T, env *comtest.Env, rws io.ReadWriteSeeker) com.Stream {
	t.Helper()
	cb := com.NewStreamCallback(rws)
	c, err := com.GetOrCreateContainer(env.Host, cb)
	if err != nil {
		t.Fatalf("GetOrCreateContainer: %v", err)
	}
	t.Cleanup(func() { cb.CloseShadow() })

	unk := env.Host.Wrap(c.Unknown())
	defer unk.Close()
	if _, err := unk.AddReference(); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	stream, err := com.QueryInterface[com.Stream](unk)
	if err != nil {
		t.Fatalf("QueryInterface: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func TestStreamCallback(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	checkStream(t, func(initial []byte) (com.Stream, error) {
		return newCallbackStream(t, env, &memFile{data: slices.Clone(initial)}), nil
	}, false)
}

func TestStreamCallbackUnsupported(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	ds, err := buffer.NewDataStream(nil, 32, true)
	if err != nil {
		t.Fatalf("NewDataStream: %v", err)
	}
	defer ds.Close()
	stream := newCallbackStream(t, env, ds)

	type unsupportedTestCase struct {
		name string
		call func() error
		want dxinterop.HRESULT
	}
	cases := []unsupportedTestCase{
		{"SetSize", func() error { return stream.SetSize(64) }, dxinterop.E_NOTIMPL},
		{"Revert", stream.Revert, dxinterop.E_NOTIMPL},
		{"LockRegion", func() error { return stream.LockRegion(0, 4, com.LOCK_WRITE) }, dxinterop.STG_E_INVALIDFUNCTION},
		{"UnlockRegion", func() error { return stream.UnlockRegion(0, 4, com.LOCK_WRITE) }, dxinterop.STG_E_INVALIDFUNCTION},
		{"Clone", func() error { _, err := stream.Clone(); return err }, dxinterop.E_NOTIMPL},
		{"Seek", func() error { _, err := stream.Seek(-1, io.SeekStart); return err }, dxinterop.STG_E_INVALIDFUNCTION},
	}
	for _, tc := range cases {
		err := tc.call()
		if hr, _ := dxinterop.HRESULTOf(err); hr != tc.want {
			t.Errorf("%s got %v, want %s", tc.name, err, tc.want)
		}
	}

	if err := stream.Commit(com.STGC_DEFAULT); err != nil {
		t.Errorf("Commit got %v, want nil", err)
	}
	size, err := stream.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 32 {
		t.Errorf("Size got %d, want 32", size)
	}
	if _, err := stream.Write(make([]byte, 33)); err == nil {
		t.Errorf("Write past the end of a fixed stream succeeded")
	}
}

func TestStreamCallbackCopyTo(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	src := &memFile{data: []byte("hello, shadow")}
	dst := &memFile{}
	srcStream := newCallbackStream(t, env, src)
	dstStream := newCallbackStream(t, env, dst)

	read, written, err := srcStream.CopyTo(dstStream, 100)
	if err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if read != uint64(len(src.data)) || written != read {
		t.Errorf("CopyTo got (%d, %d), want (%d, %d)", read, written, len(src.data), len(src.data))
	}
	if !slices.Equal(dst.data, src.data) {
		t.Errorf("destination got %q, want %q", dst.data, src.data)
	}

	if _, err := srcStream.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	read, _, err = srcStream.CopyTo(dstStream, 5)
	if err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if read != 5 {
		t.Errorf("bounded CopyTo read %d, want 5", read)
	}
}

// checkStream runs a stream created by newStream through reads, writes,
// seeks and resizing.
func checkStream(t *testing.T, newStream func([]byte) (com.Stream, error), canClone bool) {
	t.Helper()

	empty, err := newStream(nil)
	if err != nil {
		t.Fatalf("Error creating empty stream: %v", err)
	}
	defer empty.Close()
	size, err := empty.Size()
	if err != nil {
		t.Fatalf("Error calling Size: %v", err)
	}
	if size != 0 {
		t.Errorf("Unexpected size, got %d, want 0", size)
	}

	values := makeTestBuf(16)
	stream, err := newStream(values)
	if err != nil {
		t.Fatalf("Error creating stream of %d bytes: %v", len(values), err)
	}
	defer stream.Close()
	size, err = stream.Size()
	if err != nil {
		t.Fatalf("Error calling Size: %v", err)
	}
	if size != uint64(len(values)) {
		t.Errorf("Unexpected size, got %d, want %d", size, len(values))
	}
	pos, err := getSeekPos(stream)
	if err != nil {
		t.Fatalf("Error calling getSeekPos: %v", err)
	}
	if pos != 0 {
		t.Errorf("Unexpected seek pos, got %d, want 0", pos)
	}

	readBuf := make([]byte, len(values))
	nRead, err := stream.Read(readBuf)
	if err != nil {
		t.Fatalf("Unexpected error calling Read, got %v, want nil", err)
	}
	if nRead != len(readBuf) {
		t.Errorf("Unexpected number of bytes read, got %v, want %v", nRead, len(readBuf))
	}
	if !slices.Equal(values, readBuf) {
		t.Errorf("Slices not equal")
	}

	nRead, err = stream.Read(readBuf)
	if err != io.EOF {
		t.Errorf("Unexpected error calling Read, got %v, want %v", err, io.EOF)
	}
	if nRead != 0 {
		t.Errorf("Unexpected number of bytes read at EOF, got %v, want 0", nRead)
	}

	pos, err = stream.Seek(0, io.SeekStart)
	if err != nil {
		t.Fatalf("Error calling Seek: %v", err)
	}
	if pos != 0 {
		t.Errorf("Unexpected seek pos, got %d, want 0", pos)
	}

	// Chunked read with EOF
	chunk1 := make([]byte, 4)
	chunk2 := make([]byte, len(values))

	nRead, err = stream.Read(chunk1)
	if err != nil {
		t.Fatalf("Unexpected error calling Read, got %v, want nil", err)
	}
	if !slices.Equal(chunk1, values[:nRead]) {
		t.Errorf("Slices not equal")
	}

	nRead, err = stream.Read(chunk2)
	if err != nil {
		t.Fatalf("Unexpected error calling Read, got %v, want nil", err)
	}
	nDiff := len(values) - len(chunk1)
	if nRead != nDiff {
		t.Errorf("Unexpected number of bytes read, got %v, want %v", nRead, nDiff)
	}
	if !slices.Equal(chunk2[:nRead], values[len(chunk1):]) {
		t.Errorf("Slices not equal")
	}

	if _, err = stream.Read(chunk2[nRead:]); err != io.EOF {
		t.Errorf("Unexpected error calling Read, got %v, want %v", err, io.EOF)
	}

	// Chunked write past the initial size
	wstream, err := newStream(nil)
	if err != nil {
		t.Fatalf("Error creating empty stream: %v", err)
	}
	defer wstream.Close()

	if err := wstream.SetSize(uint64(len(values))); err != nil {
		t.Fatalf("Error calling SetSize(%d): %v", len(values), err)
	}
	if size, err := wstream.Size(); err != nil || size != uint64(len(values)) {
		t.Errorf("Size after SetSize got (%d, %v), want (%d, nil)", size, err, len(values))
	}

	nWritten, err := wstream.Write(chunk1)
	if err != nil {
		t.Fatalf("Unexpected error calling Write, got %v, want nil", err)
	}
	if nWritten != len(chunk1) {
		t.Errorf("Unexpected number of bytes written, got %v, want %v", nWritten, len(chunk1))
	}

	nWritten, err = wstream.Write(chunk2)
	if err != nil {
		t.Fatalf("Unexpected error calling Write, got %v, want nil", err)
	}
	if nWritten != len(chunk2) {
		t.Errorf("Unexpected number of bytes written, got %v, want %v", nWritten, len(chunk2))
	}

	pos, err = wstream.Seek(0, io.SeekStart)
	if err != nil {
		t.Fatalf("Error calling Seek: %v", err)
	}
	if pos != 0 {
		t.Errorf("Unexpected seek pos, got %d, want 0", pos)
	}

	readBuf2 := make([]byte, len(chunk1)+len(chunk2))
	nRead, err = wstream.Read(readBuf2)
	if err != nil {
		t.Fatalf("Unexpected error calling Read, got %v, want nil", err)
	}
	if nRead != len(readBuf2) {
		t.Errorf("Unexpected number of bytes read, got %v, want %v", nRead, len(readBuf2))
	}
	if !slices.Equal(append(slices.Clone(chunk1), chunk2...), readBuf2) {
		t.Errorf("Slices not equal")
	}

	stream2, err := stream.Clone()
	if !canClone {
		if err == nil {
			stream2.Close()
			t.Errorf("Unexpected success calling Clone")
		}
		return
	}
	if err != nil {
		t.Fatalf("Unexpected error calling Clone, got %v, want nil", err)
	}
	defer stream2.Close()

	// Clone, check same buffer contents but different interface pointers
	pos, err = stream2.Seek(0, io.SeekStart)
	if err != nil {
		t.Fatalf("Error calling Seek: %v", err)
	}
	if pos != 0 {
		t.Errorf("Unexpected seek pos, got %d, want 0", pos)
	}

	values2 := make([]byte, len(values))
	nRead, err = stream2.Read(values2)
	if err != nil {
		t.Fatalf("Unexpected error calling Read, got %v, want nil", err)
	}
	if nRead != len(values2) {
		t.Errorf("Unexpected number of bytes read, got %v, want %v", nRead, len(values2))
	}
	if !slices.Equal(values, values2) {
		t.Errorf("Slices not equal")
	}

	if stream.Handle() == stream2.Handle() {
		t.Errorf("Cloned streams wrap identical interface pointers")
	}
}

func getSeekPos(stream com.Stream) (int64, error) {
	return stream.Seek(0, io.SeekCurrent)
}

func makeTestBuf(size byte) []byte {
	values := make([]byte, size)
	for i, l := byte(0), byte(len(values)); i < l; i++ {
		values[i] = i
	}
	return values
}

func TestStreamUnimplementedSlot(t *testing.T) {
	env := comtest.NewEnv(t, dxinterop.DefaultConfig())
	fake := env.Runtime.NewObject(com.IID_IStream)
	stream := com.Wrap[com.Stream](env.Host, fake.Handle())
	defer stream.Close()

	err := stream.Commit(com.STGC_DEFAULT)
	if hr, _ := dxinterop.HRESULTOf(err); hr != dxinterop.E_NOTIMPL {
		t.Errorf("Commit got %v, want %s", err, dxinterop.E_NOTIMPL)
	}
	if !errors.Is(err, dxinterop.ErrNativeCallFailed) {
		t.Errorf("Commit got %v, want ErrNativeCallFailed", err)
	}
}
