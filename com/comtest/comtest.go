// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package comtest provides in-process stand-ins for native code so that the
// com package can be exercised on any platform: a ThunkFactory that records
// Go funcs, a Runtime that calls through synthesized vtables and serves fake
// native objects, and an allocator that counts and fails on demand.
package comtest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/dblohm7/dxinterop"
	"github.com/dblohm7/dxinterop/com"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// Thunks is a com.ThunkFactory that hands out fake function pointers and
// remembers the func behind each.
type Thunks struct {
	mu   sync.Mutex
	fns  map[uintptr]any
	next uintptr
}

// NewThunks returns an empty Thunks.
func NewThunks() *Thunks {
	return &Thunks{fns: make(map[uintptr]any), next: 0x10000}
}

func (t *Thunks) NewThunk(fn any) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next += 0x10
	t.fns[t.next] = fn
	return t.next, nil
}

// Lookup returns the func registered at addr.
func (t *Thunks) Lookup(addr uintptr) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn, ok := t.fns[addr]
	return fn, ok
}

// Count returns the number of thunks created.
func (t *Thunks) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fns)
}

// FakeObject is a native object simulated in Go. It answers QueryInterface
// for a fixed set of IIDs, counts references and dispatches other slots to
// funcs set by the test.
type FakeObject struct {
	handle com.Handle
	anchor *uintptr

	mu      sync.Mutex
	refs    uint32
	iids    map[com.IID]bool
	qiFail  dxinterop.HRESULT
	methods map[int]func(args []uintptr) uintptr
}

// Handle returns the fake's identity. It must only be passed to the
// Loopback that created it.
func (f *FakeObject) Handle() com.Handle {
	return f.handle
}

// RefCount returns the current reference count.
func (f *FakeObject) RefCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}

// FailQueryInterface makes every QueryInterface fail with hr. S_OK restores
// normal behavior.
func (f *FakeObject) FailQueryInterface(hr dxinterop.HRESULT) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qiFail = hr
}

// SetMethod serves slot with fn. args excludes the this pointer.
func (f *FakeObject) SetMethod(slot int, fn func(args []uintptr) uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[slot] = fn
}

func (f *FakeObject) call(slot int, args []uintptr) uintptr {
	f.mu.Lock()
	switch slot {
	case 0:
		defer f.mu.Unlock()
		ppv := (*com.Handle)(unsafe.Pointer(args[1]))
		if f.qiFail.Failed() {
			*ppv = 0
			return hresultResult(f.qiFail)
		}
		if !f.iids[*(*com.IID)(unsafe.Pointer(args[0]))] {
			*ppv = 0
			return hresultResult(dxinterop.E_NOINTERFACE)
		}
		f.refs++
		*ppv = f.handle
		return hresultResult(dxinterop.S_OK)
	case 1:
		defer f.mu.Unlock()
		f.refs++
		return uintptr(f.refs)
	case 2:
		defer f.mu.Unlock()
		if f.refs > 0 {
			f.refs--
		}
		return uintptr(f.refs)
	}
	fn := f.methods[slot]
	f.mu.Unlock()
	if fn == nil {
		return hresultResult(dxinterop.E_NOTIMPL)
	}
	return fn(args)
}

func hresultResult(hr dxinterop.HRESULT) uintptr {
	return uintptr(uint32(hr))
}

// Loopback is a com.Runtime that resolves vtable slots through Thunks and
// serves FakeObjects.
type Loopback struct {
	Thunks *Thunks

	mu      sync.Mutex
	objects map[com.Handle]*FakeObject
}

// NewLoopback returns a Loopback resolving synthesized vtables via thunks.
func NewLoopback(thunks *Thunks) *Loopback {
	return &Loopback{
		Thunks:  thunks,
		objects: make(map[com.Handle]*FakeObject),
	}
}

// NewObject returns a fake native object with one reference that answers
// QueryInterface for IID_IUnknown and iids.
func (l *Loopback) NewObject(iids ...*com.IID) *FakeObject {
	anchor := new(uintptr)
	f := &FakeObject{
		handle:  com.Handle(uintptr(unsafe.Pointer(anchor))),
		anchor:  anchor,
		refs:    1,
		iids:    map[com.IID]bool{*com.IID_IUnknown: true},
		methods: make(map[int]func([]uintptr) uintptr),
	}
	for _, iid := range iids {
		f.iids[*iid] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[f.handle] = f
	return f
}

// Call invokes slot on h. Pointers passed as arguments stay valid for the
// duration of the call.
//
//go:uintptrescapes
func (l *Loopback) Call(h com.Handle, slot int, args ...uintptr) uintptr {
	l.mu.Lock()
	f := l.objects[h]
	l.mu.Unlock()
	if f != nil {
		return f.call(slot, args)
	}

	vtbl := *(*uintptr)(unsafe.Pointer(h))
	addr := *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*ptrSize))
	fn, ok := l.Thunks.Lookup(addr)
	if !ok {
		panic(fmt.Sprintf("comtest: slot %d of %s is not a recorded thunk", slot, h))
	}
	return invoke(fn, uintptr(h), args)
}

func invoke(fn any, this uintptr, a []uintptr) uintptr {
	switch f := fn.(type) {
	case func(uintptr) uintptr:
		return f(this)
	case func(uintptr, uintptr) uintptr:
		return f(this, a[0])
	case func(uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1])
	case func(uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2])
	case func(uintptr, uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2], a[3])
	case func(uintptr, uintptr, uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2], a[3], a[4])
	case func(uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2], a[3], a[4], a[5])
	case func(uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2], a[3], a[4], a[5], a[6])
	case func(uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr, uintptr) uintptr:
		return f(this, a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7])
	default:
		panic(fmt.Sprintf("comtest: unsupported thunk type %T", fn))
	}
}

// ErrInjected is returned by a CountingAllocator past its failure point.
var ErrInjected = errors.New("comtest: injected allocation failure")

// CountingAllocator wraps a dxinterop.PinnedHeap, counting allocations and
// optionally failing them.
type CountingAllocator struct {
	inner dxinterop.Allocator

	mu        sync.Mutex
	allocs    int
	failAfter int
}

// NewCountingAllocator returns an allocator that never fails.
func NewCountingAllocator() *CountingAllocator {
	return &CountingAllocator{inner: dxinterop.NewPinnedHeap(), failAfter: -1}
}

// FailAfter lets the next n allocations succeed and fails every one after
// that. A negative n disables failures.
func (a *CountingAllocator) FailAfter(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 {
		a.failAfter = -1
		return
	}
	a.failAfter = a.allocs + n
}

func (a *CountingAllocator) Alloc(size uintptr) (unsafe.Pointer, error) {
	a.mu.Lock()
	if a.failAfter >= 0 && a.allocs >= a.failAfter {
		a.mu.Unlock()
		return nil, ErrInjected
	}
	a.allocs++
	a.mu.Unlock()
	return a.inner.Alloc(size)
}

func (a *CountingAllocator) Free(p unsafe.Pointer) error {
	return a.inner.Free(p)
}

func (a *CountingAllocator) Live() int {
	return a.inner.Live()
}

// Allocs returns the number of successful allocations so far.
func (a *CountingAllocator) Allocs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs
}

// LeakRecorder collects leak warnings.
type LeakRecorder struct {
	mu   sync.Mutex
	msgs []string
}

// Sink returns the func to install as a leak sink.
func (r *LeakRecorder) Sink() func(string) {
	return func(msg string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
	}
}

// Messages returns a copy of the warnings received so far.
func (r *LeakRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Env is a Host wired entirely to in-process fakes.
type Env struct {
	Host    *com.Host
	Runtime *Loopback
	Thunks  *Thunks
	Alloc   *CountingAllocator
	Tracker *com.Tracker
	Leaks   *LeakRecorder
}

// NewEnv returns an Env governed by cfg, with its own tracker.
func NewEnv(tb testing.TB, cfg dxinterop.Config) *Env {
	tb.Helper()
	env := &Env{
		Thunks:  NewThunks(),
		Alloc:   NewCountingAllocator(),
		Tracker: com.NewTracker(true),
		Leaks:   &LeakRecorder{},
	}
	env.Runtime = NewLoopback(env.Thunks)

	h, err := com.NewHost(cfg,
		com.WithRuntime(env.Runtime),
		com.WithThunkFactory(env.Thunks),
		com.WithAllocator(env.Alloc),
		com.WithTracker(env.Tracker),
		com.WithLeakSink(env.Leaks.Sink()),
		com.WithLogger(log.New(io.Discard)),
	)
	if err != nil {
		tb.Fatalf("NewHost: %v", err)
	}
	env.Host = h
	return env
}
