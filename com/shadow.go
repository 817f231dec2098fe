// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dblohm7/dxinterop"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// Callback is a Go object that can be handed to native code as a COM
// object. Implementations embed CallbackBase and list the interfaces they
// implement.
type Callback interface {
	// ShadowInterfaces returns the interfaces implemented by the callback's
	// type. The result must be the same for every value of a given type.
	ShadowInterfaces() []*Interface

	callbackBase() *CallbackBase
}

// CallbackBase holds the shadow of a Callback. Its zero value is ready to
// use.
type CallbackBase struct {
	mu     sync.Mutex
	shadow *ShadowContainer
}

func (b *CallbackBase) callbackBase() *CallbackBase {
	return b
}

// Shadow returns the callback's container, or nil if it was never handed to
// native code.
func (b *CallbackBase) Shadow() *ShadowContainer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shadow
}

// CloseShadow frees the callback's container, if any. Native code must no
// longer hold references to it.
func (b *CallbackBase) CloseShadow() error {
	b.mu.Lock()
	c := b.shadow
	b.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// shadowEntry is one synthesized native object: a block whose first word
// points at the vtable stored right after it.
type shadowEntry struct {
	container *ShadowContainer
	iface     *Interface
	block     unsafe.Pointer
	handle    Handle
}

// ShadowContainer owns the native objects through which one Callback is
// visible to native code: one entry per reduced interface, plus a native
// array of the IIDs it answers to. All entries share one reference count.
type ShadowContainer struct {
	host *Host
	refs atomic.Int32

	mu      sync.Mutex
	cb      Callback
	entries []*shadowEntry
	byIID   map[IID]Handle
	iids    unsafe.Pointer
	niids   int
	closed  bool
}

// GetOrCreateContainer returns cb's container, synthesizing it on first
// use. Construction either fully succeeds or leaves nothing allocated.
func GetOrCreateContainer(host *Host, cb Callback) (*ShadowContainer, error) {
	if isNil(cb) {
		return nil, fmt.Errorf("%w: nil callback %T", dxinterop.ErrInvalidState, cb)
	}
	if host == nil {
		host = DefaultHost()
	}
	base := cb.callbackBase()
	base.mu.Lock()
	defer base.mu.Unlock()
	if base.shadow != nil {
		return base.shadow, nil
	}

	ifaces, err := shadowInterfaces(cb)
	if err != nil {
		return nil, err
	}
	c, err := newShadowContainer(host, cb, ifaces)
	if err != nil {
		return nil, err
	}
	base.shadow = c
	return c, nil
}

func newShadowContainer(host *Host, cb Callback, ifaces []*Interface) (_ *ShadowContainer, err error) {
	c := &ShadowContainer{
		host:  host,
		cb:    cb,
		byIID: make(map[IID]Handle),
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, c.free())
		}
	}()

	var order []IID
	for _, iface := range ifaces {
		e, err := c.newEntry(iface)
		if err != nil {
			return nil, err
		}
		c.entries = append(c.entries, e)
		for in := iface; in != nil; in = in.Base {
			if _, dup := c.byIID[*in.IID]; dup {
				continue
			}
			c.byIID[*in.IID] = e.handle
			if *in.IID != *IID_IUnknown {
				order = append(order, *in.IID)
			}
		}
	}
	c.byIID[*IID_IUnknown] = c.entries[0].handle

	if err := c.allocIIDs(order); err != nil {
		return nil, err
	}

	for _, e := range c.entries {
		host.registerShadow(e)
	}
	return c, nil
}

func (c *ShadowContainer) newEntry(iface *Interface) (*shadowEntry, error) {
	vtbl, err := c.host.vtable(iface)
	if err != nil {
		return nil, fmt.Errorf("building vtable for %s: %w", iface.Name, err)
	}

	n := 1 + len(vtbl)
	block, err := c.host.alloc.Alloc(uintptr(n) * ptrSize)
	if err != nil {
		return nil, fmt.Errorf("allocating shadow for %s: %w", iface.Name, err)
	}
	words := unsafe.Slice((*uintptr)(block), n)
	words[0] = uintptr(block) + ptrSize
	copy(words[1:], vtbl)

	return &shadowEntry{
		container: c,
		iface:     iface,
		block:     block,
		handle:    Handle(uintptr(block)),
	}, nil
}

func (c *ShadowContainer) allocIIDs(order []IID) error {
	if len(order) == 0 {
		return nil
	}
	size := uintptr(len(order)) * unsafe.Sizeof(IID{})
	p, err := c.host.alloc.Alloc(size)
	if err != nil {
		return fmt.Errorf("allocating interface ID array: %w", err)
	}
	copy(unsafe.Slice((*IID)(p), len(order)), order)
	c.iids = p
	c.niids = len(order)
	return nil
}

// free releases every native block owned by c.
func (c *ShadowContainer) free() error {
	var errs []error
	for _, e := range c.entries {
		if err := c.host.alloc.Free(e.block); err != nil {
			errs = append(errs, err)
		}
	}
	c.entries = nil
	if c.iids != nil {
		if err := c.host.alloc.Free(c.iids); err != nil {
			errs = append(errs, err)
		}
		c.iids = nil
		c.niids = 0
	}
	return errors.Join(errs...)
}

func (c *ShadowContainer) callback() Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

// Find returns the native object answering to iid, or zero. Base interface
// IDs resolve to the entry of their most derived interface.
func (c *ShadowContainer) Find(iid *IID) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byIID[*iid]
}

// Unknown returns the handle registered under IID_IUnknown.
func (c *ShadowContainer) Unknown() Handle {
	return c.Find(IID_IUnknown)
}

// InterfaceIDs returns the native array of IIDs implemented by the shadow,
// excluding IID_IUnknown, and its length. The array is owned by c.
func (c *ShadowContainer) InterfaceIDs() (unsafe.Pointer, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iids, c.niids
}

// RefCount returns the number of references native code holds.
func (c *ShadowContainer) RefCount() int {
	return int(c.refs.Load())
}

// EntryLayout describes one synthesized native object.
type EntryLayout struct {
	Interface string
	Handle    Handle
	Slots     int
	// Aliases lists the interfaces answered by this entry, most derived
	// first.
	Aliases []string
}

// Layout describes the entries of c in creation order.
func (c *ShadowContainer) Layout() []EntryLayout {
	c.mu.Lock()
	defer c.mu.Unlock()
	layout := make([]EntryLayout, 0, len(c.entries))
	for _, e := range c.entries {
		el := EntryLayout{
			Interface: e.iface.Name,
			Handle:    e.handle,
			Slots:     e.iface.SlotCount(),
		}
		for _, in := range e.iface.Chain() {
			if c.byIID[*in.IID] == e.handle {
				el.Aliases = append(el.Aliases, in.Name)
			}
		}
		if c.byIID[*IID_IUnknown] == e.handle {
			el.Aliases = append(el.Aliases, IUnknown.Name)
		}
		layout = append(layout, el)
	}
	return layout
}

// Close frees all native memory owned by c and detaches it from its
// callback. Native code must no longer call into c. Close is idempotent.
func (c *ShadowContainer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if n := c.refs.Load(); n > 0 {
		c.host.log.Warn("closing shadow with outstanding native references", "refs", n)
	}
	for _, e := range c.entries {
		c.host.unregisterShadow(e)
	}
	err := c.free()
	c.byIID = map[IID]Handle{}
	cb := c.cb
	c.cb = nil
	c.mu.Unlock()

	if cb != nil {
		base := cb.callbackBase()
		base.mu.Lock()
		if base.shadow == c {
			base.shadow = nil
		}
		base.mu.Unlock()
	}
	return err
}

// ToNativeHandle returns a native pointer for v without adding a reference.
// Values already backed by a native object return their own handle;
// callbacks return the IUnknown handle of their shadow, creating it if
// needed. A nil native object yields zero; a nil callback is an error.
func ToNativeHandle(host *Host, v any) (Handle, error) {
	switch o := v.(type) {
	case nil:
		return 0, nil
	case Callback:
		c, err := GetOrCreateContainer(host, o)
		if err != nil {
			return 0, err
		}
		return c.Unknown(), nil
	case NativeObject:
		if isNil(o) {
			return 0, nil
		}
		return o.Handle(), nil
	default:
		return 0, fmt.Errorf("%w: %T is neither a native object nor a callback", dxinterop.ErrInvalidState, v)
	}
}

// isNil reports whether v is nil or a nil pointer wrapped in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// unknownMethods are the IUnknown slots shared by every shadow.
var unknownMethods = []entryMethod{
	{name: "IUnknown::QueryInterface", arity: 2, fn: shadowQueryInterface},
	{name: "IUnknown::AddRef", arity: 0, fn: shadowAddRef},
	{name: "IUnknown::Release", arity: 0, fn: shadowRelease},
}

func shadowQueryInterface(e *shadowEntry, args []uintptr) uintptr {
	riid, ppv := args[0], args[1]
	if ppv == 0 {
		return hresultResult(dxinterop.E_POINTER)
	}
	out := (*Handle)(unsafe.Pointer(ppv))
	if riid == 0 {
		*out = 0
		return hresultResult(dxinterop.E_POINTER)
	}
	h := e.container.Find((*IID)(unsafe.Pointer(riid)))
	if h == 0 {
		*out = 0
		return hresultResult(dxinterop.E_NOINTERFACE)
	}
	e.container.refs.Add(1)
	*out = h
	return hresultResult(dxinterop.S_OK)
}

func shadowAddRef(e *shadowEntry, _ []uintptr) uintptr {
	return uintptr(uint32(e.container.refs.Add(1)))
}

func shadowRelease(e *shadowEntry, _ []uintptr) uintptr {
	for {
		n := e.container.refs.Load()
		if n <= 0 {
			return 0
		}
		if e.container.refs.CompareAndSwap(n, n-1) {
			return uintptr(uint32(n - 1))
		}
	}
}
