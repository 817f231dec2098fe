// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"fmt"
	"sync"

	"github.com/dblohm7/dxinterop"
)

// PointerHooks observes handle replacement on a CppObject.
type PointerHooks interface {
	// NativePointerUpdating is called before the handle changes.
	NativePointerUpdating()
	// NativePointerUpdated is called after the handle changed, with the
	// handle that was replaced.
	NativePointerUpdated(old Handle)
}

// NativeObject is implemented by anything that is already backed by a native
// interface pointer.
type NativeObject interface {
	Handle() Handle
}

// CppObject associates a Go value with at most one native handle at a time.
// It never touches reference counts itself; types embedding it supply the
// teardown performed on disposal.
type CppObject struct {
	mu       sync.Mutex
	handle   Handle
	disposed bool
	hooks    PointerHooks
}

// NewCppObject returns a CppObject bound to h.
func NewCppObject(h Handle) *CppObject {
	return &CppObject{handle: h}
}

// SetHooks installs the hooks invoked by Bind and AdoptFrom. hooks must not
// hold a reference back to o, or o can never be collected.
func (o *CppObject) SetHooks(hooks PointerHooks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = hooks
}

// Handle returns the bound handle, or zero when unbound.
func (o *CppObject) Handle() Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle
}

// IsDisposed reports whether Dispose has run.
func (o *CppObject) IsDisposed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposed
}

// Bind replaces the bound handle with h. Binding the current handle is a
// no-op. Binding zero unbinds without releasing anything.
func (o *CppObject) Bind(h Handle) error {
	return o.bind(h, o.installedHooks())
}

func (o *CppObject) installedHooks() PointerHooks {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hooks
}

// bind runs hooks outside o.mu so that they may freely call back into o.
func (o *CppObject) bind(h Handle, hooks PointerHooks) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return fmt.Errorf("%w: bind on disposed object", dxinterop.ErrInvalidState)
	}
	if o.handle == h {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if hooks != nil {
		hooks.NativePointerUpdating()
	}

	// The Updating hook may have disposed o.
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return fmt.Errorf("%w: object disposed during bind", dxinterop.ErrInvalidState)
	}
	old := o.handle
	o.handle = h
	o.mu.Unlock()

	if hooks != nil {
		hooks.NativePointerUpdated(old)
	}
	return nil
}

// take zeroes o's handle and returns the previous value.
func (o *CppObject) take() Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.handle
	o.handle = 0
	return h
}

// AdoptFrom moves other's handle into o and leaves other unbound. Reference
// counts are untouched: the single owned reference changes hands.
func (o *CppObject) AdoptFrom(other *CppObject) error {
	if other == o {
		return nil
	}
	return o.bind(other.take(), o.installedHooks())
}

// Dispose unbinds o permanently. It is idempotent.
func (o *CppObject) Dispose(explicit bool) {
	o.dispose(nil)
}

// Close is Dispose(true).
func (o *CppObject) Close() error {
	o.Dispose(true)
	return nil
}

// dispose runs teardown at most once, with o.mu held, on the bound handle.
// The handle is zeroed only after teardown returns.
func (o *CppObject) dispose(teardown func(Handle)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.disposed = true
	if o.handle != 0 && teardown != nil {
		teardown(o.handle)
	}
	o.handle = 0
}
