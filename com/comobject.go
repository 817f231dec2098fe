// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dblohm7/dxinterop"
)

var nextObjectID atomic.Uint64

// ComObject is a CppObject that owns one reference on a native COM object.
// The reference is released by Close, or by the finalizer when the host's
// configuration enables release on finalization.
type ComObject struct {
	CppObject
	host *Host
	id   uint64
}

// NewComObject wraps h, taking ownership of one reference on it. A nil host
// uses DefaultHost.
func NewComObject(host *Host, h Handle) *ComObject {
	if host == nil {
		host = DefaultHost()
	}
	o := &ComObject{host: host, id: nextObjectID.Add(1)}
	runtime.SetFinalizer(o, (*ComObject).finalize)
	if h != 0 {
		// A fresh object is never disposed, so bind cannot fail.
		_ = o.bind(h, comHooks{o})
	}
	return o
}

// Host returns the host whose configuration governs o.
func (o *ComObject) Host() *Host {
	return o.host
}

func (o *ComObject) String() string {
	return fmt.Sprintf("ComObject#%d(%s)", o.id, o.Handle())
}

// comHooks is created per call so that o never references itself, which
// would keep its finalizer from ever running.
type comHooks struct {
	o *ComObject
}

func (hk comHooks) NativePointerUpdating() {
	o := hk.o
	if user := o.installedHooks(); user != nil {
		user.NativePointerUpdating()
	}
	if o.host.Config().EnableObjectTracking && o.Handle() != 0 {
		o.host.tracker.Untrack(o)
	}
}

func (hk comHooks) NativePointerUpdated(old Handle) {
	o := hk.o
	if o.host.Config().EnableObjectTracking && o.Handle() != 0 {
		o.host.tracker.Track(o)
	}
	if user := o.installedHooks(); user != nil {
		user.NativePointerUpdated(old)
	}
}

// Bind replaces the handle owned by o. The previous handle is not released.
func (o *ComObject) Bind(h Handle) error {
	return o.bind(h, comHooks{o})
}

// AdoptFrom moves other's reference into o. other is left unbound but not
// disposed.
func (o *ComObject) AdoptFrom(other *ComObject) error {
	if other == o {
		return nil
	}
	h := other.take()
	if h != 0 {
		other.host.tracker.Untrack(other)
	}
	return o.bind(h, comHooks{o})
}

// AddReference increments the native reference count and returns the new
// count.
func (o *ComObject) AddReference() (uint32, error) {
	h, err := o.boundHandle("AddReference")
	if err != nil {
		return 0, err
	}
	return addRef(o.host.rt, h), nil
}

// Release decrements the native reference count and returns the new count.
// It does not unbind o; use Close to give up o's own reference.
func (o *ComObject) Release() (uint32, error) {
	h, err := o.boundHandle("Release")
	if err != nil {
		return 0, err
	}
	return release(o.host.rt, h), nil
}

func (o *ComObject) boundHandle(op string) (Handle, error) {
	h := o.Handle()
	if h == 0 {
		return 0, fmt.Errorf("%w: %s on unbound %s", dxinterop.ErrInvalidState, op, o)
	}
	return h, nil
}

// QueryInterfaceHandle asks the native object for iid. On success the
// returned handle carries its own reference, which the caller owns.
func (o *ComObject) QueryInterfaceHandle(iid *IID) (Handle, error) {
	h, err := o.boundHandle("QueryInterface")
	if err != nil {
		return 0, err
	}
	out, hr := queryInterface(o.host.rt, h, iid)
	if hr.Failed() {
		return 0, dxinterop.ErrorFromHRESULT(hr)
	}
	if out == 0 {
		return 0, dxinterop.ErrorFromHRESULT(dxinterop.E_POINTER)
	}
	return out, nil
}

// QueryInterfaceOrNull is like QueryInterfaceHandle but returns zero on any
// failure.
func (o *ComObject) QueryInterfaceOrNull(iid *IID) Handle {
	h, err := o.QueryInterfaceHandle(iid)
	if err != nil {
		return 0
	}
	return h
}

// Dispose gives up o's reference according to the host configuration:
// explicit disposal always releases, finalization releases only when
// EnableReleaseOnFinalizer is set and otherwise reports a leak when
// EnableTrackingReleaseOnFinalizer is set. The tracker record is read before
// the release and removed after it. Dispose is idempotent.
func (o *ComObject) Dispose(explicit bool) {
	cfg := o.host.Config()
	o.dispose(func(h Handle) {
		if !explicit && cfg.EnableTrackingReleaseOnFinalizer && !cfg.EnableReleaseOnFinalizer {
			o.host.warnLeak(o.leakMessage(h))
		}
		if explicit || cfg.EnableReleaseOnFinalizer {
			release(o.host.rt, h)
		}
		o.host.tracker.Untrack(o)
	})
}

// Close releases o's reference and cancels its finalizer.
func (o *ComObject) Close() error {
	o.Dispose(true)
	runtime.SetFinalizer(o, nil)
	return nil
}

func (o *ComObject) finalize() {
	o.Dispose(false)
}

// leakMessage is called with o.mu held, so it must not use o.Handle.
func (o *ComObject) leakMessage(h Handle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "live ComObject [%s] was finalized without being released", h)
	if ref := o.host.tracker.Find(o); ref != nil {
		fmt.Fprintf(&sb, "; %s\n%s", ref, ref.Stack())
	}
	return sb.String()
}
