// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dblohm7/dxinterop"
)

// ThunkFactory turns a Go func taking and returning uintptrs into a function
// pointer that native code can store in a vtable.
type ThunkFactory interface {
	NewThunk(fn any) (uintptr, error)
}

// Host bundles the configuration and services shared by a family of
// wrappers and shadows: the native call runtime, the allocator used for
// synthesized vtables, the thunk factory, the object tracker and the leak
// sink. Hosts are safe for concurrent use.
type Host struct {
	cfg     atomic.Pointer[dxinterop.Config]
	rt      Runtime
	alloc   dxinterop.Allocator
	thunks  ThunkFactory
	tracker *Tracker
	sink    atomic.Pointer[func(string)]
	log     *log.Logger

	shadowMu sync.RWMutex
	shadows  map[Handle]*shadowEntry

	thunkMu      sync.Mutex
	unknownSlots []uintptr
	methodSlots  map[*Interface][]uintptr
}

// HostOption customizes a Host created by NewHost.
type HostOption func(*Host)

// WithRuntime sets the runtime used for outgoing vtable calls.
func WithRuntime(rt Runtime) HostOption {
	return func(h *Host) { h.rt = rt }
}

// WithAllocator sets the allocator for vtables and interface ID arrays,
// overriding Config.Allocator.
func WithAllocator(a dxinterop.Allocator) HostOption {
	return func(h *Host) { h.alloc = a }
}

// WithThunkFactory sets the factory for native-callable vtable entries.
func WithThunkFactory(f ThunkFactory) HostOption {
	return func(h *Host) { h.thunks = f }
}

// WithTracker sets the object tracker. The default is DefaultTracker.
func WithTracker(t *Tracker) HostOption {
	return func(h *Host) { h.tracker = t }
}

// WithLeakSink sets the function receiving leak warnings.
func WithLeakSink(fn func(string)) HostOption {
	return func(h *Host) { h.SetLeakSink(fn) }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) HostOption {
	return func(h *Host) { h.log = l }
}

// NewHost returns a Host governed by cfg.
func NewHost(cfg dxinterop.Config, opts ...HostOption) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		shadows:     make(map[Handle]*shadowEntry),
		methodSlots: make(map[*Interface][]uintptr),
	}
	h.cfg.Store(&cfg)
	for _, o := range opts {
		o(h)
	}

	if h.alloc == nil {
		a, err := dxinterop.NewAllocator(cfg.Allocator)
		if err != nil {
			return nil, fmt.Errorf("creating allocator: %w", err)
		}
		h.alloc = a
	}
	if h.rt == nil {
		h.rt = NativeRuntime()
	}
	if h.thunks == nil {
		h.thunks = NativeThunks()
	}
	if h.tracker == nil {
		h.tracker = DefaultTracker()
	}
	if h.log == nil {
		h.log = dxinterop.Logger()
	}
	if h.sink.Load() == nil {
		h.SetLeakSink(dxinterop.LogSink(h.log))
	}
	h.applyLogLevel(cfg)
	return h, nil
}

var (
	defaultHostOnce sync.Once
	defaultHost     *Host
)

// DefaultHost returns the process-wide Host using dxinterop.DefaultConfig.
func DefaultHost() *Host {
	defaultHostOnce.Do(func() {
		h, err := NewHost(dxinterop.DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("com: default host: %v", err))
		}
		defaultHost = h
	})
	return defaultHost
}

// Config returns the active configuration. It is cheap enough to call on
// every disposal.
func (h *Host) Config() *dxinterop.Config {
	return h.cfg.Load()
}

// SetConfig replaces the active configuration. The allocator is fixed when
// the Host is created; a changed Config.Allocator is ignored.
func (h *Host) SetConfig(cfg dxinterop.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if old := h.cfg.Load(); old.Allocator != cfg.Allocator {
		h.log.Warn("allocator change ignored until restart", "current", old.Allocator, "requested", cfg.Allocator)
	}
	h.cfg.Store(&cfg)
	h.applyLogLevel(cfg)
	return nil
}

func (h *Host) applyLogLevel(cfg dxinterop.Config) {
	if cfg.LogLevel == "" {
		return
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		h.log.SetLevel(lvl)
	}
}

// WatchConfig applies every successful reload of the TOML file at path
// until ctx is done.
func (h *Host) WatchConfig(ctx context.Context, path string) error {
	return dxinterop.WatchConfig(ctx, path, func(cfg dxinterop.Config) {
		if err := h.SetConfig(cfg); err != nil {
			h.log.Error("rejected reloaded config", "path", path, "err", err)
			return
		}
		h.log.Info("config applied", "path", path)
	})
}

// Runtime returns the runtime used for outgoing calls.
func (h *Host) Runtime() Runtime {
	return h.rt
}

// Allocator returns the allocator used for shadow memory.
func (h *Host) Allocator() dxinterop.Allocator {
	return h.alloc
}

// Tracker returns the object tracker.
func (h *Host) Tracker() *Tracker {
	return h.tracker
}

// Logger returns the diagnostics logger.
func (h *Host) Logger() *log.Logger {
	return h.log
}

// SetLeakSink replaces the function receiving leak warnings. A nil fn
// discards them.
func (h *Host) SetLeakSink(fn func(string)) {
	if fn == nil {
		fn = func(string) {}
	}
	h.sink.Store(&fn)
}

func (h *Host) warnLeak(msg string) {
	if fn := h.sink.Load(); fn != nil {
		(*fn)(msg)
	}
}

// Wrap is NewComObject(h, handle).
func (h *Host) Wrap(handle Handle) *ComObject {
	return NewComObject(h, handle)
}

func (h *Host) registerShadow(e *shadowEntry) {
	h.shadowMu.Lock()
	defer h.shadowMu.Unlock()
	h.shadows[e.handle] = e
}

func (h *Host) unregisterShadow(e *shadowEntry) {
	h.shadowMu.Lock()
	defer h.shadowMu.Unlock()
	if h.shadows[e.handle] == e {
		delete(h.shadows, e.handle)
	}
}

func (h *Host) lookupShadow(handle Handle) *shadowEntry {
	h.shadowMu.RLock()
	defer h.shadowMu.RUnlock()
	return h.shadows[handle]
}

// vtable returns the slots of iface's vtable: the IUnknown methods followed
// by the methods of each interface in its chain, root first. Thunks are
// created at most once per host and method because native callbacks cannot
// be freed.
func (h *Host) vtable(iface *Interface) ([]uintptr, error) {
	h.thunkMu.Lock()
	defer h.thunkMu.Unlock()

	if h.unknownSlots == nil {
		slots, err := h.makeThunks(unknownMethods)
		if err != nil {
			return nil, fmt.Errorf("IUnknown: %w", err)
		}
		h.unknownSlots = slots
	}

	vtbl := make([]uintptr, 0, iface.SlotCount())
	vtbl = append(vtbl, h.unknownSlots...)
	chain := iface.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		in := chain[i]
		slots, ok := h.methodSlots[in]
		if !ok {
			var err error
			slots, err = h.makeThunks(in.entryMethods())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", in.Name, err)
			}
			h.methodSlots[in] = slots
		}
		vtbl = append(vtbl, slots...)
	}
	return vtbl, nil
}

func (h *Host) makeThunks(methods []entryMethod) ([]uintptr, error) {
	slots := make([]uintptr, len(methods))
	for i, m := range methods {
		fn, err := thunkFunc(m.arity, h.dispatcher(m))
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.name, err)
		}
		p, err := h.thunks.NewThunk(fn)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.name, err)
		}
		slots[i] = p
	}
	return slots, nil
}

// dispatcher resolves the this pointer passed by native code to its shadow
// entry and runs m. Panics are converted to E_UNEXPECTED since they must not
// unwind into native frames.
func (h *Host) dispatcher(m entryMethod) func(this uintptr, args []uintptr) uintptr {
	return func(this uintptr, args []uintptr) (rc uintptr) {
		e := h.lookupShadow(Handle(this))
		if e == nil {
			return hresultResult(dxinterop.E_POINTER)
		}
		defer func() {
			if r := recover(); r != nil {
				h.log.Error("panic in shadow method", "interface", e.iface.Name, "method", m.name, "panic", r)
				rc = hresultResult(dxinterop.E_UNEXPECTED)
			}
		}()
		return m.fn(e, args)
	}
}

func hresultResult(hr dxinterop.HRESULT) uintptr {
	return uintptr(uint32(hr))
}
