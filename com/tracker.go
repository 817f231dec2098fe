// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"
	"weak"

	"golang.org/x/exp/slices"
)

// ObjectReference is the diagnostic record kept for a tracked ComObject.
type ObjectReference struct {
	ID      uint64
	Handle  Handle
	Created time.Time

	pcs []uintptr
	obj weak.Pointer[ComObject]
}

// IsAlive reports whether the wrapper is still reachable from Go.
func (r *ObjectReference) IsAlive() bool {
	return r.obj.Value() != nil
}

// Stack returns the call stack that bound the wrapper, starting at the first
// frame outside this package.
func (r *ObjectReference) Stack() string {
	if len(r.pcs) == 0 {
		return ""
	}
	var sb strings.Builder
	frames := runtime.CallersFrames(r.pcs)
	inBridge := true
	for {
		f, more := frames.Next()
		if inBridge && strings.HasPrefix(f.Function, pkgPrefix) {
			if !more {
				break
			}
			continue
		}
		inBridge = false
		fmt.Fprintf(&sb, "\t%s\n\t\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// pkgPrefix prefixes the names of this package's functions in stack frames.
var pkgPrefix = reflect.TypeOf((*Tracker)(nil)).Elem().PkgPath() + "."

func (r *ObjectReference) String() string {
	return fmt.Sprintf("object #%d handle %s created %s", r.ID, r.Handle, r.Created.Format(time.RFC3339Nano))
}

// Tracker records live ComObjects for leak diagnostics. Wrappers are held
// weakly, so tracking never delays finalization. All methods are safe for
// concurrent use, including from finalizers.
type Tracker struct {
	mu      sync.Mutex
	entries map[uint64]*ObjectReference

	// captureStacks controls whether Track records the caller's stack.
	captureStacks bool
}

// NewTracker returns an empty Tracker. When captureStacks is true every Track
// records its call stack.
func NewTracker(captureStacks bool) *Tracker {
	return &Tracker{
		entries:       make(map[uint64]*ObjectReference),
		captureStacks: captureStacks,
	}
}

var (
	defaultTrackerOnce sync.Once
	defaultTracker     *Tracker
)

// DefaultTracker returns the process-wide Tracker, creating it on first use.
func DefaultTracker() *Tracker {
	defaultTrackerOnce.Do(func() {
		defaultTracker = NewTracker(true)
	})
	return defaultTracker
}

// Track registers o under its current handle. Tracking an object twice
// replaces its previous record.
func (t *Tracker) Track(o *ComObject) {
	ref := &ObjectReference{
		ID:      o.id,
		Handle:  o.Handle(),
		Created: time.Now(),
		obj:     weak.Make(o),
	}
	if t.captureStacks {
		var pcs [48]uintptr
		n := runtime.Callers(2, pcs[:])
		ref.pcs = slices.Clone(pcs[:n])
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[o.id] = ref
}

// Untrack removes o's record, if any.
func (t *Tracker) Untrack(o *ComObject) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, o.id)
}

// Find returns o's record, or nil when o is not tracked.
func (t *Tracker) Find(o *ComObject) *ObjectReference {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[o.id]
}

// FindByHandle returns every record bound to h.
func (t *Tracker) FindByHandle(h Handle) []*ObjectReference {
	t.mu.Lock()
	defer t.mu.Unlock()
	var refs []*ObjectReference
	for _, r := range t.entries {
		if r.Handle == h {
			refs = append(refs, r)
		}
	}
	return refs
}

// Count returns the number of tracked objects.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Live returns every record, oldest first.
func (t *Tracker) Live() []*ObjectReference {
	t.mu.Lock()
	refs := make([]*ObjectReference, 0, len(t.entries))
	for _, r := range t.entries {
		refs = append(refs, r)
	}
	t.mu.Unlock()

	slices.SortFunc(refs, func(a, b *ObjectReference) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return refs
}

// Report formats every live record, including its creation stack.
func (t *Tracker) Report() string {
	refs := t.Live()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d active native object(s)\n", len(refs))
	for _, r := range refs {
		state := "reachable"
		if !r.IsAlive() {
			state = "collected without release"
		}
		fmt.Fprintf(&sb, "[%s] %s\n", state, r)
		sb.WriteString(r.Stack())
	}
	return sb.String()
}
