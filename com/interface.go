// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dblohm7/dxinterop"
)

// maxArity is the largest number of arguments, excluding this, that a
// shadow method may take.
const maxArity = 8

// Method describes one vtable entry added by an Interface.
type Method struct {
	Name string
	// Arity is the number of arguments after the implicit this pointer.
	Arity int
	// Invoke runs the method on cb. args holds exactly Arity values and the
	// result is returned to native code unchanged, usually an HRESULT.
	Invoke func(cb Callback, args []uintptr) uintptr
}

// Interface declares a COM interface that Go callbacks may implement. COM
// interfaces inherit singly, so an Interface names at most one Base; a nil
// Base means the interface derives directly from IUnknown, whose methods are
// always implied.
type Interface struct {
	IID  *IID
	Name string
	Base *Interface
	// Shadowable marks interfaces that may be materialized as a native
	// vtable. Interfaces lacking it are only reachable through a derived
	// interface that has it.
	Shadowable bool
	Methods    []Method
}

func (i *Interface) String() string {
	return fmt.Sprintf("%s %s", i.Name, i.IID)
}

// Chain returns i followed by each of its bases, most derived first.
func (i *Interface) Chain() []*Interface {
	var chain []*Interface
	for in := i; in != nil; in = in.Base {
		chain = append(chain, in)
	}
	return chain
}

// Inherits reports whether other is a proper base of i.
func (i *Interface) Inherits(other *Interface) bool {
	for b := i.Base; b != nil; b = b.Base {
		if b == other {
			return true
		}
	}
	return false
}

// SlotCount returns the number of vtable slots of i, including IUnknown's.
func (i *Interface) SlotCount() int {
	n := unknownSlots
	for in := i; in != nil; in = in.Base {
		n += len(in.Methods)
	}
	return n
}

// IUnknown is the root of every interface. Listing it as a Base is allowed
// but never necessary.
var IUnknown = &Interface{IID: IID_IUnknown, Name: "IUnknown"}

// entryMethod is a vtable entry bound to the shadow entry native code calls
// it on.
type entryMethod struct {
	name  string
	arity int
	fn    func(e *shadowEntry, args []uintptr) uintptr
}

func (i *Interface) entryMethods() []entryMethod {
	methods := make([]entryMethod, 0, len(i.Methods))
	for _, m := range i.Methods {
		methods = append(methods, entryMethod{
			name:  i.Name + "::" + m.Name,
			arity: m.Arity,
			fn: func(e *shadowEntry, args []uintptr) uintptr {
				cb := e.container.callback()
				if cb == nil {
					return hresultResult(dxinterop.E_UNEXPECTED)
				}
				return m.Invoke(cb, args)
			},
		})
	}
	return methods
}

// thunkFunc returns a func with arity uintptr arguments after this, suitable
// for a ThunkFactory.
func thunkFunc(arity int, dispatch func(this uintptr, args []uintptr) uintptr) (any, error) {
	switch arity {
	case 0:
		return func(this uintptr) uintptr {
			return dispatch(this, nil)
		}, nil
	case 1:
		return func(this, a0 uintptr) uintptr {
			return dispatch(this, []uintptr{a0})
		}, nil
	case 2:
		return func(this, a0, a1 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1})
		}, nil
	case 3:
		return func(this, a0, a1, a2 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2})
		}, nil
	case 4:
		return func(this, a0, a1, a2, a3 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2, a3})
		}, nil
	case 5:
		return func(this, a0, a1, a2, a3, a4 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2, a3, a4})
		}, nil
	case 6:
		return func(this, a0, a1, a2, a3, a4, a5 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2, a3, a4, a5})
		}, nil
	case 7:
		return func(this, a0, a1, a2, a3, a4, a5, a6 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2, a3, a4, a5, a6})
		}, nil
	case 8:
		return func(this, a0, a1, a2, a3, a4, a5, a6, a7 uintptr) uintptr {
			return dispatch(this, []uintptr{a0, a1, a2, a3, a4, a5, a6, a7})
		}, nil
	default:
		return nil, fmt.Errorf("%w: arity %d exceeds %d", dxinterop.ErrInvalidState, arity, maxArity)
	}
}

// ReduceInterfaces returns the interfaces that get their own vtable when
// declared is exposed to native code. The transitive set of declared and
// their bases is first filtered to shadowable interfaces, then every
// interface inherited by another survivor is dropped, since the derived
// vtable already satisfies it. Declaration order is kept.
func ReduceInterfaces(declared []*Interface) []*Interface {
	var all []*Interface
	seen := make(map[*Interface]bool)
	for _, d := range declared {
		for in := d; in != nil; in = in.Base {
			if !seen[in] {
				seen[in] = true
				all = append(all, in)
			}
		}
	}

	var exposable []*Interface
	for _, in := range all {
		if in.Shadowable {
			exposable = append(exposable, in)
		}
	}

	inherited := make(map[*Interface]bool)
	for _, in := range exposable {
		for b := in.Base; b != nil; b = b.Base {
			inherited[b] = true
		}
	}

	var reduced []*Interface
	for _, in := range exposable {
		if !inherited[in] {
			reduced = append(reduced, in)
		}
	}
	return reduced
}

// reductions caches ReduceInterfaces per concrete callback type.
var reductions sync.Map // reflect.Type -> []*Interface

// shadowInterfaces returns the reduced interface set for cb's type. The set
// is computed once per type, so ShadowInterfaces must not vary between
// instances.
func shadowInterfaces(cb Callback) ([]*Interface, error) {
	t := reflect.TypeOf(cb)
	if v, ok := reductions.Load(t); ok {
		return v.([]*Interface), nil
	}

	reduced := ReduceInterfaces(cb.ShadowInterfaces())
	if len(reduced) == 0 {
		return nil, fmt.Errorf("%w: %v", dxinterop.ErrNoExposableInterface, t)
	}
	v, _ := reductions.LoadOrStore(t, reduced)
	return v.([]*Interface), nil
}
