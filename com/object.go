// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

import (
	"fmt"

	"github.com/dblohm7/dxinterop"
)

// Object is the interface that all typed wrappers of COM interfaces must
// implement.
type Object interface {
	// GetIID returns the interface ID for the object. This method may be called
	// on Objects containing the zero value, so its return value must not depend
	// on the value of the method's receiver.
	GetIID() *IID

	// Make converts obj to an instance of the typed wrapper. The type of its
	// return value must always match the type of the method's receiver.
	Make(obj *ComObject) any
}

// QueryInterface asks src for O's interface and wraps the resulting
// reference, which the caller owns, in a new O. Failures match
// dxinterop.ErrUnsupportedInterface and carry the native Error.
func QueryInterface[O Object](src *ComObject) (O, error) {
	var zero O
	h, err := src.QueryInterfaceHandle(zero.GetIID())
	if err != nil {
		if _, ok := dxinterop.HRESULTOf(err); ok {
			return zero, fmt.Errorf("%w %s: %w", dxinterop.ErrUnsupportedInterface, zero.GetIID(), err)
		}
		return zero, err
	}
	return zero.Make(NewComObject(src.host, h)).(O), nil
}

// TryAs is QueryInterface, named for call sites that expect failure.
func TryAs[O Object](src *ComObject) (O, error) {
	return QueryInterface[O](src)
}

// As casts src to a COM object of type O, panicking on failure.
func As[O Object](src *ComObject) O {
	o, err := QueryInterface[O](src)
	if err != nil {
		panic(err)
	}
	return o
}

// Wrap takes ownership of h as an O without querying. The caller asserts that
// h already points at O's interface.
func Wrap[O Object](host *Host, h Handle) O {
	var zero O
	return zero.Make(NewComObject(host, h)).(O)
}

// IsSameObject reports whether a and b are the same native object, using
// their IUnknown identities.
func IsSameObject(a, b *ComObject) (bool, error) {
	ua, err := a.QueryInterfaceHandle(IID_IUnknown)
	if err != nil {
		return false, err
	}
	defer release(a.host.rt, ua)

	ub, err := b.QueryInterfaceHandle(IID_IUnknown)
	if err != nil {
		return false, err
	}
	defer release(b.host.rt, ub)

	return ua == ub, nil
}
