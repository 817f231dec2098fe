// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNativeCallFailed matches any Error carrying a failed HRESULT.
	ErrNativeCallFailed = errors.New("native call failed")
	// ErrUnsupportedInterface is returned when QueryInterface reports that the
	// requested interface is not implemented by the native object.
	ErrUnsupportedInterface = errors.New("interface not supported")
	// ErrInvalidState indicates misuse, such as reference counting an
	// unbound wrapper or rebinding a disposed one.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoExposableInterface is returned when a shadow is requested for a
	// callback that declares no shadowable interface.
	ErrNoExposableInterface = errors.New("no shadowable interface")
	// ErrOutOfRange is returned by bounds-checked buffer and stream operations.
	ErrOutOfRange = errors.New("out of range")
	// ErrUnsupported is returned on platforms lacking a native facility.
	ErrUnsupported = errors.New("not supported on this platform")
)

// Error represents a COM error expressed as an HRESULT. Its zero value means
// success.
type Error HRESULT

// ErrorFromHRESULT wraps hr as an Error.
func ErrorFromHRESULT(hr HRESULT) Error {
	return Error(hr)
}

// NewError converts code into an Error. code may be an HRESULT, an Error, an
// int32 or uint32 holding HRESULT bits, or a syscall.Errno. ok is false when
// code has none of those types.
func NewError(code any) (_ Error, ok bool) {
	switch v := code.(type) {
	case Error:
		return v, true
	case HRESULT:
		return Error(v), true
	case int32:
		return Error(v), true
	case uint32:
		return Error(int32(v)), true
	case syscall.Errno:
		hr, ok := hresultFromErrno(v)
		return Error(hr), ok
	default:
		return Error(E_FAIL), false
	}
}

// AsHRESULT returns e as an HRESULT.
func (e Error) AsHRESULT() HRESULT {
	return HRESULT(e)
}

// Failed returns true when e represents a failure.
func (e Error) Failed() bool {
	return HRESULT(e).Failed()
}

// Succeeded returns true when e represents success.
func (e Error) Succeeded() bool {
	return HRESULT(e).Succeeded()
}

// Descriptor resolves e through the result descriptor registry.
func (e Error) Descriptor() ResultDescriptor {
	return FindResultDescriptor(HRESULT(e))
}

func (e Error) Error() string {
	d := e.Descriptor()
	if d.NativeName != "" {
		return fmt.Sprintf("HRESULT %s [%s]: %s", HRESULT(e), d.NativeName, d.Description)
	}
	return fmt.Sprintf("HRESULT %s: %s", HRESULT(e), d.Description)
}

// Is allows errors.Is(err, ErrNativeCallFailed) to match failed Errors.
func (e Error) Is(target error) bool {
	return target == ErrNativeCallFailed && e.Failed()
}

// HRESULTOf extracts the HRESULT carried by err. ok is false when err does not
// wrap an Error.
func HRESULTOf(err error) (hr HRESULT, ok bool) {
	var e Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return HRESULT(e), true
}
