// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package dxinterop contains the types shared by every layer of the COM
// interop bridge: HRESULT status words and the errors built from them,
// GUIDs, native memory allocators, configuration and logging.
package dxinterop

import (
	"fmt"
)

// HRESULT is the 32-bit signed status word returned across the COM ABI.
// Bit 31 is the severity (failure) bit, bit 29 the customer bit, bit 28 the
// NT-status bit, bits 16-26 the facility and bits 0-15 the code.
type HRESULT int32

type hrFacility uint16
type hrCode uint16

const (
	hrFailBit       = HRESULT(-((0x80000000 ^ 0xFFFFFFFF) + 1))
	hrCustomerBit   = HRESULT(0x20000000)
	hrFacilityNTBit = HRESULT(0x10000000)
	hrFacilityMask  = 0x07FF0000
	hrFacilityShift = 16
	hrCodeMask      = 0x0000FFFF
)

// Facility values that appear in the seeded descriptor table.
const (
	FacilityNull     = hrFacility(0)
	FacilityRPC      = hrFacility(1)
	FacilityDispatch = hrFacility(2)
	FacilityStorage  = hrFacility(3)
	FacilityITF      = hrFacility(4)
	FacilityWin32    = hrFacility(7)
	FacilityWindows  = hrFacility(8)
	FacilityDXGI     = hrFacility(0x87A)
	FacilityD3D11    = hrFacility(0x87C)
)

const (
	S_OK    = HRESULT(0)
	S_FALSE = HRESULT(1)

	E_NOTIMPL      = HRESULT(-((0x80004001 ^ 0xFFFFFFFF) + 1))
	E_NOINTERFACE  = HRESULT(-((0x80004002 ^ 0xFFFFFFFF) + 1))
	E_POINTER      = HRESULT(-((0x80004003 ^ 0xFFFFFFFF) + 1))
	E_ABORT        = HRESULT(-((0x80004004 ^ 0xFFFFFFFF) + 1))
	E_FAIL         = HRESULT(-((0x80004005 ^ 0xFFFFFFFF) + 1))
	E_UNEXPECTED   = HRESULT(-((0x8000FFFF ^ 0xFFFFFFFF) + 1))
	E_ACCESSDENIED = HRESULT(-((0x80070005 ^ 0xFFFFFFFF) + 1))
	E_HANDLE       = HRESULT(-((0x80070006 ^ 0xFFFFFFFF) + 1))
	E_OUTOFMEMORY  = HRESULT(-((0x8007000E ^ 0xFFFFFFFF) + 1))
	E_INVALIDARG   = HRESULT(-((0x80070057 ^ 0xFFFFFFFF) + 1))

	STG_E_INVALIDFUNCTION = HRESULT(-((0x80030001 ^ 0xFFFFFFFF) + 1))
	STG_E_READFAULT       = HRESULT(-((0x8003001E ^ 0xFFFFFFFF) + 1))
	STG_E_WRITEFAULT      = HRESULT(-((0x8003001D ^ 0xFFFFFFFF) + 1))
	STG_E_INVALIDPOINTER  = HRESULT(-((0x80030009 ^ 0xFFFFFFFF) + 1))

	DXGI_ERROR_INVALID_CALL   = HRESULT(-((0x887A0001 ^ 0xFFFFFFFF) + 1))
	DXGI_ERROR_NOT_FOUND      = HRESULT(-((0x887A0002 ^ 0xFFFFFFFF) + 1))
	DXGI_ERROR_DEVICE_REMOVED = HRESULT(-((0x887A0005 ^ 0xFFFFFFFF) + 1))
	DXGI_ERROR_DEVICE_HUNG    = HRESULT(-((0x887A0006 ^ 0xFFFFFFFF) + 1))
	DXGI_ERROR_DEVICE_RESET   = HRESULT(-((0x887A0007 ^ 0xFFFFFFFF) + 1))

	TYPE_E_WRONGTYPEKIND = HRESULT(-((0x8002802A ^ 0xFFFFFFFF) + 1))
)

// MakeHRESULT composes an HRESULT from its severity, facility and code.
func MakeHRESULT(failed bool, facility hrFacility, code hrCode) HRESULT {
	hr := HRESULT((uint32(facility)<<hrFacilityShift)&hrFacilityMask | uint32(code))
	if failed {
		hr |= hrFailBit
	}
	return hr
}

// HRESULTFromWin32 converts a Win32 error code into an HRESULT using the
// FACILITY_WIN32 mapping.
func HRESULTFromWin32(code uint32) HRESULT {
	if int32(code) <= 0 {
		return HRESULT(int32(code))
	}
	return MakeHRESULT(true, FacilityWin32, hrCode(code&hrCodeMask))
}

// Succeeded returns true when hr is a success code.
func (hr HRESULT) Succeeded() bool {
	return hr >= 0
}

// Failed returns true when hr is a failure code.
func (hr HRESULT) Failed() bool {
	return hr < 0
}

// Err returns nil when hr succeeded, otherwise an Error wrapping hr.
func (hr HRESULT) Err() error {
	if hr.Succeeded() {
		return nil
	}
	return Error(hr)
}

func (hr HRESULT) isNT() bool {
	return (hr & (hrCustomerBit | hrFacilityNTBit)) == hrFacilityNTBit
}

func (hr HRESULT) isCustomer() bool {
	return (hr & hrCustomerBit) != 0
}

// facility returns the facility bits. Its result is meaningless for NT or
// customer codes.
func (hr HRESULT) facility() hrFacility {
	return hrFacility((uint32(hr) & hrFacilityMask) >> hrFacilityShift)
}

func (hr HRESULT) code() hrCode {
	return hrCode(uint32(hr) & hrCodeMask)
}

// Facility returns the facility number encoded in hr.
func (hr HRESULT) Facility() uint16 {
	return uint16(hr.facility())
}

// Code returns the facility-specific code encoded in hr.
func (hr HRESULT) Code() uint16 {
	return uint16(hr.code())
}

func (hr HRESULT) String() string {
	return fmt.Sprintf("0x%08X", uint32(hr))
}
