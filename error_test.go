// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

type hrTestCase struct {
	hr              HRESULT
	expectFacility  hrFacility // only valid when both expectNT and expectCustomer are false
	expectCode      hrCode     // only valid when both expectNT and expectCustomer are false
	expectSucceeded bool
	expectNT        bool
	expectCustomer  bool
}

var hrTestCases = []hrTestCase{
	{S_OK, 0, 0, true, false, false},
	{S_FALSE, 0, 1, true, false, false},
	{TYPE_E_WRONGTYPEKIND, 2, 0x802A, false, false, false},
	{E_ACCESSDENIED, FacilityWin32, 5, false, false, false},
	{DXGI_ERROR_DEVICE_REMOVED, FacilityDXGI, 5, false, false, false},
	{HRESULT(-((0xC0000022 ^ 0xFFFFFFFF) + 1)) | hrFacilityNTBit, 0, 0, false, true, false},
	{HRESULT(-((0xA0000001 ^ 0xFFFFFFFF) + 1)), 0, 0, false, false, true},
	{HRESULT(-((0xB0000001 ^ 0xFFFFFFFF) + 1)), 0, 0, false, false, true},
}

func TestHRESULT(t *testing.T) {
	for _, tc := range hrTestCases {
		hr := tc.hr
		if hr.Succeeded() != tc.expectSucceeded {
			t.Errorf("hr %s Succeeded() got %v, want %v", hr, hr.Succeeded(), tc.expectSucceeded)
		}
		if hr.Failed() == tc.expectSucceeded {
			t.Errorf("hr %s Failed() got %v, want %v", hr, hr.Failed(), !tc.expectSucceeded)
		}
		if hr.isNT() != tc.expectNT {
			t.Errorf("hr %s isNT() got %v, want %v", hr, hr.isNT(), tc.expectNT)
		}
		if hr.isCustomer() != tc.expectCustomer {
			t.Errorf("hr %s isCustomer() got %v, want %v", hr, hr.isCustomer(), tc.expectCustomer)
		}
		if !hr.isNT() && !hr.isCustomer() {
			if hr.facility() != tc.expectFacility {
				t.Errorf("hr %s facility() got %v, want %v", hr, hr.facility(), tc.expectFacility)
			}
			if hr.code() != tc.expectCode {
				t.Errorf("hr %s code() got %v, want %v", hr, hr.code(), tc.expectCode)
			}
		}
	}
}

func TestMakeHRESULT(t *testing.T) {
	if got := MakeHRESULT(true, FacilityWin32, 0x57); got != E_INVALIDARG {
		t.Errorf("MakeHRESULT got %s, want %s", got, E_INVALIDARG)
	}
	if got := MakeHRESULT(false, FacilityNull, 1); got != S_FALSE {
		t.Errorf("MakeHRESULT got %s, want %s", got, S_FALSE)
	}
	if got := HRESULTFromWin32(0); got != S_OK {
		t.Errorf("HRESULTFromWin32(0) got %s, want %s", got, S_OK)
	}
	if got := HRESULTFromWin32(5); got != E_ACCESSDENIED {
		t.Errorf("HRESULTFromWin32(5) got %s, want %s", got, E_ACCESSDENIED)
	}
}

type errorTestCase struct {
	code             any
	expectNewErrorOK bool
	expectFailed     bool
}

var errorTestCases = []errorTestCase{
	{int64(0), false, true},
	{S_OK, true, false},
	{E_POINTER, true, true},
	{Error(E_UNEXPECTED), true, true},
	{int32(-2147467263), true, true},
	{uint32(0x80004001), true, true},
	{syscall.Errno(0), true, false},
}

func TestNewError(t *testing.T) {
	for _, tc := range errorTestCases {
		err, ok := NewError(tc.code)
		if ok != tc.expectNewErrorOK {
			t.Errorf("NewError(%#v) ok got %v, want %v", tc.code, ok, tc.expectNewErrorOK)
		}
		if err.Failed() != tc.expectFailed {
			t.Errorf("NewError(%#v) Failed() got %v, want %v", tc.code, err.Failed(), tc.expectFailed)
		}
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("calling Seek: %w", ErrorFromHRESULT(E_NOINTERFACE))
	if !errors.Is(wrapped, ErrNativeCallFailed) {
		t.Errorf("errors.Is(%v, ErrNativeCallFailed) got false, want true", wrapped)
	}
	if errors.Is(ErrorFromHRESULT(S_FALSE), ErrNativeCallFailed) {
		t.Errorf("successful Error matched ErrNativeCallFailed")
	}

	hr, ok := HRESULTOf(wrapped)
	if !ok || hr != E_NOINTERFACE {
		t.Errorf("HRESULTOf got (%s, %v), want (%s, true)", hr, ok, E_NOINTERFACE)
	}
	if _, ok := HRESULTOf(ErrOutOfRange); ok {
		t.Errorf("HRESULTOf(ErrOutOfRange) ok got true, want false")
	}

	if err := S_FALSE.Err(); err != nil {
		t.Errorf("S_FALSE.Err() got %v, want nil", err)
	}
	if err := E_FAIL.Err(); !errors.Is(err, ErrNativeCallFailed) {
		t.Errorf("E_FAIL.Err() got %v, want ErrNativeCallFailed", err)
	}
}

func TestErrorMessage(t *testing.T) {
	msg := ErrorFromHRESULT(E_NOINTERFACE).Error()
	if !strings.Contains(msg, "0x80004002") || !strings.Contains(msg, "E_NOINTERFACE") {
		t.Errorf("unexpected message %q", msg)
	}
}
