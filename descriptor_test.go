// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"runtime"
	"testing"
)

func TestFindResultDescriptor(t *testing.T) {
	d := FindResultDescriptor(E_POINTER)
	if d.NativeName != "E_POINTER" || d.Module != "General" {
		t.Errorf("FindResultDescriptor(E_POINTER) got %+v", d)
	}

	custom := MakeHRESULT(true, FacilityITF, 0x0201)
	RegisterResultDescriptor(ResultDescriptor{
		Result:      custom,
		Module:      "Test",
		NativeName:  "TEST_E_CUSTOM",
		Description: "Custom failure",
	})
	if d := FindResultDescriptor(custom); d.Description != "Custom failure" {
		t.Errorf("registered descriptor got %+v", d)
	}

	if runtime.GOOS != "windows" {
		unknown := MakeHRESULT(true, FacilityITF, 0x7FFF)
		if d := FindResultDescriptor(unknown); d.Description != "Unknown" || d.Result != unknown {
			t.Errorf("unknown descriptor got %+v, want Unknown", d)
		}
	}
}
