// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !windows

package dxinterop

import (
	"syscall"
)

// POSIX errno values do not share the Win32 numbering, so they have no
// faithful HRESULT mapping.
func hresultFromErrno(errno syscall.Errno) (HRESULT, bool) {
	if errno == 0 {
		return S_OK, true
	}
	return E_FAIL, false
}

func platformMessage(hr HRESULT) string {
	return ""
}
