// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package dxinterop

import (
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

func hresultFromErrno(errno syscall.Errno) (HRESULT, bool) {
	return HRESULTFromWin32(uint32(errno)), true
}

// platformMessage asks the system message table for hr's text.
func platformMessage(hr HRESULT) string {
	var buf [512]uint16
	flags := uint32(windows.FORMAT_MESSAGE_FROM_SYSTEM | windows.FORMAT_MESSAGE_IGNORE_INSERTS)
	n, err := windows.FormatMessage(flags, 0, uint32(hr), 0, buf[:], nil)
	if err != nil || n == 0 {
		return ""
	}
	return strings.TrimSpace(windows.UTF16ToString(buf[:n]))
}
