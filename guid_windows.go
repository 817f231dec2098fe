// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package dxinterop

import (
	"golang.org/x/sys/windows"
)

// ToWindows converts g to the x/sys/windows representation.
func (g GUID) ToWindows() windows.GUID {
	return windows.GUID(g)
}

// GUIDFromWindows converts a windows.GUID.
func GUIDFromWindows(g windows.GUID) GUID {
	return GUID(g)
}
