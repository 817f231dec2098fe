// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !windows

package com

// Names are only ever allocated by native Windows streams.
func freeCoTaskMem(p uintptr) {}
