// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package com

// Unknown wraps an IUnknown reference.
type Unknown struct {
	*ComObject
}

func (Unknown) GetIID() *IID {
	return IID_IUnknown
}

func (Unknown) Make(obj *ComObject) any {
	return Unknown{obj}
}
