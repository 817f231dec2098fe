// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"fmt"
	"sync"
)

// ResultDescriptor describes a known HRESULT.
type ResultDescriptor struct {
	Result      HRESULT
	Module      string
	NativeName  string
	Description string
}

func (d ResultDescriptor) String() string {
	if d.Module == "" {
		return fmt.Sprintf("%s (%s): %s", d.Result, d.NativeName, d.Description)
	}
	return fmt.Sprintf("%s (%s.%s): %s", d.Result, d.Module, d.NativeName, d.Description)
}

var (
	descriptorsMu sync.RWMutex
	descriptors   = map[HRESULT]ResultDescriptor{}
)

var seedDescriptors = []ResultDescriptor{
	{S_OK, "General", "S_OK", "Success"},
	{S_FALSE, "General", "S_FALSE", "Success, but nonstandard completion"},
	{E_NOTIMPL, "General", "E_NOTIMPL", "Not implemented"},
	{E_NOINTERFACE, "General", "E_NOINTERFACE", "No such interface supported"},
	{E_POINTER, "General", "E_POINTER", "Invalid pointer"},
	{E_ABORT, "General", "E_ABORT", "Operation aborted"},
	{E_FAIL, "General", "E_FAIL", "Unspecified error"},
	{E_UNEXPECTED, "General", "E_UNEXPECTED", "Catastrophic failure"},
	{E_ACCESSDENIED, "General", "E_ACCESSDENIED", "General access denied error"},
	{E_HANDLE, "General", "E_HANDLE", "Invalid handle"},
	{E_OUTOFMEMORY, "General", "E_OUTOFMEMORY", "Out of memory"},
	{E_INVALIDARG, "General", "E_INVALIDARG", "Invalid arguments"},
	{STG_E_INVALIDFUNCTION, "Storage", "STG_E_INVALIDFUNCTION", "Unable to perform requested operation"},
	{STG_E_READFAULT, "Storage", "STG_E_READFAULT", "Could not read from the stream"},
	{STG_E_WRITEFAULT, "Storage", "STG_E_WRITEFAULT", "Could not write to the stream"},
	{STG_E_INVALIDPOINTER, "Storage", "STG_E_INVALIDPOINTER", "Invalid pointer error"},
	{DXGI_ERROR_INVALID_CALL, "DXGI", "DXGI_ERROR_INVALID_CALL", "The application provided invalid parameter data"},
	{DXGI_ERROR_NOT_FOUND, "DXGI", "DXGI_ERROR_NOT_FOUND", "The object was not found"},
	{DXGI_ERROR_DEVICE_REMOVED, "DXGI", "DXGI_ERROR_DEVICE_REMOVED", "The video card has been physically removed from the system, or a driver upgrade has occurred"},
	{DXGI_ERROR_DEVICE_HUNG, "DXGI", "DXGI_ERROR_DEVICE_HUNG", "The device failed due to a badly formed command"},
	{DXGI_ERROR_DEVICE_RESET, "DXGI", "DXGI_ERROR_DEVICE_RESET", "The device failed due to a badly formed command"},
}

func init() {
	for _, d := range seedDescriptors {
		descriptors[d.Result] = d
	}
}

// RegisterResultDescriptor adds d to the registry, replacing any existing
// descriptor for the same HRESULT.
func RegisterResultDescriptor(d ResultDescriptor) {
	descriptorsMu.Lock()
	defer descriptorsMu.Unlock()
	descriptors[d.Result] = d
}

// FindResultDescriptor looks hr up in the registry. Unknown codes fall back
// to the platform message table and then to "Unknown".
func FindResultDescriptor(hr HRESULT) ResultDescriptor {
	descriptorsMu.RLock()
	d, ok := descriptors[hr]
	descriptorsMu.RUnlock()
	if ok {
		return d
	}

	d = ResultDescriptor{Result: hr, Description: platformMessage(hr)}
	if d.Description == "" {
		d.Description = "Unknown"
	}
	return d
}
