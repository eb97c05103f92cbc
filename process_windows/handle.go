//go:build windows

package process_windows

import (
	"procsig/process"

	"golang.org/x/sys/windows"
)

// Handle owns one Windows process handle
type Handle struct {
	pid    process.ProcessID
	h      windows.Handle
	closed bool
}

var _ process.Handle = (*Handle)(nil)

func (h *Handle) PID() process.ProcessID { return h.pid }
func (h *Handle) Value() uintptr         { return uintptr(h.h) }

func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return windows.CloseHandle(h.h)
}

// referent wraps a raw handle, taking its PID from the object it refers to.
// The raw handle is closed when that lookup fails.
func referent(raw windows.Handle) (*Handle, error) {
	pid, err := windows.GetProcessId(raw)
	if err != nil {
		windows.CloseHandle(raw)
		return nil, err
	}
	return &Handle{pid: process.ProcessID(pid), h: raw}, nil
}
