//go:build linux

package process_linux

import (
	"fmt"

	"procsig/process"

	"golang.org/x/sys/unix"
)

// Handle is a pidfd. Reads still go by pid, so ReadMemory checks the pidfd
// after each read and discards the data once the process has exited.
type Handle struct {
	pid    process.ProcessID
	fd     int
	closed bool
}

var _ process.Handle = (*Handle)(nil)

func openPidfd(pid process.ProcessID) (process.Handle, error) {
	fd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return nil, fmt.Errorf("pidfd_open(%d): %w", pid, err)
	}
	return &Handle{pid: pid, fd: fd}, nil
}

func (h *Handle) PID() process.ProcessID { return h.pid }
func (h *Handle) Value() uintptr         { return uintptr(h.fd) }

func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return unix.Close(h.fd)
}

// alive reports whether the process behind the pidfd still exists
func (h *Handle) alive() error {
	if err := unix.PidfdSendSignal(h.fd, 0, nil, 0); err != nil {
		return fmt.Errorf("process %d: %w", h.pid, err)
	}
	return nil
}
