//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"procsig/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv copies len(buf) bytes at remoteAddr out of pid and
// returns how many bytes were copied
func process_vm_readv(pid process.ProcessID, buf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{Base: &buf[0]}
	localIov.SetLen(len(buf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(buf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		1,
		uintptr(unsafe.Pointer(&remoteIov)),
		1,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("process_vm_readv failed: %w", errno)
	}

	return int(n), nil
}

// ReadMemory reads all size bytes at addr or fails with no data
func (b *Backend) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	lh, ok := h.(*Handle)
	if !ok || lh == nil {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	if lh.closed {
		return nil, process.ErrHandleClosed
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	n, err := process_vm_readv(lh.pid, buf, addr)

	// process_vm_readv addresses the pid, not the pidfd. A process still
	// alive after the read held its pid throughout, so buf is its memory.
	if aerr := lh.alive(); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %s: %w", size, addr.ToString(), err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: %d of %d bytes at %s", process.ErrPartialRead, n, size, addr.ToString())
	}

	return buf, nil
}
