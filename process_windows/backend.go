//go:build windows

// Package process_windows is the Windows process.Backend. Processes and
// modules come from toolhelp snapshots, handles from the handle duplication
// scan with OpenProcess as the fallback, and reads from ReadProcessMemory.
package process_windows

import (
	"fmt"

	"procsig/access"
	"procsig/hijack"
	"procsig/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// openAccess is the fallback's requested access
const openAccess = windows.PROCESS_VM_READ | windows.PROCESS_QUERY_INFORMATION

type Backend struct {
	log    *logger.Logger
	access *access.Chain
}

var _ process.Backend = (*Backend)(nil)

// NewBackend builds the backend. With useHijack false handles only come
// from OpenProcess.
func NewBackend(cfg hijack.Config, useHijack bool) *Backend {
	b := &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "windows")),
	}

	var strategies []access.Strategy
	if useHijack {
		api, err := loadNtapi()
		if err != nil {
			b.log.Warn("handle duplication disabled: ", err)
			strategies = append(strategies, hijack.New(nil, cfg))
		} else {
			strategies = append(strategies, hijack.New(&primitives{api: api}, cfg))
		}
	}
	strategies = append(strategies, access.Func{Label: "open", Acquire: openProcess})

	b.access = access.NewChain(strategies...)
	return b
}

func openProcess(pid process.ProcessID) (process.Handle, error) {
	h, err := windows.OpenProcess(openAccess, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	return &Handle{pid: pid, h: h}, nil
}

func (b *Backend) FindProcessID(name string) (process.ProcessID, error) {
	return findProcessID(name)
}

func (b *Backend) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	return b.access.AcquireHandle(pid)
}

func (b *Backend) FindModule(pid process.ProcessID, name string) (process.ModuleInfo, error) {
	return findModule(pid, name)
}

func (b *Backend) ListModules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	return listModules(pid)
}

// ReadMemory fails unless all size bytes were copied
func (b *Backend) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	wh, ok := h.(*Handle)
	if !ok || wh == nil {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	if wh.closed {
		return nil, process.ErrHandleClosed
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	err := windows.ReadProcessMemory(wh.h, uintptr(addr), &buf[0], uintptr(size), &bytesRead)
	if err != nil {
		if bytesRead > 0 {
			return nil, fmt.Errorf("%w: %d of %d bytes at %s: %v", process.ErrPartialRead, bytesRead, size, addr.ToString(), err)
		}
		return nil, fmt.Errorf("ReadProcessMemory at %s: %w", addr.ToString(), err)
	}

	if bytesRead != uintptr(size) {
		return nil, fmt.Errorf("%w: %d of %d bytes at %s", process.ErrPartialRead, bytesRead, size, addr.ToString())
	}

	return buf, nil
}

