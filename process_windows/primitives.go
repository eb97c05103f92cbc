//go:build windows

package process_windows

import (
	"fmt"

	"procsig/hijack"
	"procsig/process"

	"golang.org/x/sys/windows"
)

// duplicateAccess is what a hijacked handle is duplicated with
const duplicateAccess = windows.PROCESS_VM_READ | windows.PROCESS_QUERY_LIMITED_INFORMATION

// primitives implements hijack.Primitives on top of ntdll
type primitives struct {
	api *ntapi
}

var _ hijack.Primitives = (*primitives)(nil)

func (p *primitives) EnableDebugPrivilege() error {
	return p.api.enableDebugPrivilege()
}

func (p *primitives) QueryHandleTable(layout hijack.Layout, buf []byte) error {
	return p.api.querySystemHandles(layout.InfoClass(), buf)
}

func (p *primitives) SelfPID() process.ProcessID {
	return process.ProcessID(windows.GetCurrentProcessId())
}

func (p *primitives) OpenSelf() (process.Handle, error) {
	self := windows.GetCurrentProcessId()
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, self)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(self): %w", err)
	}
	return &Handle{pid: process.ProcessID(self), h: h}, nil
}

func (p *primitives) OpenForDuplicate(owner process.ProcessID) (process.Handle, error) {
	h, err := p.api.open(uint32(owner), windows.PROCESS_DUP_HANDLE)
	if err != nil {
		return nil, err
	}
	return &Handle{pid: owner, h: h}, nil
}

func (p *primitives) Duplicate(owner process.Handle, value uintptr) (process.Handle, error) {
	raw, err := p.api.duplicate(windows.Handle(owner.Value()), value, duplicateAccess)
	if err != nil {
		return nil, err
	}

	h, err := referent(raw)
	if err != nil {
		return nil, fmt.Errorf("GetProcessId: %w", err)
	}
	return h, nil
}
