//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"procsig/growbuf"
	"procsig/hijack"

	"golang.org/x/sys/windows"
)

const seDebugPrivilege = 20

// clientID is CLIENT_ID
type clientID struct {
	UniqueProcess uintptr
	UniqueThread  uintptr
}

// ntapi is the set of ntdll entry points handle duplication needs. It is
// only usable when every one of them resolved.
type ntapi struct {
	querySystemInformation *windows.LazyProc
	duplicateObject        *windows.LazyProc
	openProcess            *windows.LazyProc
	adjustPrivilege        *windows.LazyProc
}

func loadNtapi() (*ntapi, error) {
	ntdll := windows.NewLazySystemDLL("ntdll.dll")
	api := &ntapi{
		querySystemInformation: ntdll.NewProc("NtQuerySystemInformation"),
		duplicateObject:        ntdll.NewProc("NtDuplicateObject"),
		openProcess:            ntdll.NewProc("NtOpenProcess"),
		adjustPrivilege:        ntdll.NewProc("RtlAdjustPrivilege"),
	}

	for _, p := range []*windows.LazyProc{api.querySystemInformation, api.duplicateObject, api.openProcess, api.adjustPrivilege} {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("%w: %v", hijack.ErrUnavailable, err)
		}
	}

	return api, nil
}

func ntError(name string, r1 uintptr) error {
	status := windows.NTStatus(r1)
	if status == windows.STATUS_SUCCESS {
		return nil
	}
	return fmt.Errorf("%s: %w", name, status)
}

func (api *ntapi) enableDebugPrivilege() error {
	var previous uint8
	r1, _, _ := api.adjustPrivilege.Call(seDebugPrivilege, 1, 0, uintptr(unsafe.Pointer(&previous)))
	return ntError("RtlAdjustPrivilege", r1)
}

func (api *ntapi) querySystemHandles(class uint32, buf []byte) error {
	if len(buf) == 0 {
		return growbuf.ErrSizeMismatch
	}

	var needed uint32
	r1, _, _ := api.querySystemInformation.Call(
		uintptr(class),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&needed)),
	)

	if windows.NTStatus(r1) == windows.STATUS_INFO_LENGTH_MISMATCH {
		return fmt.Errorf("%w: need %d bytes", growbuf.ErrSizeMismatch, needed)
	}
	return ntError("NtQuerySystemInformation", r1)
}

func (api *ntapi) open(pid uint32, access uint32) (windows.Handle, error) {
	var h windows.Handle
	attrs := windows.OBJECT_ATTRIBUTES{}
	attrs.Length = uint32(unsafe.Sizeof(attrs))
	cid := clientID{UniqueProcess: uintptr(pid)}

	r1, _, _ := api.openProcess.Call(
		uintptr(unsafe.Pointer(&h)),
		uintptr(access),
		uintptr(unsafe.Pointer(&attrs)),
		uintptr(unsafe.Pointer(&cid)),
	)
	if err := ntError("NtOpenProcess", r1); err != nil {
		return 0, err
	}
	return h, nil
}

func (api *ntapi) duplicate(source windows.Handle, value uintptr, access uint32) (windows.Handle, error) {
	var h windows.Handle
	r1, _, _ := api.duplicateObject.Call(
		uintptr(source),
		value,
		uintptr(windows.CurrentProcess()),
		uintptr(unsafe.Pointer(&h)),
		uintptr(access),
		0,
		0,
	)
	if err := ntError("NtDuplicateObject", r1); err != nil {
		return 0, err
	}
	return h, nil
}
