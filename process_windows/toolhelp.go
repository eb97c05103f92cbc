//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"procsig/process"

	"golang.org/x/sys/windows"
)

// findProcessID walks a process snapshot for an exact executable name
func findProcessID(name string) (process.ProcessID, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	err = windows.Process32First(snapshot, &entry)
	for err == nil {
		if windows.UTF16ToString(entry.ExeFile[:]) == name {
			return process.ProcessID(entry.ProcessID), nil
		}
		err = windows.Process32Next(snapshot, &entry)
	}

	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return 0, fmt.Errorf("Process32Next: %w", err)
	}
	return 0, fmt.Errorf("%w: %s", process.ErrProcessNotFound, name)
}

// listModules snapshots both the 64 and 32 bit module lists of pid
func listModules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot(%d): %w", pid, err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []process.ModuleInfo
	err = windows.Module32First(snapshot, &entry)
	for err == nil {
		modules = append(modules, process.ModuleInfo{
			Name: windows.UTF16ToString(entry.Module[:]),
			Base: process.ProcessMemoryAddress(entry.ModBaseAddr),
			Size: process.ProcessMemorySize(entry.ModBaseSize),
		})
		err = windows.Module32Next(snapshot, &entry)
	}

	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Module32Next: %w", err)
	}
	return modules, nil
}

func findModule(pid process.ProcessID, name string) (process.ModuleInfo, error) {
	modules, err := listModules(pid)
	if err != nil {
		return process.ModuleInfo{}, err
	}
	for _, m := range modules {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return process.ModuleInfo{}, fmt.Errorf("%w: %s", process.ErrModuleNotFound, name)
}
