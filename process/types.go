package process

import (
	"fmt"
)

// ProcessID represents a unique identifier for a process
type ProcessID uint32

// Handle is an owned OS capability over one process, granting at least
// memory-read and query rights. Close releases it and is safe to call more
// than once.
type Handle interface {
	// PID returns the process the handle refers to, which is not necessarily
	// the process that held it before duplication.
	PID() ProcessID

	// Value returns the raw OS handle or descriptor.
	Value() uintptr

	Close() error
}

// ModuleInfo describes one loaded module's address range inside the target process
type ModuleInfo struct {
	Name string
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

// End returns the first address past the module
func (m ModuleInfo) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}

// Contains reports whether addr lies inside the module
func (m ModuleInfo) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.End()
}

func (m ModuleInfo) String() string {
	return fmt.Sprintf("%s base=%s size=%s", m.Name, m.Base.ToString(), m.Size.ToString())
}

// Region is a contiguous readable span of a module
type Region struct {
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

func (r Region) End() ProcessMemoryAddress {
	return r.Base + ProcessMemoryAddress(r.Size)
}
