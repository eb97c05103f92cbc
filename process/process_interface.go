package process

// ProcessLocator resolves an executable name to a process identifier
type ProcessLocator interface {
	// FindProcessID returns the first process whose executable file name
	// equals name exactly (case-sensitive)
	FindProcessID(name string) (ProcessID, error)
}

// HandleAcquirer obtains a read/query handle to a process
type HandleAcquirer interface {
	AcquireHandle(pid ProcessID) (Handle, error)
}

// ModuleEnumerator resolves module names inside a process.
// Implementations re-enumerate on every call.
type ModuleEnumerator interface {
	// FindModule returns the first module whose file name equals name,
	// ignoring case
	FindModule(pid ProcessID, name string) (ModuleInfo, error)

	// ListModules returns every module loaded in the process
	ListModules(pid ProcessID) ([]ModuleInfo, error)
}

// MemoryReader copies memory out of a process
type MemoryReader interface {
	// ReadMemory returns exactly size bytes starting at addr, or an error.
	// A short copy is reported as ErrPartialRead, never as a shorter slice.
	ReadMemory(h Handle, addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// Backend bundles the OS-specific components a session needs
type Backend interface {
	ProcessLocator
	HandleAcquirer
	ModuleEnumerator
	MemoryReader
}

// AddressReader reads from an already attached process
type AddressReader interface {
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// RegionEnumerator is implemented by backends whose modules can contain
// unreadable gaps between segments
type RegionEnumerator interface {
	// ModuleRegions returns the readable spans of m in address order
	ModuleRegions(pid ProcessID, m ModuleInfo) ([]Region, error)
}
