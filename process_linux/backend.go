//go:build linux

// Package process_linux is the Linux process.Backend. Processes are listed
// with gopsutil, modules come from /proc/<pid>/maps, handles are pidfds and
// reads go through process_vm_readv.
package process_linux

import (
	"procsig/access"
	"procsig/hijack"
	"procsig/process"
)

type Backend struct {
	access *access.Chain
}

var (
	_ process.Backend          = (*Backend)(nil)
	_ process.RegionEnumerator = (*Backend)(nil)
)

// NewBackend builds the backend. Handle duplication has no Linux
// counterpart, so when useHijack is set the first tier always falls through.
func NewBackend(cfg hijack.Config, useHijack bool) *Backend {
	var strategies []access.Strategy
	if useHijack {
		strategies = append(strategies, hijack.New(nil, cfg))
	}
	strategies = append(strategies, access.Func{Label: "pidfd", Acquire: openPidfd})

	return &Backend{access: access.NewChain(strategies...)}
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

func (b *Backend) ModuleRegions(pid process.ProcessID, m process.ModuleInfo) ([]process.Region, error) {
	return moduleRegions(pid, m)
}
