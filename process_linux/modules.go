//go:build linux

package process_linux

import (
	"fmt"
	"strings"

	"procsig/process"
	"procsig/process/memory_map"
)

// listModules reads the current /proc/<pid>/maps and folds it into modules
func listModules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map of %d: %w", pid, err)
	}

	ranges := memory_map.Modules(mm)
	modules := make([]process.ModuleInfo, 0, len(ranges))
	for _, r := range ranges {
		modules = append(modules, process.ModuleInfo{
			Name: r.Name,
			Base: process.ProcessMemoryAddress(r.Address),
			Size: process.ProcessMemorySize(r.Size),
		})
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

// moduleRegions re-reads the maps and returns the readable runs of the
// module loaded at m.Base
func moduleRegions(pid process.ProcessID, m process.ModuleInfo) ([]process.Region, error) {
	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map of %d: %w", pid, err)
	}

	for _, r := range memory_map.Modules(mm) {
		if process.ProcessMemoryAddress(r.Address) != m.Base || !strings.EqualFold(r.Name, m.Name) {
			continue
		}
		regions := make([]process.Region, 0, len(r.Readable))
		for _, span := range r.Readable {
			regions = append(regions, process.Region{
				Base: process.ProcessMemoryAddress(span.Address),
				Size: process.ProcessMemorySize(span.Size),
			})
		}
		return regions, nil
	}

	return nil, fmt.Errorf("%w: %s", process.ErrModuleNotFound, m)
}
