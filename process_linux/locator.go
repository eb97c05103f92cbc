//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"

	"procsig/process"

	gprocess "github.com/shirou/gopsutil/v4/process"
)

// findProcessID returns the lowest pid whose name or executable basename is
// exactly name. The calling process is never returned.
func findProcessID(name string) (process.ProcessID, error) {
	procs, err := gprocess.Processes()
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	found := int32(-1)

	for _, p := range procs {
		if p.Pid == self || p.Pid <= 0 {
			continue
		}
		if found >= 0 && p.Pid > found {
			continue
		}
		if matchesName(p, name) {
			found = p.Pid
		}
	}

	if found < 0 {
		return 0, fmt.Errorf("%w: %s", process.ErrProcessNotFound, name)
	}
	return process.ProcessID(found), nil
}

func matchesName(p *gprocess.Process, name string) bool {
	if n, err := p.Name(); err == nil && n == name {
		return true
	}
	// the kernel truncates comm, so long names only match through exe
	if exe, err := p.Exe(); err == nil && filepath.Base(exe) == name {
		return true
	}
	return false
}
