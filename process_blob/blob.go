// Package process_blob is an in-memory process.Backend. Processes and
// modules are registered from byte slices or files, which makes it usable
// for tests and for scanning module images offline.
package process_blob

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"procsig/process"
)

// Module is one registered module image
type Module struct {
	Name string
	Base process.ProcessMemoryAddress
	Data []byte
}

func (m Module) info() process.ModuleInfo {
	return process.ModuleInfo{Name: m.Name, Base: m.Base, Size: process.ProcessMemorySize(len(m.Data))}
}

// Image holds the processes and modules served by the backend
type Image struct {
	names     []string
	pids      map[string]process.ProcessID
	modules   map[process.ProcessID][]Module
	copyLimit int
	denied    map[process.ProcessID]bool
	guards    map[process.ProcessID][]process.Region
}

var (
	_ process.Backend          = (*Image)(nil)
	_ process.RegionEnumerator = (*Image)(nil)
)

func NewImage() *Image {
	return &Image{
		pids:    make(map[string]process.ProcessID),
		modules: make(map[process.ProcessID][]Module),
		denied:  make(map[process.ProcessID]bool),
		guards:  make(map[process.ProcessID][]process.Region),
	}
}

// AddProcess registers a process under its executable name
func (img *Image) AddProcess(name string, pid process.ProcessID) *Image {
	if _, ok := img.pids[name]; !ok {
		img.names = append(img.names, name)
	}
	img.pids[name] = pid
	return img
}

// AddModule maps data at base inside pid
func (img *Image) AddModule(pid process.ProcessID, name string, base process.ProcessMemoryAddress, data []byte) *Image {
	mods := append(img.modules[pid], Module{Name: name, Base: base, Data: data})
	sort.Slice(mods, func(i, j int) bool { return mods[i].Base < mods[j].Base })
	img.modules[pid] = mods
	return img
}

// LoadModuleFile maps the contents of path at base inside pid, named after the file
func (img *Image) LoadModuleFile(pid process.ProcessID, path string, base process.ProcessMemoryAddress) (process.ModuleInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return process.ModuleInfo{}, fmt.Errorf("failed to load module image: %w", err)
	}

	name := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		name = path[i+1:]
	}

	img.AddModule(pid, name, base, data)
	return process.ModuleInfo{Name: name, Base: base, Size: process.ProcessMemorySize(len(data))}, nil
}

// SetCopyLimit makes every read longer than n bytes copy only n bytes, the
// way a read spanning an unreadable page does. Zero disables the limit.
func (img *Image) SetCopyLimit(n int) {
	img.copyLimit = n
}

// Protect makes size bytes at addr unreadable, like PROT_NONE padding
// between the segments of a shared object. Reads stop at the first
// protected byte.
func (img *Image) Protect(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) *Image {
	guards := append(img.guards[pid], process.Region{Base: addr, Size: size})
	sort.Slice(guards, func(i, j int) bool { return guards[i].Base < guards[j].Base })
	img.guards[pid] = guards
	return img
}

// Deny makes AcquireHandle fail for pid
func (img *Image) Deny(pid process.ProcessID) {
	img.denied[pid] = true
}

func (img *Image) FindProcessID(name string) (process.ProcessID, error) {
	for _, n := range img.names {
		if n == name {
			return img.pids[n], nil
		}
	}
	return 0, fmt.Errorf("%w: %s", process.ErrProcessNotFound, name)
}

func (img *Image) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	if img.denied[pid] {
		return nil, fmt.Errorf("%w: access denied to process %d", process.ErrHandleUnavailable, pid)
	}
	if _, ok := img.modules[pid]; !ok && !img.hasPID(pid) {
		return nil, fmt.Errorf("%w: no process %d", process.ErrHandleUnavailable, pid)
	}
	return &Handle{pid: pid}, nil
}

func (img *Image) FindModule(pid process.ProcessID, name string) (process.ModuleInfo, error) {
	for _, m := range img.modules[pid] {
		if strings.EqualFold(m.Name, name) {
			return m.info(), nil
		}
	}
	return process.ModuleInfo{}, fmt.Errorf("%w: %s", process.ErrModuleNotFound, name)
}

func (img *Image) ListModules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	mods := img.modules[pid]
	result := make([]process.ModuleInfo, 0, len(mods))
	for _, m := range mods {
		result = append(result, m.info())
	}
	return result, nil
}

// ModuleRegions returns m with every protected range cut out
func (img *Image) ModuleRegions(pid process.ProcessID, m process.ModuleInfo) ([]process.Region, error) {
	var regions []process.Region
	at := m.Base
	for _, g := range img.guards[pid] {
		if g.End() <= at || g.Base >= m.End() {
			continue
		}
		if g.Base > at {
			regions = append(regions, process.Region{Base: at, Size: process.ProcessMemorySize(g.Base - at)})
		}
		at = g.End()
	}
	if at < m.End() {
		regions = append(regions, process.Region{Base: at, Size: process.ProcessMemorySize(m.End() - at)})
	}
	return regions, nil
}

// ReadMemory copies from the module containing addr. A read running past the
// end of that module is a partial read.
func (img *Image) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	bh, ok := h.(*Handle)
	if !ok || bh == nil {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	if bh.closed {
		return nil, process.ErrHandleClosed
	}
	if size == 0 {
		return []byte{}, nil
	}

	for _, m := range img.modules[bh.pid] {
		info := m.info()
		if !info.Contains(addr) {
			continue
		}

		off := int(addr - m.Base)
		available := len(m.Data) - off
		if img.copyLimit > 0 && available > img.copyLimit {
			available = img.copyLimit
		}
		for _, g := range img.guards[bh.pid] {
			if g.End() > addr && g.Base < addr+process.ProcessMemoryAddress(size) {
				available = min(available, int(max(g.Base, addr)-addr))
				break
			}
		}
		if uint64(available) < uint64(size) {
			return nil, fmt.Errorf("%w: %d of %d bytes at %s", process.ErrPartialRead, available, size, addr.ToString())
		}

		buf := make([]byte, size)
		copy(buf, m.Data[off:])
		return buf, nil
	}

	return nil, fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
}

func (img *Image) hasPID(pid process.ProcessID) bool {
	for _, p := range img.pids {
		if p == pid {
			return true
		}
	}
	return false
}

// Handle is the Image's process handle
type Handle struct {
	pid    process.ProcessID
	closed bool
}

func (h *Handle) PID() process.ProcessID { return h.pid }
func (h *Handle) Value() uintptr         { return uintptr(h.pid) }

func (h *Handle) Close() error {
	h.closed = true
	return nil
}

// Closed reports whether Close has been called
func (h *Handle) Closed() bool {
	return h.closed
}
