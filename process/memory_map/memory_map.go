package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Path    string // Backing file, pseudo name such as "[heap]", or empty
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

// IsFileBacked reports whether the region maps a file
func (mmItem MemoryMapItem) IsFileBacked() bool {
	return strings.HasPrefix(mmItem.Path, "/")
}

// ModuleRange is the span covered by every mapping of one file
type ModuleRange struct {
	Name    string // basename of the backing file
	Path    string
	Address uint64
	Size    uint

	// Readable holds the readable mappings of the file, adjacent ones merged.
	// PROT_NONE padding between segments is left out.
	Readable []Span
}

// Span is a contiguous address range
type Span struct {
	Address uint64
	Size    uint
}

func (s Span) End() uint64 {
	return s.Address + uint64(s.Size)
}

// ParseMemoryMap parses the /proc/<pid>/maps text format
func ParseMemoryMap(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		// Parse address range (e.g., "00400000-0040b000")
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		// address perms offset dev inode [pathname]; the path may contain spaces
		path := ""
		if len(fields) >= 6 {
			path = strings.Join(fields[5:], " ")
		}

		memoryMap = append(memoryMap, MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
			Path:    path,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})

	return memoryMap, nil
}

// Modules groups file-backed mappings by path. Each module starts at its
// lowest mapping and ends at its highest, so its span may cover unreadable
// gaps; Readable lists what can actually be read. memoryMap must be in
// address order, as ParseMemoryMap returns it. Modules are returned in
// address order.
func Modules(memoryMap []MemoryMapItem) []ModuleRange {
	index := make(map[string]int)
	var modules []ModuleRange

	for _, item := range memoryMap {
		if !item.IsFileBacked() {
			continue
		}

		end := item.Address + uint64(item.Size)
		i, ok := index[item.Path]
		if !ok {
			i = len(modules)
			index[item.Path] = i
			modules = append(modules, ModuleRange{
				Name:    filepath.Base(item.Path),
				Path:    item.Path,
				Address: item.Address,
				Size:    item.Size,
			})
		}

		m := &modules[i]
		if item.Address < m.Address {
			m.Size += uint(m.Address - item.Address)
			m.Address = item.Address
		}
		if end > m.Address+uint64(m.Size) {
			m.Size = uint(end - m.Address)
		}

		if !item.IsReadable() {
			continue
		}
		if n := len(m.Readable); n > 0 && m.Readable[n-1].End() == item.Address {
			m.Readable[n-1].Size += item.Size
		} else {
			m.Readable = append(m.Readable, Span{Address: item.Address, Size: item.Size})
		}
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Address < modules[j].Address
	})

	return modules
}

// IsValidAddress checks if an address is within a mapped memory region
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// GetMemoryRegionForAddress returns the memory region containing an address.
// memoryMap must be sorted by address.
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].Address+uint64(memoryMap[i].Size) > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}
