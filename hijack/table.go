package hijack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"procsig/process"
)

// ErrTruncated is returned when a handle table snapshot is shorter than its header claims
var ErrTruncated = errors.New("handle table truncated")

// Layout selects the system information class used to snapshot the handle table
type Layout int

const (
	// LayoutExtended is SystemExtendedHandleInformation; owners and handle values are pointer sized
	LayoutExtended Layout = iota

	// LayoutLegacy is SystemHandleInformation; owners and handle values are 16 bits wide
	LayoutLegacy
)

const (
	infoClassLegacy   = 0x10
	infoClassExtended = 0x40
)

// InfoClass returns the SYSTEM_INFORMATION_CLASS value for the layout
func (l Layout) InfoClass() uint32 {
	if l == LayoutLegacy {
		return infoClassLegacy
	}
	return infoClassExtended
}

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "extended"
}

// ParseLayout accepts "extended" or "legacy"; the empty string selects extended
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extended":
		return LayoutExtended, nil
	case "legacy":
		return LayoutLegacy, nil
	}
	return 0, fmt.Errorf("unknown handle table layout %q", s)
}

// Entry is one row of the system-wide handle table
type Entry struct {
	Owner         process.ProcessID // process holding the handle
	Value         uintptr           // handle value inside Owner
	TypeCode      uint16            // object type index
	GrantedAccess uint32
}

// headerSize and entrySize follow the C layouts for the given pointer width.
func (l Layout) headerSize(ptrSize int) int {
	if l == LayoutLegacy {
		// ULONG NumberOfHandles, entries aligned to a pointer
		return ptrSize
	}
	// ULONG_PTR NumberOfHandles; ULONG_PTR Reserved
	return 2 * ptrSize
}

func (l Layout) entrySize(ptrSize int) int {
	if l == LayoutLegacy {
		// USHORT pid; USHORT backtrace; UCHAR type; UCHAR attrs; USHORT handle; PVOID object; ULONG access
		size := 8 + ptrSize + 4
		return (size + ptrSize - 1) / ptrSize * ptrSize
	}
	// PVOID object; ULONG_PTR pid; ULONG_PTR handle; ULONG access; USHORT backtrace; USHORT type; ULONG attrs; ULONG reserved
	return 3*ptrSize + 16
}

// ParseHandleTable decodes a snapshot produced with the given layout by a
// system whose pointers are ptrSize (4 or 8) bytes wide.
func ParseHandleTable(layout Layout, ptrSize int, buf []byte) ([]Entry, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", ptrSize)
	}

	header := layout.headerSize(ptrSize)
	if len(buf) < header {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}

	var count uint64
	if layout == LayoutLegacy {
		count = uint64(binary.LittleEndian.Uint32(buf))
	} else {
		count = readPtr(buf, ptrSize)
	}

	size := layout.entrySize(ptrSize)
	if count > uint64((len(buf)-header)/size) {
		return nil, fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrTruncated, count, len(buf))
	}

	entries := make([]Entry, 0, count)
	for i := 0; i < int(count); i++ {
		e := buf[header+i*size : header+(i+1)*size]

		if layout == LayoutLegacy {
			entries = append(entries, Entry{
				Owner:         process.ProcessID(binary.LittleEndian.Uint16(e[0:])),
				TypeCode:      uint16(e[4]),
				Value:         uintptr(binary.LittleEndian.Uint16(e[6:])),
				GrantedAccess: binary.LittleEndian.Uint32(e[8+ptrSize:]),
			})
			continue
		}

		entries = append(entries, Entry{
			Owner:         process.ProcessID(readPtr(e[ptrSize:], ptrSize)),
			Value:         uintptr(readPtr(e[2*ptrSize:], ptrSize)),
			GrantedAccess: binary.LittleEndian.Uint32(e[3*ptrSize:]),
			TypeCode:      binary.LittleEndian.Uint16(e[3*ptrSize+6:]),
		})
	}

	return entries, nil
}

func readPtr(b []byte, ptrSize int) uint64 {
	if ptrSize == 8 {
		return binary.LittleEndian.Uint64(b)
	}
	return uint64(binary.LittleEndian.Uint32(b))
}
