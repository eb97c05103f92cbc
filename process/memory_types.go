package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within the target process.
// It is never converted to a pointer in the local address space.
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add offsets the address by a signed amount
func (pma ProcessMemoryAddress) Add(offset int64) ProcessMemoryAddress {
	return ProcessMemoryAddress(int64(pma) + offset)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) is a compiled search pattern
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) == len(aob.Mask)
}

// Len returns the number of tokens in the pattern
func (aob AOB) Len() int {
	return len(aob.Pattern)
}

// IsWildcard reports whether token i matches any byte
func (aob AOB) IsWildcard(i int) bool {
	return aob.Mask[i] == 0
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ExactAOB builds a pattern without wildcards
func ExactAOB(pattern []byte) AOB {
	mask := make([]byte, len(pattern))
	for i := range mask {
		mask[i] = 0xFF
	}
	return AOB{Pattern: pattern, Mask: mask}
}
