// Package search locates compiled AOB patterns inside byte buffers
package search

import (
	"procsig/process"
)

// First returns the offset of the first match of aob in data, or -1.
// An empty or malformed pattern never matches.
func First(data []byte, aob process.AOB) int {
	return next(data, aob, 0)
}

// All returns the offsets of every match of aob in data, overlapping
// matches included
func All(data []byte, aob process.AOB) []int {
	var matches []int
	for i := next(data, aob, 0); i >= 0; i = next(data, aob, i+1) {
		matches = append(matches, i)
	}
	return matches
}

// FirstAddress returns base plus the offset of the first match
func FirstAddress(data []byte, base process.ProcessMemoryAddress, aob process.AOB) (process.ProcessMemoryAddress, bool) {
	i := First(data, aob)
	if i < 0 {
		return 0, false
	}
	return base + process.ProcessMemoryAddress(i), true
}

func next(data []byte, aob process.AOB, from int) int {
	if aob.Len() == 0 || !aob.IsValid() || len(data) < aob.Len() {
		return -1
	}

	// Scan through the data byte by byte
	for i := from; i <= len(data)-len(aob.Pattern); i++ {
		if matchAt(data[i:], aob) {
			return i
		}
	}

	return -1
}

func matchAt(window []byte, aob process.AOB) bool {
	for j := 0; j < len(aob.Pattern); j++ {
		// mask 0 is a wildcard
		if aob.Mask[j] == 0 {
			continue
		}
		if window[j]&aob.Mask[j] != aob.Pattern[j]&aob.Mask[j] {
			return false
		}
	}
	return true
}
