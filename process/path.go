package process

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// PointerSize is the width of a pointer in the target process.
// Only 64-bit targets are supported.
const PointerSize = 8

// Read reads a single fixed-size value of type T from addr.
// T must be plain data: no pointers, slices, maps or strings.
func Read[T any](r AddressReader, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := r.ReadMemory(addr, size)
	if err != nil {
		return t, err
	}

	copyTo(&t, data)
	return t, nil
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}

// ReadPointer reads a target-process pointer at addr
func ReadPointer(r AddressReader, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	data, err := r.ReadMemory(addr, PointerSize)
	if err != nil {
		return 0, err
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
}

// ReadPath reads a value of type T at the end of a pointer path.
// It starts at base, adds the first offset, reads a pointer, adds the next offset, reads a pointer, etc.
// The last offset is added to the final pointer, and then T is read from that address.
// If offsets is empty, it reads T from base.
func ReadPath[T any](r AddressReader, base ProcessMemoryAddress, offsets ...ProcessMemorySize) (T, error) {
	var zero T
	currentAddr := base

	for i := 0; i < len(offsets)-1; i++ {
		ptrAddr := currentAddr + ProcessMemoryAddress(offsets[i])

		ptrVal, err := ReadPointer(r, ptrAddr)
		if err != nil {
			return zero, fmt.Errorf("failed to read pointer at offset %d (addr %s): %w", i, ptrAddr.ToString(), err)
		}

		if ptrVal == 0 {
			return zero, fmt.Errorf("pointer at offset %d (addr %s) is null: %w", i, ptrAddr.ToString(), ErrInvalidPointer)
		}

		currentAddr = ptrVal
	}

	finalOffset := ProcessMemorySize(0)
	if len(offsets) > 0 {
		finalOffset = offsets[len(offsets)-1]
	}

	finalAddr := currentAddr + ProcessMemoryAddress(finalOffset)

	val, err := Read[T](r, finalAddr)
	if err != nil {
		return zero, fmt.Errorf("failed to read final value at %s: %w", finalAddr.ToString(), err)
	}

	return val, nil
}

// ResolveRelative follows a RIP-relative operand. The signed 32-bit
// displacement stored at addr+displacement is added to the address of the
// next instruction, addr+length.
//
// For "48 8B 0D xx xx xx xx" (mov rcx, [rip+x]) displacement is 3 and length is 7.
func ResolveRelative(r AddressReader, addr ProcessMemoryAddress, displacement, length int64) (ProcessMemoryAddress, error) {
	disp, err := Read[int32](r, addr.Add(displacement))
	if err != nil {
		return 0, fmt.Errorf("failed to read displacement at %s: %w", addr.Add(displacement).ToString(), err)
	}
	return addr.Add(length + int64(disp)), nil
}
