// Package process defines the types and interfaces shared by the process
// locator, handle acquirer, module enumerator, memory reader and pattern
// scanner, independent of the operating system backend.
package process

import "errors"

var (
	// ErrProcessNotFound is returned when no running process has the requested executable name.
	ErrProcessNotFound = errors.New("process not found")

	// ErrHandleUnavailable is returned when no acquisition strategy produced a handle.
	ErrHandleUnavailable = errors.New("process handle unavailable")

	// ErrHandleClosed is returned when a closed handle is used for a read.
	ErrHandleClosed = errors.New("process handle closed")

	// ErrModuleNotFound is returned when the target process has no module with the requested name.
	ErrModuleNotFound = errors.New("module not found")

	// ErrPartialRead is returned when the OS copied fewer bytes than requested.
	// No partial buffer accompanies it.
	ErrPartialRead = errors.New("partial read")

	ErrPatternNotFound = errors.New("pattern not found")
	ErrEmptyPattern    = errors.New("empty pattern")

	// ErrNotSetup is returned by session operations before a process has been attached.
	ErrNotSetup = errors.New("session not set up")

	// ErrAlreadySetup is returned when a session is attached a second time.
	ErrAlreadySetup = errors.New("session already set up")

	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	ErrInvalidPointer = errors.New("invalid pointer read")
)
