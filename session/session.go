// Package session ties the process components together around one target:
// it resolves the process once, owns the acquired handle, and exposes typed
// reads, module lookups and pattern scans against it.
//
// A Session is not safe for concurrent use.
package session

import (
	"fmt"

	"procsig/process"
	"procsig/search"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/google/uuid"
)

type Session struct {
	id      uuid.UUID
	backend process.Backend
	log     *logger.Logger

	pid    process.ProcessID
	handle process.Handle
}

var _ process.AddressReader = (*Session)(nil)

// New creates a session that has not yet been attached to a process
func New(backend process.Backend) *Session {
	return &Session{
		id:      uuid.New(),
		backend: backend,
		log:     logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "session-not-setup")),
	}
}

// ID identifies the session in logs and published payloads
func (s *Session) ID() uuid.UUID {
	return s.id
}

// PID returns the target process id, zero before Setup
func (s *Session) PID() process.ProcessID {
	return s.pid
}

// Setup locates the process named name and acquires a handle to it. A
// session is set up at most once; a failed Setup leaves it unchanged.
func (s *Session) Setup(name string) error {
	if s.handle != nil {
		return process.ErrAlreadySetup
	}

	pid, err := s.backend.FindProcessID(name)
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", name, err)
	}

	h, err := s.backend.AcquireHandle(pid)
	if err != nil {
		return fmt.Errorf("failed to acquire handle to %s (%d): %w", name, pid, err)
	}

	s.pid = pid
	s.handle = h
	s.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("session-%d", pid)))
	s.log.Infoln("attached to", name, "session", s.id)

	return nil
}

// Close releases the process handle. The session cannot be set up again.
func (s *Session) Close() error {
	if s.handle == nil {
		return nil
	}
	s.log.Infoln("closing handle")
	return s.handle.Close()
}

// ReadMemory reads exactly size bytes at addr or fails
func (s *Session) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if s.handle == nil {
		return nil, process.ErrNotSetup
	}
	return s.backend.ReadMemory(s.handle, addr, size)
}

// ReadT reads one fixed-size value of type T at addr
func ReadT[T any](s *Session, addr process.ProcessMemoryAddress) (T, error) {
	return process.Read[T](s, addr)
}

// GetModuleInfo looks the module up afresh on every call
func (s *Session) GetModuleInfo(name string) (process.ModuleInfo, error) {
	if s.handle == nil {
		return process.ModuleInfo{}, process.ErrNotSetup
	}
	return s.backend.FindModule(s.pid, name)
}

func (s *Session) ListModules() ([]process.ModuleInfo, error) {
	if s.handle == nil {
		return nil, process.ErrNotSetup
	}
	return s.backend.ListModules(s.pid)
}

// ModuleRegions returns the readable spans of info. Backends that cannot
// report gaps yield the whole module as one region.
func (s *Session) ModuleRegions(info process.ModuleInfo) ([]process.Region, error) {
	if s.handle == nil {
		return nil, process.ErrNotSetup
	}
	re, ok := s.backend.(process.RegionEnumerator)
	if !ok {
		return []process.Region{{Base: info.Base, Size: info.Size}}, nil
	}
	regions, err := re.ModuleRegions(s.pid, info)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions of %s: %w", info, err)
	}
	return regions, nil
}

// FindPattern reads the readable parts of module and returns the address of
// the first match of pattern within them
func (s *Session) FindPattern(module, pattern string) (process.ProcessMemoryAddress, error) {
	aob := process.ParseAOB(pattern)
	if aob.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", process.ErrEmptyPattern, pattern)
	}
	return s.FindAOB(module, aob)
}

// FindAOB is FindPattern for an already compiled pattern. Each region is
// read whole or the scan fails; a match never spans two regions.
func (s *Session) FindAOB(module string, aob process.AOB) (process.ProcessMemoryAddress, error) {
	if aob.Len() == 0 {
		return 0, process.ErrEmptyPattern
	}

	info, err := s.GetModuleInfo(module)
	if err != nil {
		return 0, err
	}

	regions, err := s.ModuleRegions(info)
	if err != nil {
		return 0, err
	}

	for _, r := range regions {
		data, err := s.ReadMemory(r.Base, r.Size)
		if err != nil {
			return 0, fmt.Errorf("failed to read module %s: %w", info, err)
		}

		if addr, ok := search.FirstAddress(data, r.Base, aob); ok {
			s.log.Debugln("pattern", aob.String(), "found at", addr.ToString())
			return addr, nil
		}
	}

	return 0, fmt.Errorf("%w: %s in %s", process.ErrPatternNotFound, aob, module)
}
