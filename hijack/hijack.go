// Package hijack acquires a process handle by duplicating one that another
// process already holds, found through the system-wide handle table.
//
// The OS-specific pieces are supplied through Primitives so that the
// candidate scan, and its handle hygiene, are the same on every backend.
package hijack

import (
	"errors"
	"fmt"
	"unsafe"

	"procsig/growbuf"
	"procsig/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	// ErrUnavailable is returned when the platform cannot provide the primitives
	ErrUnavailable = errors.New("handle duplication unavailable")

	// ErrPrivilege is returned when the debug privilege could not be enabled
	ErrPrivilege = errors.New("debug privilege not enabled")

	// ErrNoMatch is returned when no table entry yielded a handle to the target
	ErrNoMatch = errors.New("no duplicable handle to target")
)

// DefaultProcessTypeCode is the object type index of process objects on
// current Windows 10 and 11 builds. It is not a stable value.
const DefaultProcessTypeCode = 7

const invalidHandleValue = ^uintptr(0)

// Primitives are the OS operations the scan is built from. Every
// process.Handle they return is owned by the caller.
type Primitives interface {
	EnableDebugPrivilege() error

	// QueryHandleTable fills buf with a handle table snapshot in the given
	// layout. It returns an error wrapping growbuf.ErrSizeMismatch when buf is
	// too small.
	QueryHandleTable(layout Layout, buf []byte) error

	SelfPID() process.ProcessID

	// OpenSelf opens a fresh handle to the calling process. It is used to find
	// the process object type code in the snapshot.
	OpenSelf() (process.Handle, error)

	// OpenForDuplicate opens owner with the right to duplicate its handles
	OpenForDuplicate(owner process.ProcessID) (process.Handle, error)

	// Duplicate copies value from owner into the calling process with read and
	// query rights. The returned handle's PID is the process it refers to.
	Duplicate(owner process.Handle, value uintptr) (process.Handle, error)
}

// Config holds the OS-internal constants the scan depends on
type Config struct {
	Layout          Layout
	PointerSize     int    // pointer width of the snapshot; 0 selects the native width
	ProcessTypeCode uint16 // expected object type index of process objects
	ProbeTypeCode   bool   // confirm ProcessTypeCode against a handle to ourselves
	RequiredAccess  uint32 // skip entries whose granted access lacks these bits
	InitialBuffer   int
	MaxBuffer       int
}

// DefaultConfig returns the configuration for the running platform
func DefaultConfig() Config {
	return Config{
		Layout:          LayoutExtended,
		PointerSize:     int(unsafe.Sizeof(uintptr(0))),
		ProcessTypeCode: DefaultProcessTypeCode,
		ProbeTypeCode:   true,
		InitialBuffer:   growbuf.DefaultInitial,
		MaxBuffer:       growbuf.DefaultLimit,
	}
}

// Stats describes the outcome of the last scan
type Stats struct {
	Entries    int
	Candidates int
	Rejected   int
	TypeCode   uint16
}

// Acquirer implements process.HandleAcquirer using handle duplication
type Acquirer struct {
	prims Primitives
	cfg   Config
	buf   *growbuf.Buffer
	log   *logger.Logger
	stats Stats
}

var _ process.HandleAcquirer = (*Acquirer)(nil)

// New creates an Acquirer. A nil prims yields an Acquirer that always
// reports ErrUnavailable.
func New(prims Primitives, cfg Config) *Acquirer {
	if cfg.PointerSize == 0 {
		cfg.PointerSize = int(unsafe.Sizeof(uintptr(0)))
	}
	return &Acquirer{
		prims: prims,
		cfg:   cfg,
		buf:   growbuf.New(cfg.InitialBuffer, cfg.MaxBuffer),
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "hijack")),
	}
}

func (a *Acquirer) Name() string {
	return "hijack"
}

// Stats returns counters from the most recent AcquireHandle call
func (a *Acquirer) Stats() Stats {
	return a.stats
}

// AcquireHandle scans the handle table for a process handle referring to pid
// and returns a duplicate of the first one found
func (a *Acquirer) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	a.stats = Stats{}

	if a.prims == nil {
		return nil, ErrUnavailable
	}

	if err := a.prims.EnableDebugPrivilege(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivilege, err)
	}

	entries, typeCode, err := a.snapshot()
	if err != nil {
		return nil, err
	}

	a.stats.Entries = len(entries)
	a.stats.TypeCode = typeCode

	self := a.prims.SelfPID()
	deniedOwners := make(map[process.ProcessID]bool)

	for _, e := range entries {
		if !a.isCandidate(e, typeCode, self) || deniedOwners[e.Owner] {
			continue
		}
		a.stats.Candidates++

		h, err := a.tryCandidate(e, pid, deniedOwners)
		if err != nil {
			a.log.Debugln("candidate", e.Owner, fmt.Sprintf("0x%X", e.Value), "rejected:", err)
			a.stats.Rejected++
			continue
		}
		if h == nil {
			a.stats.Rejected++
			continue
		}

		a.log.Infoln("duplicated handle", fmt.Sprintf("0x%X", e.Value), "from process", e.Owner, "for process", pid)
		return h, nil
	}

	a.log.Debugln("no handle to process", pid, "among", a.stats.Candidates, "candidates")
	return nil, ErrNoMatch
}

func (a *Acquirer) isCandidate(e Entry, typeCode uint16, self process.ProcessID) bool {
	if e.TypeCode != typeCode || e.Owner == self {
		return false
	}
	if e.Value == 0 || e.Value == invalidHandleValue {
		return false
	}
	if a.cfg.RequiredAccess != 0 && e.GrantedAccess&a.cfg.RequiredAccess != a.cfg.RequiredAccess {
		return false
	}
	return true
}

// tryCandidate returns the duplicated handle when it refers to target, nil
// when it refers elsewhere. The owner handle and any rejected duplicate are
// closed before it returns.
func (a *Acquirer) tryCandidate(e Entry, target process.ProcessID, deniedOwners map[process.ProcessID]bool) (process.Handle, error) {
	owner, err := a.prims.OpenForDuplicate(e.Owner)
	if err != nil {
		deniedOwners[e.Owner] = true
		return nil, fmt.Errorf("open owner: %w", err)
	}
	defer owner.Close()

	dup, err := a.prims.Duplicate(owner, e.Value)
	if err != nil {
		return nil, fmt.Errorf("duplicate: %w", err)
	}

	if dup.PID() != target {
		dup.Close()
		return nil, nil
	}

	return dup, nil
}

// snapshot takes the handle table and settles the process type code. The
// probe handle, when used, lives only for the duration of the snapshot.
func (a *Acquirer) snapshot() ([]Entry, uint16, error) {
	typeCode := a.cfg.ProcessTypeCode

	var probe process.Handle
	if a.cfg.ProbeTypeCode {
		h, err := a.prims.OpenSelf()
		if err != nil {
			a.log.Debugln("type code probe unavailable:", err)
		} else {
			probe = h
			defer probe.Close()
		}
	}

	buf, err := a.buf.Fill(func(b []byte) error {
		return a.prims.QueryHandleTable(a.cfg.Layout, b)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("query handle table: %w", err)
	}

	entries, err := ParseHandleTable(a.cfg.Layout, a.cfg.PointerSize, buf)
	if err != nil {
		return nil, 0, err
	}

	if probe != nil {
		if code, ok := findTypeCode(entries, a.prims.SelfPID(), probe.Value()); ok {
			if code != typeCode {
				a.log.Warn("process type code is ", code, ", configured ", typeCode)
			}
			typeCode = code
		}
	}

	return entries, typeCode, nil
}

func findTypeCode(entries []Entry, self process.ProcessID, value uintptr) (uint16, bool) {
	for _, e := range entries {
		if e.Owner == self && e.Value == value {
			return e.TypeCode, true
		}
	}
	return 0, false
}
