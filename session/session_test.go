package session

import (
	"encoding/binary"
	"errors"
	"testing"

	"procsig/access"
	"procsig/hijack"
	"procsig/process"
	"procsig/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const moduleBase = process.ProcessMemoryAddress(0x7FF600000000)

func moduleBytes() []byte {
	data := make([]byte, 0x100)
	copy(data[0x20:], []byte{0x48, 0x8B, 0x05, 0x10, 0x20, 0x30, 0x40, 0xC3})
	copy(data[0x80:], []byte{0x48, 0x8B, 0x05, 0xAA, 0xBB, 0xCC, 0xDD, 0xC3})
	binary.LittleEndian.PutUint32(data[0x40:], 0xDEADBEEF)
	return data
}

func newBlob() *process_blob.Image {
	return process_blob.NewImage().
		AddProcess("target.exe", 4242).
		AddModule(4242, "client.dll", moduleBase, moduleBytes())
}

func setupSession(t *testing.T, img *process_blob.Image) *Session {
	t.Helper()
	s := New(img)
	require.NoError(t, s.Setup("target.exe"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetup(t *testing.T) {
	s := New(newBlob())
	assert.Equal(t, process.ProcessID(0), s.PID())

	require.NoError(t, s.Setup("target.exe"))
	assert.Equal(t, process.ProcessID(4242), s.PID())

	err := s.Setup("target.exe")
	assert.ErrorIs(t, err, process.ErrAlreadySetup)
}

func TestSetupFailures(t *testing.T) {
	img := newBlob()

	s := New(img)
	err := s.Setup("missing.exe")
	assert.ErrorIs(t, err, process.ErrProcessNotFound)
	assert.Equal(t, process.ProcessID(0), s.PID())

	img.Deny(4242)
	err = s.Setup("target.exe")
	assert.ErrorIs(t, err, process.ErrHandleUnavailable)

	_, err = s.ReadMemory(moduleBase, 4)
	assert.ErrorIs(t, err, process.ErrNotSetup)
	_, err = s.GetModuleInfo("client.dll")
	assert.ErrorIs(t, err, process.ErrNotSetup)
	_, err = s.FindPattern("client.dll", "48 8B")
	assert.ErrorIs(t, err, process.ErrNotSetup)
}

func TestFindPattern(t *testing.T) {
	s := setupSession(t, newBlob())

	addr, err := s.FindPattern("client.dll", "48 8B 05 ? ? ? ? C3")
	require.NoError(t, err)
	assert.Equal(t, moduleBase+0x20, addr)

	addr, err = s.FindPattern("CLIENT.DLL", "48 8B 05 AA ?? CC")
	require.NoError(t, err)
	assert.Equal(t, moduleBase+0x80, addr)

	_, err = s.FindPattern("client.dll", "48 8B 05 99")
	assert.ErrorIs(t, err, process.ErrPatternNotFound)

	_, err = s.FindPattern("client.dll", "   ")
	assert.ErrorIs(t, err, process.ErrEmptyPattern)

	_, err = s.FindPattern("server.dll", "48")
	assert.ErrorIs(t, err, process.ErrModuleNotFound)
}

func TestFindPatternReadFailure(t *testing.T) {
	img := newBlob()
	s := setupSession(t, img)

	img.SetCopyLimit(0x10)
	_, err := s.FindPattern("client.dll", "48 8B 05")
	assert.ErrorIs(t, err, process.ErrPartialRead)
}

func TestFindPatternAcrossProtectedGap(t *testing.T) {
	img := newBlob().Protect(4242, moduleBase+0x30, 0x40)
	s := setupSession(t, img)

	_, err := s.ReadMemory(moduleBase, 0x100)
	require.ErrorIs(t, err, process.ErrPartialRead)

	info, err := s.GetModuleInfo("client.dll")
	require.NoError(t, err)
	regions, err := s.ModuleRegions(info)
	require.NoError(t, err)
	assert.Equal(t, []process.Region{
		{Base: moduleBase, Size: 0x30},
		{Base: moduleBase + 0x70, Size: 0x90},
	}, regions)

	addr, err := s.FindPattern("client.dll", "48 8B 05 10")
	require.NoError(t, err)
	assert.Equal(t, moduleBase+0x20, addr)

	addr, err = s.FindPattern("client.dll", "48 8B 05 AA ? CC")
	require.NoError(t, err)
	assert.Equal(t, moduleBase+0x80, addr)

	// only present inside the protected range
	_, err = s.FindPattern("client.dll", "EF BE AD DE")
	assert.ErrorIs(t, err, process.ErrPatternNotFound)
}

func TestReadT(t *testing.T) {
	img := newBlob()
	s := setupSession(t, img)

	v, err := ReadT[uint32](s, moduleBase+0x40)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)

	type pair struct {
		A uint16
		B uint16
	}
	p, err := ReadT[pair](s, moduleBase+0x40)
	require.NoError(t, err)
	assert.Equal(t, pair{A: 0xBEEF, B: 0xDEAD}, p)

	_, err = ReadT[uint64](s, moduleBase+0xFC)
	assert.ErrorIs(t, err, process.ErrPartialRead)

	img.SetCopyLimit(2)
	_, err = ReadT[uint32](s, moduleBase+0x40)
	assert.ErrorIs(t, err, process.ErrPartialRead)
}

func TestReadMemoryAtomic(t *testing.T) {
	s := setupSession(t, newBlob())

	data, err := s.ReadMemory(moduleBase+0xF0, 0x20)
	assert.ErrorIs(t, err, process.ErrPartialRead)
	assert.Nil(t, data)

	data, err = s.ReadMemory(moduleBase+0xF0, 0x10)
	require.NoError(t, err)
	assert.Len(t, data, 0x10)
}

func TestGetModuleInfo(t *testing.T) {
	img := newBlob()
	s := setupSession(t, img)

	info, err := s.GetModuleInfo("client.dll")
	require.NoError(t, err)
	assert.Equal(t, moduleBase, info.Base)
	assert.Equal(t, process.ProcessMemorySize(0x100), info.Size)

	img.AddModule(4242, "late.dll", 0x1000, []byte{1})
	info, err = s.GetModuleInfo("late.dll")
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x1000), info.Base)

	mods, err := s.ListModules()
	require.NoError(t, err)
	assert.Len(t, mods, 2)
}

func TestClose(t *testing.T) {
	s := New(newBlob())
	require.NoError(t, s.Close())

	require.NoError(t, s.Setup("target.exe"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.ReadMemory(moduleBase, 1)
	assert.ErrorIs(t, err, process.ErrHandleClosed)
	assert.ErrorIs(t, s.Setup("target.exe"), process.ErrAlreadySetup)
}

// chained acquires through an access.Chain the way the OS backends do
type chained struct {
	*process_blob.Image
	chain *access.Chain
}

func (c chained) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	return c.chain.AcquireHandle(pid)
}

func TestSetupFallsBackToOpen(t *testing.T) {
	img := newBlob()
	opened := 0
	backend := chained{
		Image: img,
		chain: access.NewChain(
			hijack.New(nil, hijack.DefaultConfig()),
			access.Func{Label: "open", Acquire: func(pid process.ProcessID) (process.Handle, error) {
				opened++
				return img.AcquireHandle(pid)
			}},
		),
	}

	s := New(backend)
	require.NoError(t, s.Setup("target.exe"))
	defer s.Close()
	assert.Equal(t, 1, opened)

	addr, err := s.FindPattern("client.dll", "48 8B 05 10")
	require.NoError(t, err)
	assert.Equal(t, moduleBase+0x20, addr)
}

func TestSetupBothTiersFail(t *testing.T) {
	img := newBlob()
	backend := chained{
		Image: img,
		chain: access.NewChain(
			hijack.New(nil, hijack.DefaultConfig()),
			access.Func{Label: "open", Acquire: func(pid process.ProcessID) (process.Handle, error) {
				return nil, errors.New("access denied")
			}},
		),
	}

	s := New(backend)
	err := s.Setup("target.exe")
	assert.ErrorIs(t, err, process.ErrHandleUnavailable)
	assert.ErrorIs(t, err, hijack.ErrUnavailable)
}
