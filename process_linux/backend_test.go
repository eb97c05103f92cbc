//go:build linux

package process_linux

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"unsafe"

	"procsig/hijack"
	"procsig/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func selfHandle(t *testing.T, b *Backend) process.Handle {
	t.Helper()
	h, err := b.AcquireHandle(process.ProcessID(os.Getpid()))
	if err != nil {
		t.Skipf("pidfd unavailable: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestReadOwnMemory(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), true)
	h := selfHandle(t, b)

	data := []byte("signature scanning target bytes")
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&data[0])))

	got, err := b.ReadMemory(h, addr, process.ProcessMemorySize(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	runtime.KeepAlive(data)

	empty, err := b.ReadMemory(h, addr, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReadUnmapped(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), false)
	h := selfHandle(t, b)

	got, err := b.ReadMemory(h, 0x10, 16)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestReadClosedHandle(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), false)
	h := selfHandle(t, b)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := b.ReadMemory(h, 0x1000, 1)
	assert.ErrorIs(t, err, process.ErrHandleClosed)
}

func TestOwnModules(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), false)
	pid := process.ProcessID(os.Getpid())

	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	m, err := b.FindModule(pid, filepath.Base(exe))
	require.NoError(t, err)
	assert.NotZero(t, m.Base)
	assert.NotZero(t, m.Size)

	_, err = b.FindModule(pid, "definitely-not-loaded.so")
	assert.ErrorIs(t, err, process.ErrModuleNotFound)
}

func TestFindProcessIDSkipsSelf(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), false)

	_, err := b.FindProcessID("procsig-no-such-process")
	assert.ErrorIs(t, err, process.ErrProcessNotFound)

	exe, err := os.Executable()
	require.NoError(t, err)
	pid, err := b.FindProcessID(filepath.Base(exe))
	if err == nil {
		assert.NotEqual(t, process.ProcessID(os.Getpid()), pid)
	}
}

func TestReadExitedProcess(t *testing.T) {
	b := NewBackend(hijack.DefaultConfig(), false)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	h, err := b.AcquireHandle(process.ProcessID(cmd.Process.Pid))
	if err != nil {
		cmd.Wait()
		t.Skipf("pidfd unavailable: %v", err)
	}
	defer h.Close()

	require.NoError(t, cmd.Wait())

	got, err := b.ReadMemory(h, 0x400000, 8)
	assert.ErrorIs(t, err, unix.ESRCH)
	assert.Nil(t, got)
}
