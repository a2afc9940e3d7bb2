package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestAcquireAndRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	pf := ForDir(dir)

	require.NoError(t, pf.Acquire())
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.Release())
	assert.NoFileExists(t, filepath.Join(dir, FileName))

	// Releasing twice is harmless.
	assert.NoError(t, pf.Release())
}

func TestAcquire_ReentrantForOwner(t *testing.T) {
	pf := ForDir(t.TempDir())
	require.NoError(t, pf.Acquire())
	assert.NoError(t, pf.Acquire())
}

func TestAcquire_LockedByLiveProcess(t *testing.T) {
	pf := ForDir(t.TempDir())
	// The parent process is alive for the duration of the test.
	require.NoError(t, pf.WritePID(os.Getppid()))

	err := pf.Acquire()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	assert.Error(t, pf.Release())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), pid)
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	pf := ForDir(t.TempDir())
	// Use a very high PID that almost certainly doesn't exist.
	require.NoError(t, pf.WritePID(999999))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestIsRunning_NoFile(t *testing.T) {
	pid, running := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid")).IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}
