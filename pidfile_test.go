package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapStalePID_NoFileIsANoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesyncd.pid")
	assert.NoError(t, reapStalePID(path))
}

func TestReapStalePID_RemovesPidOfDeadProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesyncd.pid")
	// A pid astronomically unlikely to be alive on any real system.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o600))

	require.NoError(t, reapStalePID(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReapStalePID_RemovesUnparseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesyncd.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o600))

	require.NoError(t, reapStalePID(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReapStalePID_RefusesWhenProcessIsAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesyncd.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))

	err := reapStalePID(path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "pid file of a live process must not be removed")
}

func TestWritePID_WritesCurrentProcessID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesyncd.pid")
	require.NoError(t, writePID(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
