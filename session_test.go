package tmin

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-tmin/oracle"
)

func TestWriteAtomicCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, writeAtomic(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteAtomicOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("old content here"), 0o644))
	require.NoError(t, writeAtomic(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCheckModeConsistency(t *testing.T) {
	assert.NoError(t, checkModeConsistency(Params{HangMode: true}, oracle.ModeHang))
	assert.Error(t, checkModeConsistency(Params{HangMode: true}, oracle.ModeCoverage))
	assert.Error(t, checkModeConsistency(Params{HangMode: false}, oracle.ModeHang))
	assert.NoError(t, checkModeConsistency(Params{}, oracle.ModeCoverage))
}

func TestErrorWrapping(t *testing.T) {
	inner := NewError("x", ErrCodeIO, "boom")
	wrapped := WrapError("y", ErrCodeInternal, inner)
	assert.Equal(t, ErrCodeIO, wrapped.Code, "wrapping a structured error preserves its code")
	assert.True(t, IsCode(wrapped, ErrCodeIO))
}

func TestWrapErrorMapsErrnoToCode(t *testing.T) {
	wrapped := WrapError("load input", ErrCodeInternal, syscall.ENOENT)
	assert.Equal(t, ErrCodeIO, wrapped.Code)
	assert.Equal(t, syscall.ENOENT, wrapped.Errno)

	wrapped = WrapError("exec", ErrCodeInternal, syscall.EINVAL)
	assert.Equal(t, ErrCodeUsage, wrapped.Code, "bad arguments should map to a usage error, not the caller's default")

	wrapped = WrapError("exec", ErrCodeInternal, syscall.ETIMEDOUT)
	assert.Equal(t, ErrCodeProtocol, wrapped.Code)
}

func TestStatsSnapshotSkewWarning(t *testing.T) {
	s := NewStats()
	s.TotalExecs.Store(60)
	s.MissedHangs.Store(10)
	snap := s.Snapshot()
	assert.True(t, snap.Skewed)
}

func TestStatsSnapshotNoWarningBelowThreshold(t *testing.T) {
	s := NewStats()
	s.TotalExecs.Store(10)
	s.MissedHangs.Store(5)
	snap := s.Snapshot()
	assert.False(t, snap.Skewed, "skew warning requires at least 50 executions")
}
