// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"bufio"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bswanson/cdb/internal/hplist"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *safeBuffer) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(off)+len(p) > len(s.buf) {
		return 0, errors.New("writeAt out of bounds")
	}
	return copy(s.buf[off:int(off)+len(p)], p), nil
}

func (s *safeBuffer) Close() error { return nil }
func (s *safeBuffer) Sync() error  { return nil }

var _ FileWriter = &safeBuffer{}

type faultyWriter struct {
	inner      FileWriter
	failSync   bool
	failClose  bool
	failWriteN int // fail the Nth Write call (1-indexed); 0 disables
	writes     int
}

func (f *faultyWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.failWriteN != 0 && f.writes == f.failWriteN {
		return 0, errors.New("injected write failure")
	}
	return f.inner.Write(p)
}

func (f *faultyWriter) WriteAt(p []byte, off int64) (int, error) {
	return f.inner.WriteAt(p, off)
}

func (f *faultyWriter) Close() error {
	if f.failClose {
		return errors.New("injected close failure")
	}
	return f.inner.Close()
}

func (f *faultyWriter) Sync() error {
	if f.failSync {
		return errors.New("injected fsync failure")
	}
	return f.inner.Sync()
}

var _ FileWriter = &faultyWriter{}

// newFakeBuilder builds a Builder over an in-memory FileWriter, bypassing
// NewBuilder's real file creation, so Finish's patch/fsync/close sequence
// can be exercised against a fault-injecting fake without touching disk.
func newFakeBuilder(fw FileWriter) *Builder {
	b := &Builder{
		finalPath: "/fake/final.cdb",
		tempPath:  "/fake/final.cdb.tmp",
		f:         fw,
		w:         bufio.NewWriterSize(fw, defaultBufSize),
		pos:       headerSize,
		hp:        hplist.New(),
		logger:    slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		noRename:  true,
	}
	var zero [headerSize]byte
	_, _ = b.w.Write(zero[:])
	return b
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFinishSurfacesFsyncFailure(t *testing.T) {
	fw := &faultyWriter{inner: &safeBuffer{}, failSync: true}
	b := newFakeBuilder(fw)
	require.NoError(t, b.Insert([]byte("k"), []byte("v")))

	err := b.Finish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "fsync")
}

func TestFinishSurfacesCloseFailure(t *testing.T) {
	fw := &faultyWriter{inner: &safeBuffer{}, failClose: true}
	b := newFakeBuilder(fw)
	require.NoError(t, b.Insert([]byte("k"), []byte("v")))

	err := b.Finish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "close")
}

func TestFinishSurfacesFlushFailure(t *testing.T) {
	// bufio buffers every Insert and table-emit write; with a 4 MiB buffer
	// and only a few records, nothing reaches the underlying FileWriter until Finish's
	// final Flush, so failing the first real Write call exercises that
	// flush's error path.
	fw := &faultyWriter{inner: &safeBuffer{}, failWriteN: 1}
	b := newFakeBuilder(fw)
	require.NoError(t, b.Insert([]byte("k1"), []byte("v1")))
	require.NoError(t, b.Insert([]byte("k2"), []byte("v2")))

	err := b.Finish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "flush")
}

func TestInsertAfterFinishErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.cdb")
	b, err := NewBuilder(path)
	require.NoError(t, err)
	require.NoError(t, b.Insert([]byte("k"), []byte("v")))
	require.NoError(t, b.Finish())

	err = b.Insert([]byte("k2"), []byte("v2"))
	require.Error(t, err)
}

func TestFinishCalledTwiceErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.cdb")
	b, err := NewBuilder(path)
	require.NoError(t, err)
	require.NoError(t, b.Insert([]byte("k"), []byte("v")))
	require.NoError(t, b.Finish())

	require.Error(t, b.Finish())
}

func TestWithTempPathIsUsedVerbatim(t *testing.T) {
	dir := t.TempDir()
	finalPath := filepath.Join(dir, "final.cdb")
	tempPath := filepath.Join(dir, "scratch.tmp")

	b, err := NewBuilder(finalPath, WithTempPath(tempPath))
	require.NoError(t, err)
	require.NoError(t, b.Insert([]byte("k"), []byte("v")))
	require.NoError(t, b.Finish())

	r, err := Open(finalPath)
	require.NoError(t, err)
	defer r.Close()

	value, ok, err := r.Fetch([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(value))
}
