// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, contents, 0644))
	return path
}

func TestFileSourceReadAt(t *testing.T) {
	path := writeTempFile(t, []byte("hello, world"))
	s, err := NewFileSource(path)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int64(12), s.Size())

	buf := make([]byte, 5)
	require.NoError(t, s.ReadAt(buf, 7))
	require.Equal(t, "world", string(buf))

	err = s.ReadAt(buf, 100)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestMmapSourceReadAt(t *testing.T) {
	path := writeTempFile(t, []byte("hello, world"))
	s, err := NewMmapSource(path)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int64(12), s.Size())

	buf := make([]byte, 5)
	require.NoError(t, s.ReadAt(buf, 0))
	require.Equal(t, "hello", string(buf))

	err = s.ReadAt(buf, 9)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestMmapAndFileSourceAgree(t *testing.T) {
	contents := []byte("agreement between both backends over the same bytes")
	path := writeTempFile(t, contents)

	fs, err := NewFileSource(path)
	require.NoError(t, err)
	defer fs.Close()

	ms, err := NewMmapSource(path)
	require.NoError(t, err)
	defer ms.Close()

	fbuf := make([]byte, 10)
	mbuf := make([]byte, 10)
	require.NoError(t, fs.ReadAt(fbuf, 5))
	require.NoError(t, ms.ReadAt(mbuf, 5))
	require.Equal(t, fbuf, mbuf)
}
