// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bswanson/cdb/internal/codec"
)

// memSource is a minimal in-memory source.Source for exercising the probe
// engine without going through a real file.
type memSource struct {
	buf []byte
}

var errOutOfBounds = errors.New("out of bounds")

func (m *memSource) Size() int64 { return int64(len(m.buf)) }

func (m *memSource) ReadAt(buf []byte, pos int64) error {
	if pos < 0 || pos > int64(len(m.buf)) || int64(len(m.buf))-pos < int64(len(buf)) {
		return errOutOfBounds
	}
	copy(buf, m.buf[pos:pos+int64(len(buf))])
	return nil
}

func (m *memSource) Close() error { return nil }

// buildSingleBucketFile hand-builds a minimal one-record, one-bucket CDB
// file: 2048-byte header, one record, one 2-slot table.
func buildSingleBucketFile(key, value []byte) []byte {
	recordPos := uint32(HeaderSize)
	record := make([]byte, 8+len(key)+len(value))
	codec.PutUint32(record[0:4], uint32(len(key)))
	codec.PutUint32(record[4:8], uint32(len(value)))
	copy(record[8:], key)
	copy(record[8+len(key):], value)

	h := codec.Hash(key)
	bucket := h & 0xFF
	slots := uint32(2)
	where := (h >> 8) % slots

	table := make([]byte, slots*8)
	codec.PutUint32(table[where*8:where*8+4], h)
	codec.PutUint32(table[where*8+4:where*8+8], recordPos)

	header := make([]byte, HeaderSize)
	codec.PutUint32(header[bucket*8:bucket*8+4], recordPos+uint32(len(record)))
	codec.PutUint32(header[bucket*8+4:bucket*8+8], slots)

	buf := append([]byte{}, header...)
	buf = append(buf, record...)
	buf = append(buf, table...)
	return buf
}

func TestCursorFindsInsertedKey(t *testing.T) {
	buf := buildSingleBucketFile([]byte("one"), []byte("Hello"))
	src := &memSource{buf: buf}

	var c Cursor
	c.Start()
	ok, err := c.Next(src, []byte("one"))
	require.NoError(t, err)
	require.True(t, ok)

	value := make([]byte, c.Dlen)
	require.NoError(t, src.ReadAt(value, int64(c.Dpos)))
	require.Equal(t, "Hello", string(value))
}

func TestCursorMissingKey(t *testing.T) {
	buf := buildSingleBucketFile([]byte("one"), []byte("Hello"))
	src := &memSource{buf: buf}

	var c Cursor
	c.Start()
	ok, err := c.Next(src, []byte("two"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorEmptyBucket(t *testing.T) {
	buf := make([]byte, HeaderSize)
	src := &memSource{buf: buf}

	var c Cursor
	c.Start()
	ok, err := c.Next(src, []byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
}
