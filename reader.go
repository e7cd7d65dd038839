// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"fmt"

	"github.com/bswanson/cdb/internal/probe"
	"github.com/bswanson/cdb/internal/source"
)

// Stat summarizes a few header-derived facts about an open Reader, mainly
// useful for diagnostics and tests asserting the load-factor invariant.
type Stat struct {
	NumRecords  uint64
	RecordsSize int64
	TableSize   int64
}

// Reader provides point lookup, existence checks, multi-value lookup, and
// whole-file iteration over a published CDB file.
//
// A Reader is not safe for concurrent use: it owns mutable probe and
// iterator state (§3, §5). Multiple independent Readers may open the same
// file concurrently; the published file is immutable.
type Reader struct {
	src  source.Source
	size int64

	// iterator state (§3, §4.4): end == 0 iff no iteration is in
	// progress.
	end          uint32
	curpos       uint32
	curkey       []byte
	fetchAdvance bool
}

// Open opens path for reading. By default the file is memory-mapped; pass
// WithoutMmap to use plain file I/O instead.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	options := defaultReaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	var src source.Source
	var err error
	if options.useMmap {
		src, err = source.NewMmapSource(path)
	} else {
		src, err = source.NewFileSource(path)
	}
	if err != nil {
		return nil, err
	}

	if src.Size() < headerSize {
		_ = src.Close()
		return nil, fmt.Errorf("%w: file too short (%d < %d)", ErrMalformedFile, src.Size(), headerSize)
	}

	return &Reader{src: src, size: src.Size()}, nil
}

// Close releases the underlying file handle or mapping. Calling it while
// an Iterate-driven walk is in progress is safe; the iterator state is
// simply discarded.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Size returns the total size in bytes of the opened file.
func (r *Reader) Size() int64 {
	return r.size
}

// Stat returns a header-derived summary of the open file.
func (r *Reader) Stat() (Stat, error) {
	var numRecords uint64
	var tableBytes uint64
	for i := 0; i < numBuckets; i++ {
		_, slots, err := probe.ReadHeaderEntry(r.src, i)
		if err != nil {
			return Stat{}, translateErr(err)
		}
		numRecords += uint64(slots) / 2
		tableBytes += uint64(slots) * slotSize
	}
	recordsEnd, err := r.recordsEnd()
	if err != nil {
		return Stat{}, translateErr(err)
	}
	return Stat{
		NumRecords:  numRecords,
		RecordsSize: int64(recordsEnd) - headerSize,
		TableSize:   int64(tableBytes),
	}, nil
}

// recordsEnd returns the offset where the record region ends, using the
// same trick the iterator does: bucket 0's table_pos is always recorded,
// even when its table has zero slots, and tables are emitted in bucket
// order immediately after the records -- so it always equals the end of
// the record region.
func (r *Reader) recordsEnd() (uint32, error) {
	end, _, err := probe.ReadHeaderEntry(r.src, 0)
	return end, translateErr(err)
}

// Fetch returns the value of the first inserted record matching key, and
// whether one was found.
//
// If an iterator is active and key equals the iterator's current key,
// Fetch answers from the iterator's cursor instead of re-probing the
// index, per the caching coupling in §4.4; otherwise it performs a cold
// probe and leaves iterator state untouched.
func (r *Reader) Fetch(key []byte) ([]byte, bool, error) {
	if r.end != 0 && equalKey(key, r.curkey) {
		return r.fetchFromCursor()
	}

	var c probe.Cursor
	c.Start()
	ok, err := c.Next(r.src, key)
	if err != nil {
		return nil, false, translateErr(err)
	}
	if !ok {
		return nil, false, nil
	}
	value := make([]byte, c.Dlen)
	if err := r.src.ReadAt(value, int64(c.Dpos)); err != nil {
		return nil, false, translateErr(err)
	}
	return value, true, nil
}

// Exists reports whether key has at least one record, without copying out
// the value.
func (r *Reader) Exists(key []byte) (bool, error) {
	if r.end != 0 && equalKey(key, r.curkey) {
		return true, nil
	}
	var c probe.Cursor
	c.Start()
	ok, err := c.Next(r.src, key)
	if err != nil {
		return false, translateErr(err)
	}
	return ok, nil
}

// MultiFetch returns every value inserted under key, in insertion order.
// It does not interact with an in-progress iterator's cached cursor.
func (r *Reader) MultiFetch(key []byte) ([][]byte, error) {
	var c probe.Cursor
	c.Start()
	var values [][]byte
	for {
		ok, err := c.Next(r.src, key)
		if err != nil {
			return values, translateErr(err)
		}
		if !ok {
			return values, nil
		}
		value := make([]byte, c.Dlen)
		if err := r.src.ReadAt(value, int64(c.Dpos)); err != nil {
			return values, translateErr(err)
		}
		values = append(values, value)
	}
}

func equalKey(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
