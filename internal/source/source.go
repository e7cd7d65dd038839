// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package source implements the reader's sole I/O primitive (§4.2): read
// len bytes at pos, either by copying out of a memory-mapped region or by
// seeking and reading a file descriptor, retrying on interrupted reads.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformed is returned when a read's bounds cannot be satisfied by the
// underlying file -- a header or record reference pointing outside the
// file, or a file shorter than the format requires.
var ErrMalformed = errors.New("cdb: malformed file")

// Source is the abstraction every probe, record, and iterator read in the
// reader goes through. Implementations must be safe for concurrent Read
// calls only insofar as the underlying medium is -- the reader itself is
// single-threaded per handle (see spec §5).
type Source interface {
	// ReadAt copies len(buf) bytes starting at pos into buf. It returns
	// ErrMalformed if pos+len(buf) is out of bounds, and
	// io.ErrUnexpectedEOF if fewer bytes were available than requested
	// from a non-mapped medium.
	ReadAt(buf []byte, pos int64) error
	// Size returns the total size of the underlying file.
	Size() int64
	// Close releases any resources (unmapping or closing the descriptor).
	Close() error
}

// fileSource implements Source over a seekable, retry-on-EINTR *os.File.
type fileSource struct {
	f    *os.File
	size int64
}

// NewFileSource opens path for reading without mapping it into memory.
func NewFileSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: fi.Size()}, nil
}

func (s *fileSource) Size() int64 { return s.size }

func (s *fileSource) ReadAt(buf []byte, pos int64) error {
	if pos < 0 || pos > s.size || s.size-pos < int64(len(buf)) {
		return ErrMalformed
	}
	n := 0
	for n < len(buf) {
		m, err := s.f.ReadAt(buf[n:], pos+int64(n))
		n += m
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, io.EOF) {
				if n == 0 {
					return ErrMalformed
				}
				return io.ErrUnexpectedEOF
			}
			if isEINTR(err) {
				continue
			}
			return fmt.Errorf("cdb: read: %w", err)
		}
		if m == 0 {
			// a zero-byte short read with no error is treated the
			// same as a malformed/truncated file (§7).
			return ErrMalformed
		}
	}
	return nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
