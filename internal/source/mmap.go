// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// mmapSource implements Source over a read-only memory-mapped region, the
// way the teacher's datafile.NewMMapReaderWithPath opens its data file.
type mmapSource struct {
	data []byte
	size int64
}

// NewMmapSource opens path and maps it read-only into the process' address
// space, advising MADV_RANDOM for point lookups. AdviseSequential and
// AdviseRandom switch the hint while an iterator is walking the file.
func NewMmapSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, errors.New("cdb: cannot mmap an empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("cdb: mmap: %w", err)
	}

	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("cdb: madvise: %w", err)
	}

	return &mmapSource{data: data, size: size}, nil
}

func (s *mmapSource) Size() int64 { return s.size }

func (s *mmapSource) ReadAt(buf []byte, pos int64) error {
	// overflow-safe bounds check: pos+len(buf) <= size, computed without
	// letting pos+len(buf) overflow int64.
	if pos < 0 || pos > s.size || s.size-pos < int64(len(buf)) {
		return ErrMalformed
	}
	copy(buf, s.data[pos:pos+int64(len(buf))])
	return nil
}

func (s *mmapSource) Close() error {
	data := s.data
	s.data = nil
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

// AdviseSequential re-hints the mapping for the forward-only access
// pattern an active iterator exhibits; AdviseRandom restores the default
// hint once iteration ends. Both are no-ops on a non-mmap Source, and are
// best-effort even on a mapped one: a failure here does not affect
// correctness, only read-ahead behavior, so callers discard it rather than
// surface it as an error.
func AdviseSequential(s Source) error {
	m, ok := s.(*mmapSource)
	if !ok {
		return nil
	}
	return unix.Madvise(m.data, unix.MADV_SEQUENTIAL)
}

func AdviseRandom(s Source) error {
	m, ok := s.(*mmapSource)
	if !ok {
		return nil
	}
	return unix.Madvise(m.data, unix.MADV_RANDOM)
}

func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
