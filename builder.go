// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bswanson/cdb/internal/checked"
	"github.com/bswanson/cdb/internal/codec"
	"github.com/bswanson/cdb/internal/hplist"
	"github.com/bswanson/cdb/internal/probe"
)

const (
	numBuckets     = 256
	headerSize     = probe.HeaderSize
	recordHdrSize  = 8 // klen, dlen
	slotSize       = 8 // hash, record_pos
	defaultBufSize = 4 * 1024 * 1024
)

// FileWriter is usually an *os.File; specified as an interface so Finish's
// patch/fsync/close sequence can be exercised with a fault-injecting fake
// in tests.
type FileWriter interface {
	io.Writer
	io.WriterAt
	io.Closer
	Sync() error
}

// Builder collects (key, value) records and, on Finish, emits a single
// immutable CDB file atomically.
//
// A Builder is not safe for concurrent use: insert and finish it from one
// goroutine, per the single-threaded-per-handle model (§5).
type Builder struct {
	finalPath string
	tempPath  string
	f         FileWriter
	w         *bufio.Writer
	pos       uint32
	hp        *hplist.List
	logger    *slog.Logger
	finished  bool
	noRename  bool
}

// NewBuilder creates a Builder that will publish to finalPath once Finish
// is called. By default the builder writes to a temp file alongside
// finalPath and renames it into place; override with WithTempPath.
func NewBuilder(finalPath string, opts ...BuilderOption) (*Builder, error) {
	options := defaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	finalPath, err := filepath.Abs(finalPath)
	if err != nil {
		return nil, fmt.Errorf("cdb: filepath.Abs: %w", err)
	}

	var f *os.File
	tempPath := options.tempPath
	if tempPath == "" {
		dir := filepath.Dir(finalPath)
		f, err = os.CreateTemp(dir, "cdb-builder.*.tmp")
		if err != nil {
			return nil, fmt.Errorf("cdb: CreateTemp (dir %q): %w", dir, err)
		}
		tempPath = f.Name()
	} else {
		f, err = os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("cdb: open temp path %q: %w", tempPath, err)
		}
	}

	b := &Builder{
		finalPath: finalPath,
		tempPath:  tempPath,
		f:         f,
		w:         bufio.NewWriterSize(f, defaultBufSize),
		pos:       headerSize,
		hp:        hplist.New(),
		logger:    options.logger,
	}

	// reserve the 2048-byte header; it is patched with real values
	// during Finish, once every table's position and size is known.
	var zero [headerSize]byte
	if n, err := b.w.Write(zero[:]); err != nil || n != headerSize {
		_ = b.abort()
		if err != nil {
			return nil, fmt.Errorf("cdb: writing header placeholder: %w", err)
		}
		return nil, fmt.Errorf("%w: wrote %d of %d header bytes", ErrWriteFailed, n, headerSize)
	}

	return b, nil
}

// Insert adds a (key, value) record to the table. Duplicate keys are
// permitted: they are resolved at query time by insertion order (Fetch
// returns the first, MultiFetch returns all of them in order).
func (b *Builder) Insert(key, value []byte) error {
	if b.finished {
		return fmt.Errorf("cdb: Insert called after Finish")
	}

	klen64 := uint64(len(key))
	dlen64 := uint64(len(value))
	if klen64 > uint64(^uint32(0)) || dlen64 > uint64(^uint32(0)) {
		return ErrKeyTooBig
	}
	klen := uint32(klen64)
	dlen := uint32(dlen64)

	recordPos := b.pos

	var hdr [recordHdrSize]byte
	codec.PutUint32(hdr[:4], klen)
	codec.PutUint32(hdr[4:8], dlen)

	if n, err := b.w.Write(hdr[:]); err != nil || n != len(hdr) {
		return writeErr(n, len(hdr), err)
	}
	if n, err := b.w.Write(key); err != nil || n != len(key) {
		return writeErr(n, len(key), err)
	}
	if n, err := b.w.Write(value); err != nil || n != len(value) {
		return writeErr(n, len(value), err)
	}

	h := codec.Hash(key)
	b.hp.Append(h, recordPos)

	recordLen := uint64(recordHdrSize) + klen64 + dlen64
	newPos, err := checked.AddUint64ToUint32(b.pos, recordLen)
	if err != nil {
		return fmt.Errorf("%w: record at %d would overflow the 32-bit offset space", ErrOverflow, recordPos)
	}
	b.pos = newPos

	return nil
}

func writeErr(n, want int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, want)
}

// abort cleans up the temp file after a failure that happens before any
// data the caller might expect to survive has been written.
func (b *Builder) abort() error {
	_ = b.f.Close()
	return os.Remove(b.tempPath)
}

// Finish computes the 256 per-bucket hash tables, patches the header, and
// atomically publishes the file to its final path (§4.6). It must be
// called exactly once.
func (b *Builder) Finish() error {
	if b.finished {
		return fmt.Errorf("cdb: Finish called twice")
	}
	b.finished = true

	numEntries := b.hp.Len()
	if numEntries > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d entries exceeds the format's limit", ErrOverflow, numEntries)
	}

	b.logger.Debug("cdb: bucketizing", slog.Uint64("numEntries", numEntries))

	// step 1: bucketize
	var count [numBuckets]uint64
	b.hp.Each(func(p hplist.Pair) {
		count[p.Hash&0xFF]++
	})

	// step 2: size scratch, with the overflow check spec.md mandates
	// before allocating the partition array.
	maxBucket := uint64(0)
	for _, c := range count {
		if 2*c > maxBucket {
			maxBucket = 2 * c
		}
	}
	memsize := maxBucket + numEntries
	if memsize == 0 {
		memsize = 1
	}
	if memsize > uint64(^uint32(0))/uint64(slotSize) {
		return fmt.Errorf("%w: index scratch size %d overflows the format's 32-bit slot space", ErrOverflow, memsize)
	}

	b.logger.Debug("cdb: partitioning by bucket", slog.Uint64("numEntries", numEntries))

	// step 3: partition. start[i] is the inclusive prefix sum, used as a
	// moving "one past the end of bucket i" write pointer that is
	// decremented before each placement. DrainReversePerBlock yields pairs
	// in reverse insertion order, so each bucket ends up in insertion order.
	var start [numBuckets]uint64
	sum := uint64(0)
	for i := 0; i < numBuckets; i++ {
		sum += count[i]
		start[i] = sum
	}

	split := make([]hplist.Pair, numEntries)
	b.hp.DrainReversePerBlock(func(p hplist.Pair) {
		i := p.Hash & 0xFF
		start[i]--
		split[start[i]] = p
	})
	b.hp = nil // the chain has been fully consumed and released

	var header [headerSize]byte
	var tableBuf []byte

	// step 4: emit the 256 tables.
	for i := 0; i < numBuckets; i++ {
		bucketEntries := split[start[i] : start[i]+count[i]]
		slots := uint32(2 * count[i])

		codec.PutUint32(header[8*i:8*i+4], b.pos)
		codec.PutUint32(header[8*i+4:8*i+8], slots)

		if slots == 0 {
			continue
		}

		need := int(slots) * slotSize
		if cap(tableBuf) < need {
			tableBuf = make([]byte, need)
		}
		table := tableBuf[:need]
		for j := range table {
			table[j] = 0
		}

		for _, entry := range bucketEntries {
			where := (entry.Hash >> 8) % slots
			for {
				slotOff := where * slotSize
				if codec.Uint32(table[slotOff+4:slotOff+8]) == 0 {
					break
				}
				where = (where + 1) % slots
			}
			slotOff := where * slotSize
			codec.PutUint32(table[slotOff:slotOff+4], entry.Hash)
			codec.PutUint32(table[slotOff+4:slotOff+8], entry.RecordPos)
		}

		if n, err := b.w.Write(table); err != nil || n != len(table) {
			return writeErr(n, len(table), err)
		}

		newPos, err := checked.AddUint64ToUint32(b.pos, uint64(need))
		if err != nil {
			return fmt.Errorf("%w: hash table region would overflow the 32-bit offset space", ErrOverflow)
		}
		b.pos = newPos
	}

	b.logger.Debug("cdb: publishing")

	// step 5: flush, patch header, fsync, rename.
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("cdb: flush: %w", err)
	}
	if _, err := b.f.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("cdb: writing header: %w", err)
	}
	if err := b.f.Sync(); err != nil {
		return fmt.Errorf("cdb: fsync: %w", err)
	}
	if err := b.f.Close(); err != nil {
		return fmt.Errorf("cdb: close: %w", err)
	}
	if b.noRename {
		return nil
	}
	if err := os.Rename(b.tempPath, b.finalPath); err != nil {
		return fmt.Errorf("cdb: rename %q -> %q: %w", b.tempPath, b.finalPath, err)
	}

	return nil
}
