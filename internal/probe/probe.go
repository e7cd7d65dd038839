// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package probe implements findstart/findnext (§4.3): the open-addressed
// lookup against one of the 256 per-bucket hash tables that sit after the
// record region.
package probe

import (
	"bytes"
	"fmt"

	"github.com/bswanson/cdb/internal/codec"
	"github.com/bswanson/cdb/internal/source"
)

const (
	// HeaderSize is the fixed 2048-byte region of 256 (table_pos,
	// table_slots) entries at the start of every CDB file.
	HeaderSize = 2048
	// recordHeaderSize is the 8-byte (klen, dlen) prefix of every record.
	recordHeaderSize = 8
	// slotSize is the 8-byte (hash, record_pos) layout of one table slot.
	slotSize = 8
	// compareChunk is the streaming key-comparison chunk size §4.3 step 2
	// mandates.
	compareChunk = 32
)

// Cursor carries the probe state of §3: hslots, hpos, khash, kpos, loop.
// A Cursor is reused across Next calls for multi-get (repeated probing
// without resetting loop).
type Cursor struct {
	hslots uint32
	hpos   uint32
	khash  uint32
	kpos   uint32
	loop   uint32

	// Dpos/Dlen are the last-found-record state: the offset and length
	// of the most recently located value.
	Dpos uint32
	Dlen uint32
}

// Start clears loop to 0, per §4.3 ("findstart(c) clears loop to 0").
func (c *Cursor) Start() {
	c.loop = 0
}

// Next advances the probe for key against src until it finds a match,
// exhausts the table, or hits a format error. ok is true iff a match was
// found, in which case Dpos/Dlen describe the located value.
func (c *Cursor) Next(src source.Source, key []byte) (ok bool, err error) {
	if c.loop == 0 {
		h := codec.Hash(key)
		var headerEntry [8]byte
		if err := src.ReadAt(headerEntry[:], int64(h&0xFF)<<3); err != nil {
			return false, err
		}
		c.hpos = codec.Uint32(headerEntry[:4])
		c.hslots = codec.Uint32(headerEntry[4:8])
		if c.hslots == 0 {
			return false, nil
		}
		c.khash = h
		c.kpos = c.hpos + (uint32((h>>8)%c.hslots))*slotSize
	}

	for c.loop < c.hslots {
		var slot [8]byte
		if err := src.ReadAt(slot[:], int64(c.kpos)); err != nil {
			return false, err
		}
		storedHash := codec.Uint32(slot[:4])
		recordPos := codec.Uint32(slot[4:8])
		if recordPos == 0 {
			return false, nil
		}

		c.loop++
		c.kpos += slotSize
		if c.kpos >= c.hpos+c.hslots*slotSize {
			c.kpos = c.hpos
		}

		if storedHash != c.khash {
			continue
		}

		var recHeader [recordHeaderSize]byte
		if err := src.ReadAt(recHeader[:], int64(recordPos)); err != nil {
			return false, err
		}
		klen := codec.Uint32(recHeader[:4])
		dlen := codec.Uint32(recHeader[4:8])
		if klen != uint32(len(key)) {
			continue
		}

		equal, err := compareKey(src, recordPos+recordHeaderSize, key)
		if err != nil {
			return false, err
		}
		if !equal {
			continue
		}

		c.Dpos = recordPos + recordHeaderSize + klen
		c.Dlen = dlen
		return true, nil
	}

	return false, nil
}

// compareKey streams the on-disk key at pos in compareChunk-sized chunks
// and compares it against key, per §4.3 step 2.
func compareKey(src source.Source, pos uint32, key []byte) (bool, error) {
	var buf [compareChunk]byte
	remaining := key
	off := pos
	for len(remaining) > 0 {
		n := len(remaining)
		if n > compareChunk {
			n = compareChunk
		}
		if err := src.ReadAt(buf[:n], int64(off)); err != nil {
			return false, err
		}
		if !bytes.Equal(buf[:n], remaining[:n]) {
			return false, nil
		}
		remaining = remaining[n:]
		off += uint32(n)
	}
	return true, nil
}

// ReadRecordHeader reads the (klen, dlen) pair at pos, used by the
// iterator to advance over a record without re-entering the probe engine.
func ReadRecordHeader(src source.Source, pos uint32) (klen, dlen uint32, err error) {
	var buf [recordHeaderSize]byte
	if err := src.ReadAt(buf[:], int64(pos)); err != nil {
		return 0, 0, err
	}
	return codec.Uint32(buf[:4]), codec.Uint32(buf[4:8]), nil
}

// ReadHeaderEntry reads the (table_pos, table_slots) pair for primary
// bucket i (0..255) directly out of the fixed header region.
func ReadHeaderEntry(src source.Source, i int) (tablePos, tableSlots uint32, err error) {
	if i < 0 || i >= 256 {
		return 0, 0, fmt.Errorf("cdb: bucket index %d out of range", i)
	}
	var buf [8]byte
	if err := src.ReadAt(buf[:], int64(i)<<3); err != nil {
		return 0, 0, err
	}
	return codec.Uint32(buf[:4]), codec.Uint32(buf[4:8]), nil
}
