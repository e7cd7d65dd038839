// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"github.com/bswanson/cdb/internal/probe"
	"github.com/bswanson/cdb/internal/source"
)

// FirstKey begins a whole-file walk in insertion order and returns the
// first key, or ok == false if the file has no records.
//
// Iteration is not re-entrant on one Reader: starting a new walk while
// one is already in progress simply restarts it at the first key.
func (r *Reader) FirstKey() (key []byte, ok bool, err error) {
	if err := r.iterStart(); err != nil {
		return nil, false, translateErr(err)
	}
	_ = source.AdviseSequential(r.src)
	return r.iterKey()
}

// NextKey advances the walk FirstKey started and returns the following
// key. prevKey must equal the key most recently returned by FirstKey or
// NextKey -- calling it otherwise, or with no walk in progress, is a
// programmer error.
//
// When keys are exhausted, NextKey returns ok == false and rewinds the
// iterator's cursor to the first record so that a following sequence of
// Fetch calls for each previously-seen key can answer from the cursor
// instead of re-probing the index (§4.4).
func (r *Reader) NextKey(prevKey []byte) (key []byte, ok bool, err error) {
	if r.end == 0 || !equalKey(prevKey, r.curkey) {
		return nil, false, errIllegalNextKey
	}

	if err := r.iterAdvance(); err != nil {
		return nil, false, translateErr(err)
	}
	key, ok, err = r.iterKey()
	if err != nil {
		return nil, false, translateErr(err)
	}
	if ok {
		return key, true, nil
	}

	// keys exhausted: rewind and switch into draining mode so that a
	// following pass of Fetch calls can answer from the cursor.
	if err := r.iterStart(); err != nil {
		return nil, false, translateErr(err)
	}
	r.fetchAdvance = true
	if _, primed, err := r.iterKey(); err != nil {
		return nil, false, translateErr(err)
	} else if !primed {
		// an empty file was already handled by iterStart/iterKey
		// clearing end to 0; nothing further to drain.
		return nil, false, nil
	}
	return nil, false, nil
}

// fetchFromCursor answers a Fetch call whose key matches the iterator's
// current key, per the two interleavings in §4.4.
func (r *Reader) fetchFromCursor() ([]byte, bool, error) {
	value, err := r.readValueAt(r.curpos)
	if err != nil {
		return nil, false, translateErr(err)
	}

	if !r.fetchAdvance {
		// interleaved mode: first_key; fetch; next_key; fetch; ...
		// answers without perturbing the cursor.
		return value, true, nil
	}

	// draining mode: first_key; next_key; ...; fetch; fetch; ... each
	// fetch answers then advances, priming curkey for the next one.
	if err := r.iterAdvance(); err != nil {
		return nil, false, translateErr(err)
	}
	if _, ok, err := r.iterKey(); err != nil {
		return nil, false, translateErr(err)
	} else if !ok {
		r.iterEnd()
	}
	return value, true, nil
}

func (r *Reader) readValueAt(recordPos uint32) ([]byte, error) {
	klen, dlen, err := probe.ReadRecordHeader(r.src, recordPos)
	if err != nil {
		return nil, translateErr(err)
	}
	if !recordFitsBeforeEnd(recordPos, klen, dlen, r.end) {
		return nil, ErrMalformedFile
	}
	value := make([]byte, dlen)
	if err := r.src.ReadAt(value, int64(recordPos)+recordHdrSize+int64(klen)); err != nil {
		return nil, translateErr(err)
	}
	return value, nil
}

// recordFitsBeforeEnd reports whether a record header's claimed klen/dlen
// extent stays within the record region, computed at 64-bit width so a
// corrupted length pair can't wrap the 32-bit check around to a false
// positive (§6: reject a record whose header extends beyond end).
func recordFitsBeforeEnd(recordPos, klen, dlen, end uint32) bool {
	extent := uint64(recordPos) + uint64(recordHdrSize) + uint64(klen) + uint64(dlen)
	return extent <= uint64(end)
}

// iterStart implements iter_start: curpos = 2048; end is read from the
// header's first word, which always equals the end of the record region
// (see Reader.recordsEnd); curkey is cleared; fetchAdvance is cleared.
func (r *Reader) iterStart() error {
	end, err := r.recordsEnd()
	if err != nil {
		return err
	}
	r.curpos = headerSize
	r.end = end
	r.curkey = r.curkey[:0]
	r.fetchAdvance = false
	return nil
}

// iterKey implements iter_key: if curpos < end, read the key at curpos
// into curkey and return it; otherwise end iteration.
func (r *Reader) iterKey() ([]byte, bool, error) {
	if r.curpos >= r.end {
		r.iterEnd()
		return nil, false, nil
	}
	klen, dlen, err := probe.ReadRecordHeader(r.src, r.curpos)
	if err != nil {
		return nil, false, translateErr(err)
	}
	if !recordFitsBeforeEnd(r.curpos, klen, dlen, r.end) {
		return nil, false, ErrMalformedFile
	}
	if cap(r.curkey) < int(klen) {
		r.curkey = make([]byte, klen)
	} else {
		r.curkey = r.curkey[:klen]
	}
	if err := r.src.ReadAt(r.curkey, int64(r.curpos)+recordHdrSize); err != nil {
		return nil, false, translateErr(err)
	}
	return r.curkey, true, nil
}

// iterAdvance implements iter_advance: move curpos past the current
// record, rejecting a record whose claimed extent reaches past end (§6).
func (r *Reader) iterAdvance() error {
	klen, dlen, err := probe.ReadRecordHeader(r.src, r.curpos)
	if err != nil {
		return translateErr(err)
	}
	if !recordFitsBeforeEnd(r.curpos, klen, dlen, r.end) {
		return ErrMalformedFile
	}
	r.curpos += recordHdrSize + klen + dlen
	return nil
}

// iterEnd implements iter_end: mark iteration as no longer in progress
// and release curkey.
func (r *Reader) iterEnd() {
	r.end = 0
	r.curkey = nil
	r.fetchAdvance = false
	_ = source.AdviseRandom(r.src)
}
