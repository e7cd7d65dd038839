// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package hplist implements the builder-side (hash, recordPos) chain: an
// append-only list of fixed-capacity blocks that preserves insertion
// order without the repeated copying a single growing slice would need
// once it gets large.
package hplist

// blockSize is the number of entries per block, per the format's design
// notes.
const blockSize = 1000

// Pair is one (hash, recordPos) entry.
type Pair struct {
	Hash      uint32
	RecordPos uint32
}

type block struct {
	entries [blockSize]Pair
	len     int
	next    *block
}

// List is an append-only chain of blocks holding Pairs in insertion order.
type List struct {
	head  *block
	tail  *block
	count uint64
}

// New returns an empty List.
func New() *List {
	b := &block{}
	return &List{head: b, tail: b}
}

// Append adds a pair to the end of the list, allocating a new block if the
// current tail is full.
func (l *List) Append(hash, recordPos uint32) {
	if l.tail.len == blockSize {
		nb := &block{}
		l.tail.next = nb
		l.tail = nb
	}
	b := l.tail
	b.entries[b.len] = Pair{Hash: hash, RecordPos: recordPos}
	b.len++
	l.count++
}

// Len returns the total number of entries appended.
func (l *List) Len() uint64 {
	return l.count
}

// Each walks the chain in insertion order, calling fn for every pair.
func (l *List) Each(fn func(Pair)) {
	for b := l.head; b != nil; b = b.next {
		for i := 0; i < b.len; i++ {
			fn(b.entries[i])
		}
	}
}

// DrainReversePerBlock walks the chain in the order finish's partition
// step (§4.6 step 3) requires: the chain is first relinked newest block
// first, then each block's own entries are visited from last to first, so
// pairs arrive in exact reverse insertion order. fn is called once per
// pair; after a block's entries have all been visited, the block is
// unlinked from the head of the list so it can be garbage collected
// before DrainReversePerBlock moves on to the next one, incrementally
// releasing the chain as it's consumed.
func (l *List) DrainReversePerBlock(fn func(Pair)) {
	var prev *block
	for b := l.head; b != nil; {
		next := b.next
		b.next = prev
		prev = b
		b = next
	}
	l.head = prev
	for l.head != nil {
		b := l.head
		for i := b.len - 1; i >= 0; i-- {
			fn(b.entries[i])
		}
		l.head = b.next
		b.next = nil
	}
	l.tail = nil
}
