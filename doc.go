// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cdb implements an immutable, on-disk associative store mapping
// byte-string keys to byte-string values: a Go-native constant database
// (CDB), built in one pass with Builder and queried by many concurrent
// Readers.
//
// A CDB file looks like:
//
//	┌────────────────────┐  0
//	│ 256-entry header    │  (table_pos, table_slots) pairs, 8 bytes each
//	├────────────────────┤  2048
//	│ records              │  (klen, dlen, key, data) tuples
//	│   ...                │
//	├────────────────────┤  varies
//	│ 256 hash tables      │  (hash, record_pos) slots, 8 bytes each
//	└────────────────────┘
//
// Every record begins with a fixed 8-byte header:
//
//	0    4    8
//	+----+----+----+...+----+...+
//	|klen|dlen|key...|data...   |
//	+----+----+----+...+----+...+
//
// klen and dlen are little-endian uint32s giving the length of the key and
// data that follow. A hash table slot, likewise 8 bytes, is
// (hash uint32, record_pos uint32); record_pos == 0 marks an empty slot.
// All integers in the format are unsigned 32-bit little-endian, regardless
// of host byte order.
//
// Build with NewBuilder, Insert zero or more records, and call Finish
// exactly once to publish the file atomically. Open a published file with
// Open and query it with Fetch, MultiFetch, Exists, and Iterate.
package cdb
