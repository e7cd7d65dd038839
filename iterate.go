// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import "fmt"

// Record is one (key, value) pair returned by Iterate.
type Record struct {
	Key   []byte
	Value []byte
}

// Iterate walks the whole file in insertion order and returns every
// record. It drives FirstKey/NextKey to completion first and then Fetch
// for each collected key -- the key-pass-then-value-pass interleaving of
// §4.4, so the value pass answers from the iterator's cursor instead of
// re-probing the index for each key.
func (r *Reader) Iterate() ([]Record, error) {
	var keys [][]byte
	key, ok, err := r.FirstKey()
	if err != nil {
		return nil, err
	}
	for ok {
		keys = append(keys, append([]byte(nil), key...))
		key, ok, err = r.NextKey(key)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		v, found, err := r.Fetch(k)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("cdb: iterate: key disappeared mid-walk (corrupted file?)")
		}
		out = append(out, Record{Key: k, Value: v})
	}
	return out, nil
}
