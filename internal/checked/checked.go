// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package checked implements overflow-checked arithmetic over the 32-bit
// offset and size space the CDB wire format is bound to. The format
// requires failing fast (with Overflow) rather than silently wrapping.
package checked

import (
	"errors"
	"math/bits"
)

// ErrOverflow is returned by every function in this package when the
// operation would not fit in the target width.
var ErrOverflow = errors.New("overflow")

// AddUint32 returns a+b, or ErrOverflow if the sum does not fit in 32 bits.
func AddUint32(a, b uint32) (uint32, error) {
	sum, carry := bits.Add32(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// MulUint32 returns a*b, or ErrOverflow if the product does not fit in 32 bits.
func MulUint32(a, b uint32) (uint32, error) {
	hi, lo := bits.Mul32(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// AddUint64ToUint32 returns a+b as a uint32, or ErrOverflow if a+b does not
// fit in 32 bits. b is a uint64 because callers often accumulate running
// totals at wider width before checking them against the format's 32-bit
// ceiling.
func AddUint64ToUint32(a uint32, b uint64) (uint32, error) {
	sum := uint64(a) + b
	if sum > uint64(^uint32(0)) {
		return 0, ErrOverflow
	}
	return uint32(sum), nil
}
