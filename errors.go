// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"errors"
	"fmt"
	"io"

	"github.com/bswanson/cdb/internal/source"
)

var (
	// ErrMalformedFile is returned when a header or record reference
	// points outside the file, a record header at an iterator position
	// extends past the end of the record region, or a probed chain
	// reaches an impossibly sized table.
	ErrMalformedFile = errors.New("cdb: malformed file")

	// ErrUnexpectedEOF is returned when a read against a plain (non-mmap)
	// file comes up short of the bytes the format says should be there.
	ErrUnexpectedEOF = errors.New("cdb: unexpected EOF")

	// ErrOverflow is returned when 32-bit offset or size arithmetic
	// would exceed the format's ceiling.
	ErrOverflow = errors.New("cdb: overflow")

	// ErrWriteFailed is returned when a builder write is short.
	ErrWriteFailed = errors.New("cdb: short write")

	// ErrKeyTooBig is returned by Insert for a key or value whose length
	// cannot be represented in the format's 32-bit klen/dlen fields; such
	// a record would itself overflow the 32-bit offset space.
	ErrKeyTooBig = errors.New("cdb: key too big")

	// errIllegalNextKey is the programmer-error invariant violation of
	// §4.4: NextKey is illegal unless the supplied previous key equals
	// the iterator's current key and iteration is in progress.
	errIllegalNextKey = errors.New("cdb: NextKey called out of sequence")
)

// translateErr maps internal/source's error sentinels onto the package's
// exported error kinds (§7) at the boundary where probe/source calls
// return into the Reader's public methods. Errors that already carry
// platform context (the IoFailed kind) pass through unwrapped.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, source.ErrMalformed):
		return ErrMalformedFile
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrUnexpectedEOF, err)
	default:
		return err
	}
}
