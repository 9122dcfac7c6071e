// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pbzip2

import (
	"io"

	"github.com/cosnicolaou/pbzip2/internal/bzip2"
)

// NewSerialReader returns an io.Reader that decompresses bzip2 data from
// rd using a single goroutine: no magic-number scanning ahead of the
// decoder is needed since the blocks are decoded incrementally, in
// order, off the same bit reader that parses them. This trades the
// concurrency NewReader offers for lower overhead on small inputs and
// for streams whose block boundaries a concurrent Scanner cannot be
// set up for (e.g. truly streaming, non-seekable sources read one byte
// at a time).
func NewSerialReader(rd io.Reader, recordStats bool) io.Reader {
	if recordStats {
		return bzip2.NewReaderWithStats(rd)
	}
	return bzip2.NewReader(rd)
}

// SerialReaderStats returns the statistics gathered by a reader created
// with NewSerialReader(rd, true). It returns the zero Stats value for
// any other reader.
func SerialReaderStats(rd io.Reader) bzip2.Stats {
	return bzip2.StreamStats(rd)
}
