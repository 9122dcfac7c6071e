// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bzip2

// mtfDecoder holds the state needed to decode move-to-front (MTF) indices
// into the original symbol set. Symbols are kept in a flat slice, ordered
// most-recently-used first; decoding a rank promotes it to the front.
//
// bzip2 alphabets top out at 256 symbols so a linear promote is cheap in
// practice; this trades the amortized O(sqrt n) sliding-window structure
// bzip2 reference decoders use for a simpler, fixed-bound-cost one (see
// DESIGN.md).
type mtfDecoder struct {
	symbols []byte
}

// newMTFDecoder creates a move-to-front decoder from an initial list of
// symbols. The list is consumed front-to-back, i.e. symbols[0] has rank 0.
func newMTFDecoder(symbols []byte) *mtfDecoder {
	m := &mtfDecoder{symbols: make([]byte, len(symbols))}
	copy(m.symbols, symbols)
	return m
}

// newMTFDecoderWithRange creates a move-to-front decoder for the implicit
// alphabet {0, 1, ..., n-1}, used to decode the selector MTF values.
func newMTFDecoderWithRange(n int) *mtfDecoder {
	m := &mtfDecoder{symbols: make([]byte, n)}
	for i := range m.symbols {
		m.symbols[i] = byte(i)
	}
	return m
}

// First returns the symbol currently at rank 0 without altering the list.
func (m *mtfDecoder) First() byte {
	return m.symbols[0]
}

// Decode returns the symbol at the given rank and promotes it to rank 0.
func (m *mtfDecoder) Decode(rank int) byte {
	v := m.symbols[rank]
	copy(m.symbols[1:rank+1], m.symbols[:rank])
	m.symbols[0] = v
	return v
}
