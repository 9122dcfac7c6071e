// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"fmt"

	"github.com/cosnicolaou/pbzip2/internal/bwt"
	"github.com/cosnicolaou/pbzip2/internal/mtf"
	"github.com/cosnicolaou/pbzip2/internal/prefixenc"
	"github.com/cosnicolaou/pbzip2/internal/rle1"
)

// groupSize is the number of MTF/RUNA/RUNB symbols covered by a single
// selector entry; the Huffman tree in use can change every groupSize
// symbols.
const groupSize = 50

// blockSlack is subtracted from a block's nominal capacity (level*100000)
// before Collect stops accepting input. A single RLE1 write can grow the
// encoded stream by more than one byte at a time (a closed 255-byte run
// emits a literal plus a count byte, and Flush may still add a trailing
// count byte), and the decoder allocates its work buffer at exactly
// level*100000 with no headroom, so Collect must stop short of that
// boundary rather than at it.
const blockSlack = 20

// EncoderOption configures a BlockEncoder.
type EncoderOption func(*BlockEncoder)

// ShallowFactor sets the per-byte comparison budget used by the BWT
// bucketed quicksort path before it falls back to the direct sort; see
// internal/bwt.
func ShallowFactor(n int) EncoderOption {
	return func(e *BlockEncoder) { e.shallowFactor = n }
}

// ClusterFactor sets the number of expectation/maximization rounds used
// to assign groups to prefix codebooks; see internal/prefixenc.
func ClusterFactor(n int) EncoderOption {
	return func(e *BlockEncoder) { e.clusterFactor = n }
}

// BlockEncoder accumulates a single bzip2 block's worth of input, then
// runs the RLE1 -> BWT -> MTF/RLE2 -> prefix coding pipeline to produce
// its compressed, bit-packed form.
type BlockEncoder struct {
	maxRaw        int // capacity of the RLE1-encoded stream, in bytes
	shallowFactor int
	clusterFactor int

	rle       *rle1.Encoder
	crc       crc
	collected int

	// populated by Encode:
	origPtr  int
	alphabet []byte
	selector []uint8
	codebook []prefixenc.Codebook
	groups   [][]uint16 // body symbols partitioned by codebook group
	encoded  bool
}

// NewBlockEncoder returns a BlockEncoder whose RLE1-encoded stream is
// capped at level*100000 bytes, mirroring the bzip2 -1..-9 block size
// levels.
func NewBlockEncoder(level int, opts ...EncoderOption) *BlockEncoder {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	e := &BlockEncoder{
		maxRaw:        level * 100000,
		shallowFactor: bwt.DefaultShallowFactor,
		clusterFactor: prefixenc.DefaultClusterFactor,
		rle:           rle1.NewEncoder(),
	}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

// Collect feeds p through the block's RLE1 encoder, stopping as soon as
// the encoded stream reaches its capacity. It returns the number of
// bytes of p actually consumed and whether the block is now full; a
// full block must be Encode()d and Transmit()ed before more data can be
// collected (on a fresh BlockEncoder).
func (e *BlockEncoder) Collect(p []byte) (consumed int, full bool) {
	limit := e.maxRaw - blockSlack
	for i := range p {
		if len(e.rle.Bytes()) >= limit {
			return i, true
		}
		e.rle.Write(p[i : i+1])
		e.crc.update(p[i : i+1])
		consumed = i + 1
		e.collected++
	}
	return consumed, len(e.rle.Bytes()) >= limit
}

// Empty reports whether any bytes have been collected.
func (e *BlockEncoder) Empty() bool {
	return e.collected == 0
}

// CRC returns the block's CRC-32 over its original, uncompressed bytes.
// It is only valid after Collect has been called.
func (e *BlockEncoder) CRC() uint32 {
	return e.crc.val
}

// Encode runs the BWT/MTF/prefix-coding pipeline over the collected
// data. It must be called exactly once, after the last Collect call for
// this block and before Transmit.
func (e *BlockEncoder) Encode() error {
	e.rle.Flush()
	raw := e.rle.Bytes()
	if len(raw) == 0 {
		return fmt.Errorf("bzip2: cannot encode an empty block")
	}

	res := bwt.Forward(raw, e.shallowFactor)
	e.origPtr = res.Ptr

	var present [256]bool
	for _, b := range raw {
		present[b] = true
	}
	alphabet := make([]byte, 0, 256)
	for i, ok := range present {
		if ok {
			alphabet = append(alphabet, byte(i))
		}
	}
	e.alphabet = alphabet

	body := mtf.Forward(raw, alphabet)
	eof := uint16(len(alphabet) + 1)
	body = append(body, eof)
	alphaSize := len(alphabet) + 2

	groups := make([][]uint16, 0, (len(body)+groupSize-1)/groupSize)
	for i := 0; i < len(body); i += groupSize {
		end := i + groupSize
		if end > len(body) {
			end = len(body)
		}
		groups = append(groups, body[i:end])
	}
	e.groups = groups

	freqGroups := make([]prefixenc.Group, len(groups))
	for i, g := range groups {
		f := make([]int, alphaSize)
		for _, s := range g {
			f[s]++
		}
		freqGroups[i] = prefixenc.Group{Freqs: f}
	}

	numCodebooks := prefixenc.NumCodebooks(len(body))
	selector, codebook := prefixenc.Cluster(freqGroups, alphaSize, numCodebooks, e.clusterFactor)
	if len(codebook) == 1 {
		// The wire format requires at least two Huffman trees even when
		// only one is ever selected.
		codebook = append(codebook, codebook[0])
	}
	e.selector = selector
	e.codebook = codebook
	e.encoded = true
	return nil
}

// Transmit writes this block's magic number, CRC, and bit-packed body to
// bw. bw must not be flushed between blocks of the same stream: bzip2
// blocks are not byte-aligned with each other.
func (e *BlockEncoder) Transmit(bw *bitWriter) error {
	if !e.encoded {
		return fmt.Errorf("bzip2: Transmit called before Encode")
	}
	for _, b := range BlockMagic {
		bw.WriteBits(int(b), 8)
	}
	bw.WriteBits64(uint64(e.crc.val), 32)
	bw.WriteBit(false) // never randomized
	bw.WriteBits(e.origPtr, 24)
	e.writeSymbolBitmap(bw)

	numTrees := len(e.codebook)
	bw.WriteBits(numTrees, 3)
	bw.WriteBits(len(e.selector), 15)
	e.writeSelectors(bw)
	for _, cb := range e.codebook {
		writeCodeLengths(bw, cb.Lengths)
	}
	e.writeBody(bw)
	return bw.Err()
}

func (e *BlockEncoder) writeSymbolBitmap(bw *bitWriter) {
	var present [256]bool
	for _, b := range e.alphabet {
		present[b] = true
	}
	var rangeUsed [16]bool
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			if present[16*i+j] {
				rangeUsed[i] = true
				break
			}
		}
	}
	var rangeBits int
	for i, used := range rangeUsed {
		if used {
			rangeBits |= 1 << (15 - i)
		}
	}
	bw.WriteBits(rangeBits, 16)
	for i, used := range rangeUsed {
		if !used {
			continue
		}
		var bits int
		for j := 0; j < 16; j++ {
			if present[16*i+j] {
				bits |= 1 << (15 - j)
			}
		}
		bw.WriteBits(bits, 16)
	}
}

// writeSelectors move-to-front encodes the selector list (one entry per
// 50-symbol group, naming which codebook that group uses) and writes
// each as a unary count of the form the decoder's MTF-of-small-range
// loop expects.
func (e *BlockEncoder) writeSelectors(bw *bitWriter) {
	numTrees := len(e.codebook)
	list := make([]uint8, numTrees)
	for i := range list {
		list[i] = uint8(i)
	}
	for _, sel := range e.selector {
		rank := 0
		for list[rank] != sel {
			rank++
		}
		for i := 0; i < rank; i++ {
			bw.WriteBit(true)
		}
		bw.WriteBit(false)
		copy(list[1:rank+1], list[:rank])
		list[0] = sel
	}
}

// writeCodeLengths delta-encodes a codebook's per-symbol lengths as a
// 5-bit base followed by, for each symbol, a run of '1' bits each
// followed by a direction bit ('1' decrements, '0' increments) and
// terminated by a final '0' bit once the running length matches the
// symbol's target length. This is the exact inverse of the decoder's
// adjustment loop in readBlock.
func writeCodeLengths(bw *bitWriter, lengths []uint8) {
	cur := int(lengths[0])
	bw.WriteBits(cur, 5)
	for _, l := range lengths {
		target := int(l)
		for cur != target {
			bw.WriteBit(true)
			if cur > target {
				bw.WriteBit(true)
				cur--
			} else {
				bw.WriteBit(false)
				cur++
			}
		}
		bw.WriteBit(false)
	}
}

func (e *BlockEncoder) writeBody(bw *bitWriter) {
	gi := 0
	for _, group := range e.groups {
		cb := e.codebook[e.selector[gi]]
		for _, sym := range group {
			bw.WriteBits64(uint64(cb.Codes[sym]), uint(cb.Lengths[sym]))
		}
		gi++
	}
}
