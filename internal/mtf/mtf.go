// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package mtf implements the forward move-to-front transform and the
// RUNA/RUNB run-length encoding of zero ranks used between the BWT and
// prefix-coding stages of the bzip2 block encoder.
package mtf

// Symbol values for the two zero-run pseudo-symbols, interleaved with
// the MTF ranks shifted up by one: rank r (r>0) is encoded as symbol
// r+1, and an end-of-block symbol follows the last real symbol.
const (
	RUNA = 0
	RUNB = 1
)

// Forward applies the move-to-front transform to buf against the given
// alphabet (the distinct bytes used in the block, ascending order), then
// folds runs of consecutive zero ranks into a bijective base-2 sequence
// of RUNA/RUNB symbols. It returns the resulting symbol stream, using
// values 2..len(alphabet) for non-zero MTF ranks (rank r -> r+1) and
// 0/1 for RUNA/RUNB. Symbol len(alphabet)+1 is reserved by the caller
// for the end-of-block marker and is never produced here.
func Forward(buf []byte, alphabet []byte) []uint16 {
	list := make([]byte, len(alphabet))
	copy(list, alphabet)

	syms := make([]uint16, 0, len(buf)+len(buf)/4)
	runLen := 0

	flushRun := func() {
		// Bijective base-2: runLen > 0 is represented LSB-first using
		// digits 1 and 2 (RUNA=1, RUNB=2), which is exactly RUNA/RUNB
		// values RUNA and RUNB shifted up by one.
		n := runLen
		for n > 0 {
			n--
			if n&1 == 0 {
				syms = append(syms, RUNA)
			} else {
				syms = append(syms, RUNB)
			}
			n >>= 1
		}
		runLen = 0
	}

	for _, b := range buf {
		rank := indexOf(list, b)
		if rank == 0 {
			runLen++
			continue
		}
		if runLen > 0 {
			flushRun()
		}
		promote(list, rank)
		syms = append(syms, uint16(rank)+1)
	}
	if runLen > 0 {
		flushRun()
	}
	return syms
}

func indexOf(list []byte, b byte) int {
	for i, v := range list {
		if v == b {
			return i
		}
	}
	panic("mtf: byte not in alphabet")
}

func promote(list []byte, rank int) {
	v := list[rank]
	copy(list[1:rank+1], list[:rank])
	list[0] = v
}
