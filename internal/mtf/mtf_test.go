// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package mtf

import "testing"

// decode reimplements the bzip2 decode-side MTF/RUNA-RUNB expansion
// directly against Forward's output, independently of internal/bzip2,
// so that Forward can be tested in isolation.
func decode(syms []uint16, alphabet []byte) []byte {
	list := make([]byte, len(alphabet))
	copy(list, alphabet)

	var out []byte
	runLen, runBit := 0, 1
	flush := func() {
		if runLen == 0 {
			return
		}
		for i := 0; i < runLen; i++ {
			out = append(out, list[0])
		}
		runLen, runBit = 0, 1
	}
	for _, s := range syms {
		switch s {
		case RUNA:
			runLen += runBit
			runBit <<= 1
		case RUNB:
			runLen += 2 * runBit
			runBit <<= 1
		default:
			flush()
			rank := int(s) - 1
			v := list[rank]
			copy(list[1:rank+1], list[:rank])
			list[0] = v
			out = append(out, v)
		}
	}
	flush()
	return out
}

func TestForwardRoundTrip(t *testing.T) {
	for _, tc := range []string{
		"a",
		"banana",
		"abracadabra",
		"mississippi",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"abababababababab",
	} {
		buf := []byte(tc)
		var present [256]bool
		for _, b := range buf {
			present[b] = true
		}
		var alphabet []byte
		for i, ok := range present {
			if ok {
				alphabet = append(alphabet, byte(i))
			}
		}
		syms := Forward(buf, alphabet)
		got := decode(syms, alphabet)
		if string(got) != tc {
			t.Errorf("%q: round trip failed, got %q", tc, got)
		}
	}
}
