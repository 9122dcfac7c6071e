// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bwt

import (
	"math/rand"
	"testing"
)

// inverse mirrors the decode-side inverse transform used by internal/bzip2,
// reimplemented here against a plain byte buffer so Forward can be
// round-tripped without importing the decode package.
func inverse(buf []byte, ptr int) []byte {
	n := len(buf)
	if n == 0 {
		return nil
	}
	var c [256]int
	for _, b := range buf {
		c[b]++
	}
	sum := 0
	for i, v := range c {
		sum += v
		c[i] = sum - v
	}
	next := make([]int, n)
	for i, b := range buf {
		next[c[b]] = i
		c[b]++
	}
	out := make([]byte, n)
	pos := next[ptr]
	for i := range out {
		out[i] = buf[pos]
		pos = next[pos]
	}
	return out
}

func TestForwardRoundTrip(t *testing.T) {
	for _, tc := range []string{
		"",
		"a",
		"banana",
		"abracadabra",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"the quick brown fox jumps over the lazy dog",
	} {
		buf := []byte(tc)
		res := Forward(buf, 0)
		if len(tc) == 0 {
			if res.Ptr != -1 {
				t.Errorf("%q: got ptr %v, want -1", tc, res.Ptr)
			}
			continue
		}
		got := inverse(buf, res.Ptr)
		if string(got) != tc {
			t.Errorf("round trip failed: got %q, want %q", got, tc)
		}
	}
}

func TestForwardLargeBucketedPath(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	buf := make([]byte, 20000)
	for i := range buf {
		buf[i] = byte(rnd.Intn(4)) // low entropy, exercises big buckets
	}
	orig := append([]byte(nil), buf...)
	res := Forward(buf, 4)
	got := inverse(buf, res.Ptr)
	if string(got) != string(orig) {
		t.Errorf("large-input round trip failed")
	}
}
