// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package prefixenc

import "testing"

func isPrefixFree(t *testing.T, lengths []uint8, codes []uint32) {
	t.Helper()
	type entry struct {
		code   uint32
		length uint8
	}
	var entries []entry
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		entries = append(entries, entry{codes[i], l})
	}
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			a, b := entries[i], entries[j]
			if a.length > b.length {
				continue
			}
			if a.code == b.code>>(b.length-a.length) {
				t.Errorf("code %d (len %d) is a prefix of code %d (len %d)", a.code, a.length, b.code, b.length)
			}
		}
	}
}

func TestBuildKraftInequality(t *testing.T) {
	for _, freqs := range [][]int{
		{10, 1, 1, 1},
		{1, 1},
		{100, 50, 25, 12, 6, 3, 1, 1},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	} {
		cb := Build(freqs)
		var sum float64
		for _, l := range cb.Lengths {
			sum += 1.0 / float64(uint64(1)<<l)
		}
		if sum > 1.0001 {
			t.Errorf("freqs %v: Kraft sum %v exceeds 1", freqs, sum)
		}
		for _, l := range cb.Lengths {
			if int(l) > MaxCodeLength {
				t.Errorf("freqs %v: length %v exceeds MaxCodeLength", freqs, l)
			}
		}
		isPrefixFree(t, cb.Lengths, cb.Codes)
	}
}

func TestPackageMergeRespectsLimit(t *testing.T) {
	// A heavily skewed distribution that would otherwise produce codes
	// far longer than 20 bits.
	freqs := make([]int, 40)
	freqs[0], freqs[1] = 1, 1
	for i := 2; i < len(freqs); i++ {
		freqs[i] = freqs[i-1] + freqs[i-2]
	}
	lengths := packageMerge(freqs, MaxCodeLength)
	for i, l := range lengths {
		if int(l) > MaxCodeLength || l == 0 {
			t.Errorf("symbol %v: length %v out of range", i, l)
		}
	}
}

func TestNumCodebooks(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want int
	}{
		{0, 1}, {150, 1}, {151, 2}, {300, 2}, {301, 3},
		{600, 3}, {601, 4}, {1200, 4}, {1201, 5}, {2400, 5}, {2401, 6},
	} {
		if got := NumCodebooks(tc.n); got != tc.want {
			t.Errorf("NumCodebooks(%v) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestClusterAssignsAllGroups(t *testing.T) {
	groups := []Group{
		{Freqs: []int{10, 0, 0, 0}},
		{Freqs: []int{0, 10, 0, 0}},
		{Freqs: []int{0, 0, 10, 0}},
		{Freqs: []int{0, 0, 0, 10}},
	}
	selectors, codebooks := Cluster(groups, 4, 2, DefaultClusterFactor)
	if len(selectors) != len(groups) {
		t.Fatalf("got %v selectors, want %v", len(selectors), len(groups))
	}
	if len(codebooks) != 2 {
		t.Fatalf("got %v codebooks, want 2", len(codebooks))
	}
	for _, s := range selectors {
		if int(s) >= len(codebooks) {
			t.Errorf("selector %v out of range", s)
		}
	}
}
