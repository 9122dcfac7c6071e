// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package prefixenc

import "sort"

// pmItem is a package-merge list entry: either a single leaf symbol or a
// package formed by combining two entries from the previous level. counts
// records, per original symbol, how many times that symbol is folded
// into this entry.
type pmItem struct {
	weight int
	counts []int
}

// packageMerge computes length-limited (<=maxLen) code lengths using the
// Larmore-Hirschberg package-merge algorithm. It is only invoked as a
// fallback when the unconstrained Huffman build produces a code longer
// than maxLen, which bzip2's 20-bit transmission format cannot carry.
func packageMerge(freqs []int, maxLen int) []uint8 {
	n := len(freqs)
	lengths := make([]uint8, n)
	if n == 0 {
		return lengths
	}
	if n == 1 {
		lengths[0] = 1
		return lengths
	}

	leaves := make([]pmItem, n)
	for i, f := range freqs {
		w := f
		if w <= 0 {
			w = 1
		}
		counts := make([]int, n)
		counts[i] = 1
		leaves[i] = pmItem{weight: w, counts: counts}
	}
	sort.Slice(leaves, func(a, b int) bool { return leaves[a].weight < leaves[b].weight })

	cur := leaves
	for level := 1; level < maxLen; level++ {
		var packages []pmItem
		for i := 0; i+1 < len(cur); i += 2 {
			packages = append(packages, mergeItems(cur[i], cur[i+1], n))
		}
		merged := make([]pmItem, 0, len(leaves)+len(packages))
		merged = append(merged, leaves...)
		merged = append(merged, packages...)
		sort.Slice(merged, func(a, b int) bool { return merged[a].weight < merged[b].weight })
		cur = merged
	}

	take := 2*n - 2
	if take > len(cur) {
		take = len(cur)
	}
	total := make([]int, n)
	for _, it := range cur[:take] {
		for i, c := range it.counts {
			total[i] += c
		}
	}
	for i, c := range total {
		if c <= 0 {
			c = 1
		}
		if c > maxLen {
			c = maxLen
		}
		lengths[i] = uint8(c)
	}
	return lengths
}

func mergeItems(a, b pmItem, n int) pmItem {
	counts := make([]int, n)
	for i := range counts {
		counts[i] = a.counts[i] + b.counts[i]
	}
	return pmItem{weight: a.weight + b.weight, counts: counts}
}
