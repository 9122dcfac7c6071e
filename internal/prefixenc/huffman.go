// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package prefixenc builds the canonical prefix (Huffman) codebooks used
// to transmit a block's MTF/RUNA/RUNB symbol stream: optimal code-length
// construction, a length-limiting fallback for pathological frequency
// distributions, canonical code assignment, and the multi-codebook EM
// clustering that selects how many codebooks a block uses and which
// 50-symbol group is assigned to each.
package prefixenc

import "container/heap"

// MaxCodeLength is the longest code length the bit-packed transmission
// format can represent; bzip2 codebooks are limited to 20 bits.
const MaxCodeLength = 20

// Codebook is a complete canonical prefix code over a fixed alphabet.
type Codebook struct {
	Lengths []uint8
	Codes   []uint32
}

// Build constructs a length-limited canonical codebook for the given
// per-symbol frequencies. Symbols with zero frequency still receive a
// valid length and code, since bzip2 transmits a length for every symbol
// in a group's alphabet regardless of whether it occurs in that group.
func Build(freqs []int) Codebook {
	lengths := huffmanLengths(freqs)
	if maxLength(lengths) > MaxCodeLength {
		lengths = packageMerge(freqs, MaxCodeLength)
	}
	return Codebook{Lengths: lengths, Codes: AssignCodes(lengths)}
}

func maxLength(lengths []uint8) int {
	m := 0
	for _, l := range lengths {
		if int(l) > m {
			m = int(l)
		}
	}
	return m
}

// AssignCodes assigns canonical codes to a set of already-determined
// code lengths: codes are consecutive integers within each length class,
// ordered by symbol index, with shorter lengths sorting before longer
// ones -- the standard canonical-Huffman construction.
func AssignCodes(lengths []uint8) []uint32 {
	maxLen := maxLength(lengths)
	if maxLen == 0 {
		return make([]uint32, len(lengths))
	}
	blCount := make([]int, maxLen+1)
	for _, l := range lengths {
		blCount[l]++
	}
	nextCode := make([]int, maxLen+1)
	code := 0
	blCount[0] = 0
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	codes := make([]uint32, len(lengths))
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		codes[i] = uint32(nextCode[l])
		nextCode[l]++
	}
	return codes
}

// huffmanLengths computes optimal (not necessarily length-limited) code
// lengths for freqs using a standard heap-based Huffman-tree build: the
// in-place array recurrence bzip2 reference encoders use arrives at the
// same length assignment, but the heap is simpler to get right for a
// codebase of this size (see DESIGN.md).
func huffmanLengths(freqs []int) []uint8 {
	n := len(freqs)
	lengths := make([]uint8, n)
	if n == 0 {
		return lengths
	}
	if n == 1 {
		lengths[0] = 1
		return lengths
	}

	type hnode struct {
		weight      int
		left, right int // node index, -1 for a leaf
	}
	nodes := make([]hnode, n, 2*n)
	pq := &nodeHeap{}
	heap.Init(pq)
	for i, f := range freqs {
		w := f
		if w <= 0 {
			w = 1
		}
		nodes[i] = hnode{weight: w, left: -1, right: -1}
		heap.Push(pq, pqItem{weight: w, idx: i, seq: i})
	}

	seq := n
	for pq.Len() > 1 {
		a := heap.Pop(pq).(pqItem)
		b := heap.Pop(pq).(pqItem)
		nodes = append(nodes, hnode{weight: a.weight + b.weight, left: a.idx, right: b.idx})
		heap.Push(pq, pqItem{weight: a.weight + b.weight, idx: len(nodes) - 1, seq: seq})
		seq++
	}
	root := heap.Pop(pq).(pqItem).idx

	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		nd := nodes[idx]
		if nd.left == -1 && nd.right == -1 {
			if depth == 0 {
				depth = 1
			}
			lengths[idx] = uint8(depth)
			return
		}
		walk(nd.left, depth+1)
		walk(nd.right, depth+1)
	}
	walk(root, 0)
	return lengths
}

// pqItem is a node-heap entry; seq breaks ties between equal weights so
// that construction is deterministic.
type pqItem struct {
	weight int
	idx    int
	seq    int
}

type nodeHeap []pqItem

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any) {
	*h = append(*h, x.(pqItem))
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
