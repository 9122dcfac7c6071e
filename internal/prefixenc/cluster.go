// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package prefixenc

// DefaultClusterFactor is the number of expectation/maximization passes
// run over a block's group-to-codebook assignment.
const DefaultClusterFactor = 8

// Group is one 50-symbol group's frequency histogram over the block's
// MTF/RUNA/RUNB alphabet, used both to pick its codebook and to build
// that codebook's lengths.
type Group struct {
	Freqs []int
}

// NumCodebooks selects how many prefix codebooks a block should use
// based on the length of its MTF/RUNA/RUNB symbol stream, following the
// reference encoder's fixed thresholds.
func NumCodebooks(numSymbols int) int {
	switch {
	case numSymbols > 2400:
		return 6
	case numSymbols > 1200:
		return 5
	case numSymbols > 600:
		return 4
	case numSymbols > 300:
		return 3
	case numSymbols > 150:
		return 2
	default:
		return 1
	}
}

// Cluster assigns each group to one of numCodebooks codebooks and builds
// each codebook's lengths, iterating clusterFactor rounds of
// expectation (reassign each group to its cheapest codebook) and
// maximization (rebuild each codebook's lengths from its assigned
// groups' combined frequencies). It returns the final selector (one
// codebook index per group) and the resulting codebooks.
func Cluster(groups []Group, alphaSize, numCodebooks, clusterFactor int) ([]uint8, []Codebook) {
	if numCodebooks < 1 {
		numCodebooks = 1
	}
	if clusterFactor < 1 {
		clusterFactor = DefaultClusterFactor
	}
	selectors := initialPartition(groups, numCodebooks)
	codebooks := make([]Codebook, numCodebooks)

	for iter := 0; iter < clusterFactor; iter++ {
		codebooks = maximize(groups, selectors, alphaSize, numCodebooks)
		changed := expect(groups, codebooks, selectors)
		if !changed && iter > 0 {
			break
		}
	}
	codebooks = maximize(groups, selectors, alphaSize, numCodebooks)
	return selectors, codebooks
}

// initialPartition assigns groups to codebooks in contiguous bands of
// roughly equal total symbol weight, following the cumulative-frequency
// partition the reference encoder seeds EM with.
func initialPartition(groups []Group, numCodebooks int) []uint8 {
	selectors := make([]uint8, len(groups))
	if len(groups) == 0 {
		return selectors
	}
	total := 0
	weights := make([]int, len(groups))
	for i, g := range groups {
		w := 0
		for _, f := range g.Freqs {
			w += f
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return selectors
	}
	threshold := total / numCodebooks
	if threshold == 0 {
		threshold = 1
	}
	codebook, running := 0, 0
	for i, w := range weights {
		selectors[i] = uint8(codebook)
		running += w
		if running > threshold*(codebook+1) && codebook < numCodebooks-1 {
			codebook++
		}
	}
	return selectors
}

// maximize rebuilds every codebook's lengths from the groups currently
// assigned to it.
func maximize(groups []Group, selectors []uint8, alphaSize, numCodebooks int) []Codebook {
	sums := make([][]int, numCodebooks)
	for i := range sums {
		sums[i] = make([]int, alphaSize)
	}
	for gi, g := range groups {
		c := sums[selectors[gi]]
		for s, f := range g.Freqs {
			c[s] += f
		}
	}
	codebooks := make([]Codebook, numCodebooks)
	for i, freqs := range sums {
		allZero := true
		for _, f := range freqs {
			if f > 0 {
				allZero = false
				break
			}
		}
		if allZero {
			// An unused codebook (more codebooks requested than groups
			// exercise any of them) still needs a valid, transmittable
			// code: give every symbol equal weight.
			freqs = make([]int, alphaSize)
			for s := range freqs {
				freqs[s] = 1
			}
		}
		codebooks[i] = Build(freqs)
	}
	return codebooks
}

// expect reassigns each group to the codebook that would encode it most
// cheaply, returning whether any assignment changed.
func expect(groups []Group, codebooks []Codebook, selectors []uint8) bool {
	changed := false
	for gi, g := range groups {
		best, bestCost := 0, -1
		for ci, cb := range codebooks {
			cost := 0
			for s, f := range g.Freqs {
				if f == 0 {
					continue
				}
				cost += f * int(cb.Lengths[s])
			}
			if bestCost == -1 || cost < bestCost {
				best, bestCost = ci, cost
			}
		}
		if selectors[gi] != uint8(best) {
			selectors[gi] = uint8(best)
			changed = true
		}
	}
	return changed
}
