// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bwt implements the forward Burrows-Wheeler Transform used by the
// bzip2 block encoder: a full sort of a block's cyclic byte rotations,
// returning the row index of the original, unrotated string.
//
// Two strategies are used depending on block size. Small blocks are sorted
// directly with a full rotation comparator. Large blocks are bucket-sorted
// on their leading two bytes and then quicksorted within each bucket under
// a comparison budget; a bucket that blows the budget falls the whole
// block back to the direct comparator sort. This replaces the reference
// encoder's O(n) SA-IS suffix array construction with a simpler, always-
// correct (if occasionally slower) sort -- see DESIGN.md.
package bwt

import (
	"bytes"
	"sort"
)

// DefaultShallowFactor bounds the number of rotation-comparisons performed
// per input byte before the bucketed quicksort path gives up on a block
// and falls back to the direct comparator sort.
const DefaultShallowFactor = 120

// Result is the outcome of a forward transform.
type Result struct {
	// Ptr is the row index, in the sorted rotation matrix, of the
	// original string.
	Ptr int
	// UsedFallback records whether the comparison budget was exceeded and
	// the direct comparator sort had to be used instead of the bucketed
	// quicksort.
	UsedFallback bool
}

// smallBlockThreshold is the size below which the direct comparator sort
// is used unconditionally; above it the bucketed/budgeted path is tried
// first.
const smallBlockThreshold = 16384

// Forward performs the Burrows-Wheeler Transform on buf in place and
// returns the index of the original row in the sorted rotation matrix.
// An empty buf returns Ptr -1.
func Forward(buf []byte, shallowFactor int) Result {
	if len(buf) == 0 {
		return Result{Ptr: -1}
	}
	if shallowFactor <= 0 {
		shallowFactor = DefaultShallowFactor
	}
	if len(buf) <= smallBlockThreshold {
		return forwardDirect(buf)
	}
	if res, ok := forwardBucketed(buf, shallowFactor); ok {
		return res
	}
	res := forwardDirect(buf)
	res.UsedFallback = true
	return res
}

// doubledOf returns buf concatenated with itself, so that a rotation
// starting at row i is the n-byte slice doubledOf(buf)[i:i+n].
func doubledOf(buf []byte) []byte {
	n := len(buf)
	d := make([]byte, 2*n)
	copy(d, buf)
	copy(d[n:], buf)
	return d
}

func forwardDirect(buf []byte) Result {
	n := len(buf)
	d := doubledOf(buf)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	sort.Slice(rows, func(a, b int) bool {
		ia, ib := rows[a], rows[b]
		return bytes.Compare(d[ia:ia+n], d[ib:ib+n]) < 0
	})
	return Result{Ptr: writeTransform(buf, d, rows)}
}

// forwardBucketed sorts the rotation matrix by bucketing on the leading
// two bytes of each rotation and then quicksorting within each bucket,
// aborting (returning ok=false) if the comparison budget is exceeded
// anywhere.
func forwardBucketed(buf []byte, shallowFactor int) (Result, bool) {
	n := len(buf)
	d := doubledOf(buf)

	var buckets [65536][]int
	for i := 0; i < n; i++ {
		key := int(d[i])<<8 | int(d[i+1])
		buckets[key] = append(buckets[key], i)
	}

	budget := shallowFactor * n
	used := 0
	rows := make([]int, 0, n)
	for k := range buckets {
		b := buckets[k]
		if len(b) > 1 {
			if !budgetedQuicksort(b, d, n, &used, budget) {
				return Result{}, false
			}
		}
		rows = append(rows, b...)
	}
	return Result{Ptr: writeTransform(buf, d, rows)}, true
}

// writeTransform builds the BWT output column (the last byte of each
// sorted rotation) from the sorted row indices and copies it into buf,
// returning the row index of the original string.
func writeTransform(buf []byte, d []byte, rows []int) int {
	n := len(buf)
	out := make([]byte, n)
	ptr := -1
	for j, i := range rows {
		if i == 0 {
			ptr = j
			out[j] = d[n-1]
		} else {
			out[j] = d[i-1]
		}
	}
	copy(buf, out)
	return ptr
}

// budgetedQuicksort sorts rows (indices into the doubled buffer d, each
// naming an n-byte rotation) in place, incrementing *used for every
// rotation comparison performed. It returns false, leaving rows partially
// sorted, as soon as *used exceeds budget.
func budgetedQuicksort(rows []int, d []byte, n int, used *int, budget int) bool {
	if len(rows) < 2 {
		return true
	}
	if len(rows) <= 12 {
		return insertionSort(rows, d, n, used, budget)
	}
	if *used > budget {
		return false
	}
	pivot := d[rows[len(rows)/2] : rows[len(rows)/2]+n]
	pivotCopy := append([]byte(nil), pivot...)
	lo, hi := 0, len(rows)-1
	for lo <= hi {
		for {
			*used++
			if *used > budget {
				return false
			}
			if bytes.Compare(d[rows[lo]:rows[lo]+n], pivotCopy) >= 0 {
				break
			}
			lo++
		}
		for {
			*used++
			if *used > budget {
				return false
			}
			if bytes.Compare(d[rows[hi]:rows[hi]+n], pivotCopy) <= 0 {
				break
			}
			hi--
		}
		if lo <= hi {
			rows[lo], rows[hi] = rows[hi], rows[lo]
			lo++
			hi--
		}
	}
	if hi > 0 {
		if !budgetedQuicksort(rows[:hi+1], d, n, used, budget) {
			return false
		}
	}
	if lo < len(rows) {
		if !budgetedQuicksort(rows[lo:], d, n, used, budget) {
			return false
		}
	}
	return true
}

func insertionSort(rows []int, d []byte, n int, used *int, budget int) bool {
	for i := 1; i < len(rows); i++ {
		v := rows[i]
		j := i - 1
		for j >= 0 {
			*used++
			if *used > budget {
				return false
			}
			if bytes.Compare(d[rows[j]:rows[j]+n], d[v:v+n]) <= 0 {
				break
			}
			rows[j+1] = rows[j]
			j--
		}
		rows[j+1] = v
	}
	return true
}
