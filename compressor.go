// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pbzip2

import (
	"container/heap"
	"context"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cosnicolaou/pbzip2/internal/bzip2"
)

type compressorOpts struct {
	verbose       bool
	concurrency   int
	level         int
	shallowFactor int
	clusterFactor int
}

// CompressorOption represents an option to NewCompressor.
type CompressorOption func(*compressorOpts)

// BZCVerbose controls verbose logging for compression.
func BZCVerbose(v bool) CompressorOption {
	return func(o *compressorOpts) { o.verbose = v }
}

// BZCConcurrency sets the number of blocks encoded concurrently.
func BZCConcurrency(n int) CompressorOption {
	return func(o *compressorOpts) { o.concurrency = n }
}

// BZCBlockSize sets the block size level, 1..9, each step being 100,000
// bytes of pre-compression data per block, as per bzip2 -1..-9.
func BZCBlockSize(level int) CompressorOption {
	return func(o *compressorOpts) { o.level = level }
}

// BZCShallowFactor sets the BWT bucketed quicksort's per-byte comparison
// budget before it falls back to a direct sort for a given block.
func BZCShallowFactor(n int) CompressorOption {
	return func(o *compressorOpts) { o.shallowFactor = n }
}

// BZCClusterFactor sets the number of EM rounds used to assign groups
// to prefix codebooks for a given block.
func BZCClusterFactor(n int) CompressorOption {
	return func(o *compressorOpts) { o.clusterFactor = n }
}

// Compressor represents a concurrent bzip2 compressor: blocks are filled
// from Write calls on the main goroutine, but the CPU-heavy BWT/MTF/
// prefix-coding pass for each block runs on a pool of worker goroutines;
// a single assembler goroutine reorders the results and transmits them,
// in order, to the underlying stream.
type Compressor struct {
	order  uint64 // must be at start of struct to be aligned.
	ctx    context.Context
	opts   compressorOpts
	workWg sync.WaitGroup
	doneWg sync.WaitGroup
	workCh chan *encodeJob
	doneCh chan *encodeJob

	current *bzip2.BlockEncoder

	errOnce sync.Once
	errCh   chan error
}

type encodeJob struct {
	order uint64
	be    *bzip2.BlockEncoder
	err   error
}

// NewCompressor creates a new parallel compressor that writes a bzip2
// stream to w.
func NewCompressor(ctx context.Context, w io.Writer, opts ...CompressorOption) *Compressor {
	o := compressorOpts{
		concurrency: runtime.GOMAXPROCS(-1),
		level:       9,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c := &Compressor{
		ctx:    ctx,
		opts:   o,
		workCh: make(chan *encodeJob, o.concurrency),
		doneCh: make(chan *encodeJob, o.concurrency),
		errCh:  make(chan error, 1),
	}
	c.current = c.newBlockEncoder()

	sw := bzip2.NewStreamWriter(w, o.level)
	c.workWg.Add(o.concurrency)
	for i := 0; i < o.concurrency; i++ {
		go func() {
			c.worker(c.workCh, c.doneCh)
			c.workWg.Done()
		}()
	}
	c.doneWg.Add(1)
	go func() {
		c.assemble(sw, c.doneCh)
		c.doneWg.Done()
	}()
	return c
}

func (c *Compressor) newBlockEncoder() *bzip2.BlockEncoder {
	var bopts []bzip2.EncoderOption
	if c.opts.shallowFactor > 0 {
		bopts = append(bopts, bzip2.ShallowFactor(c.opts.shallowFactor))
	}
	if c.opts.clusterFactor > 0 {
		bopts = append(bopts, bzip2.ClusterFactor(c.opts.clusterFactor))
	}
	return bzip2.NewBlockEncoder(c.opts.level, bopts...)
}

func (c *Compressor) trace(format string, args ...interface{}) {
	if c.opts.verbose {
		log.Printf(format, args...)
	}
}

// Write implements io.Writer, splitting p across as many blocks as
// needed and dispatching each full block for concurrent encoding.
func (c *Compressor) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, full := c.current.Collect(p)
		p = p[n:]
		total += n
		if full {
			if err := c.dispatch(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// dispatch hands the current block to the worker pool and starts a new,
// empty one.
func (c *Compressor) dispatch() error {
	order := atomic.AddUint64(&c.order, 1)
	job := &encodeJob{order: order, be: c.current}
	c.current = c.newBlockEncoder()
	select {
	case c.workCh <- job:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	return nil
}

func (c *Compressor) worker(in <-chan *encodeJob, out chan<- *encodeJob) {
	for {
		select {
		case job := <-in:
			if job == nil {
				return
			}
			c.trace("encoding block %v", job.order)
			job.err = job.be.Encode()
			select {
			case out <- job:
			case <-c.ctx.Done():
			}
		case <-c.ctx.Done():
			return
		}
	}
}

type encodeHeap []*encodeJob

func (h encodeHeap) Len() int            { return len(h) }
func (h encodeHeap) Less(i, j int) bool  { return h[i].order < h[j].order }
func (h encodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *encodeHeap) Push(x interface{}) { *h = append(*h, x.(*encodeJob)) }
func (h *encodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (c *Compressor) assemble(sw *bzip2.StreamWriter, ch <-chan *encodeJob) {
	h := &encodeHeap{}
	heap.Init(h)
	expected := uint64(1)
	for {
		select {
		case job := <-ch:
			if job != nil {
				heap.Push(h, job)
			}
			for len(*h) > 0 {
				min := (*h)[0]
				if min.order != expected {
					break
				}
				heap.Remove(h, 0)
				expected++
				if min.err != nil {
					c.fail(min.err)
					return
				}
				if err := sw.WriteBlock(min.be); err != nil {
					c.fail(err)
					return
				}
			}
			if job == nil && len(*h) == 0 {
				c.fail(sw.Close())
				return
			}
		case <-c.ctx.Done():
			c.fail(c.ctx.Err())
			return
		}
	}
}

func (c *Compressor) fail(err error) {
	c.errOnce.Do(func() {
		c.errCh <- err
		close(c.errCh)
	})
}

// Close dispatches any partially-filled final block, waits for every
// outstanding block to finish encoding and be written out in order, and
// returns the first error encountered, if any.
func (c *Compressor) Close() error {
	if !c.current.Empty() {
		if err := c.dispatch(); err != nil {
			return err
		}
	}
	close(c.workCh)
	c.workWg.Wait()
	close(c.doneCh)
	c.doneWg.Wait()
	return <-c.errCh
}
