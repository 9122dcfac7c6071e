// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import "io"

// StreamWriter writes a sequence of already-encoded blocks out as a
// single, valid bzip2 stream: the "BZh<level>" header, the blocks back
// to back (blocks are not byte-aligned with each other), and the
// end-of-stream magic plus combined stream CRC, finally padding to a
// byte boundary.
//
// WriteBlock must be called with blocks in their final stream order;
// StreamWriter does no reordering of its own.
type StreamWriter struct {
	bw          *bitWriter
	level       int
	streamCRC   uint32
	wroteHeader bool
}

// NewStreamWriter returns a StreamWriter that writes a level (1-9) bzip2
// stream to w.
func NewStreamWriter(w io.Writer, level int) *StreamWriter {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	return &StreamWriter{bw: newBitWriter(w), level: level}
}

func (sw *StreamWriter) writeHeader() {
	sw.bw.WriteBits(int(FileMagic[0]), 8)
	sw.bw.WriteBits(int(FileMagic[1]), 8)
	sw.bw.WriteBits('h', 8)
	sw.bw.WriteBits('0'+sw.level, 8)
}

// WriteBlock transmits an encoded block and folds its CRC into the
// stream CRC.
func (sw *StreamWriter) WriteBlock(be *BlockEncoder) error {
	if !sw.wroteHeader {
		sw.writeHeader()
		sw.wroteHeader = true
	}
	if err := be.Transmit(sw.bw); err != nil {
		return err
	}
	sw.streamCRC = (sw.streamCRC<<1 | sw.streamCRC>>31) ^ be.CRC()
	return nil
}

// StreamCRC returns the combined CRC of every block written so far.
func (sw *StreamWriter) StreamCRC() uint32 {
	return sw.streamCRC
}

// Close writes the end-of-stream marker and combined CRC and flushes
// the final, possibly partial, byte. It must be called exactly once,
// after the last WriteBlock call.
func (sw *StreamWriter) Close() error {
	if !sw.wroteHeader {
		sw.writeHeader()
		sw.wroteHeader = true
	}
	for _, b := range EOSMagic {
		sw.bw.WriteBits(int(b), 8)
	}
	sw.bw.WriteBits64(uint64(sw.streamCRC), 32)
	return sw.bw.Flush()
}
