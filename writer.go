// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pbzip2

import (
	"context"
	"io"
)

// NewWriter returns an io.WriteCloser that compresses its input to a
// bzip2-compatible stream written to w, using a Compressor internally.
// Close must be called to flush the final block and stream trailer.
func NewWriter(ctx context.Context, w io.Writer, opts ...CompressorOption) io.WriteCloser {
	return NewCompressor(ctx, w, opts...)
}
