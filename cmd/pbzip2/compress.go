// Copyright 2023 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"os"
	"runtime"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/cosnicolaou/pbzip2"
)

type compressFlags struct {
	Concurrency int    `subcmd:"concurrency,4,'concurrency for the compression'"`
	BlockSize   int    `subcmd:"block-size,9,'block size level, 1..9, each step is 100,000 bytes'"`
	Verbose     bool   `subcmd:"verbose,false,verbose debug/trace information"`
	OutputFile  string `subcmd:"output,,'output file or s3 path, omit for stdout'"`
}

func registerCompress(defaultConcurrency map[string]interface{}) *subcmd.Command {
	bzip2Cmd := subcmd.NewCommand("bzip2",
		subcmd.MustRegisterFlagStruct(&compressFlags{}, defaultConcurrency, nil),
		compress, subcmd.ExactlyNumArguments(1))
	bzip2Cmd.Document(`compress a file to bzip2 format.`)
	return bzip2Cmd
}

func compress(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*compressFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	concurrency := cl.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(-1)
	}

	rd, _, readerCleanup, err := openFileOrURL(ctx, args[0])
	if err != nil {
		return err
	}
	defer readerCleanup(ctx)

	wr, writerCleanup, err := createFile(ctx, cl.OutputFile)
	if err != nil {
		return err
	}

	cw := pbzip2.NewWriter(ctx, wr,
		pbzip2.BZCConcurrency(concurrency),
		pbzip2.BZCBlockSize(cl.BlockSize),
		pbzip2.BZCVerbose(cl.Verbose))

	errs := &errors.M{}
	_, err = io.Copy(cw, rd)
	errs.Append(err)
	errs.Append(cw.Close())
	errs.Append(writerCleanup(ctx))
	return errs.Err()
}
