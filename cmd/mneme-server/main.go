// Command mneme-server is the external integration surface around the
// mneme key/value core: argument parsing, shared-memory file mapping and
// verbose logging, none of which are part of the core itself.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flashflags "github.com/agilira/flash-flags"
	"github.com/go-kit/log"

	"github.com/agilira/mneme"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flashflags.New("mneme-server")
	n := fs.Int("n", 0, "number of dispatcher workers (also grow helper workers)")
	s := fs.Int("s", 0, "initial table capacity")
	v := fs.Bool("v", false, "enable verbose logging")
	h := fs.Bool("h", false, "show usage and exit")
	shmFile := fs.String("shm", "shmem_file", "path to the shared-memory file (created by the client)")

	if err := fs.Parse(args); err != nil {
		usage(fs)
		return 1
	}
	if *h {
		usage(fs)
		return 0
	}

	cfg, err := mneme.NewConfig(*n, *s, *v, *shmFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage(fs)
		return 1
	}

	shm, err := mneme.OpenSharedMemory(cfg.ShmPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer shm.Close()

	var logger log.Logger
	if cfg.Verbose {
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "component", "mneme-server")
	}

	server := mneme.NewServer(cfg, shm, logger)
	server.OnFault = func(op string, err error) {
		fmt.Fprintf(os.Stderr, "mneme-server: fatal during %s: %v\n", op, err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Dispatcher().Run(ctx)
	server.Dispatcher().Wait()
	return 0
}

func usage(fs *flashflags.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: mneme-server -n N -s S [-v] [-shm path]")
	fmt.Fprintln(os.Stderr, "  -n  number of server threads (required, N > 0)")
	fmt.Fprintln(os.Stderr, "  -s  initial table capacity (required, S > 0)")
	fmt.Fprintln(os.Stderr, "  -v  enable verbose logging")
	fmt.Fprintln(os.Stderr, "  -h  show this help")
	fs.PrintDefaults()
}
