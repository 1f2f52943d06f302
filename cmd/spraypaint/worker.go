// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spraypaint/lib/config"
	"github.com/bureau-foundation/spraypaint/lib/dump"
	"github.com/bureau-foundation/spraypaint/lib/memprobe"
	"github.com/bureau-foundation/spraypaint/lib/orchestrator"
)

// workerFlags is the worker command line: which run this is, and the
// parent's settings as WorkerArgs forwarded them.
type workerFlags struct {
	round  int
	worker int
	config *config.Config
}

func parseWorkerFlags(args []string) (workerFlags, error) {
	flags := workerFlags{config: config.Default()}
	cfg := flags.config
	var logFormat string
	flagSet := pflag.NewFlagSet("spraypaint worker", pflag.ContinueOnError)
	flagSet.IntVar(&flags.round, "round", 0, "round number")
	flagSet.IntVar(&flags.worker, "worker", 0, "worker number, from 1; binds to CPU worker-1")
	flagSet.IntVar(&cfg.BufferSize, "buf-size", cfg.BufferSize, "buffer size the parent was started with")
	flagSet.IntVar(&cfg.Mappings, "mappings", cfg.Mappings, "anonymous mappings to create")
	flagSet.BoolVar(&cfg.IgnoreAffinityFailure, "ignore-affinity-failure", cfg.IgnoreAffinityFailure, "silently ignore CPU affinity failures")
	flagSet.StringVar(&cfg.Dump.Dir, "dump-dir", cfg.Dump.Dir, "write snapshots of corrupted buffers to this directory")
	flagSet.StringVar(&cfg.Dump.Compression, "dump-compression", cfg.Dump.Compression, "snapshot compression: none, lz4, or zstd")
	flagSet.StringVar(&logFormat, "log-format", string(cfg.LogFormat), "log format: auto, text, or json")
	if err := flagSet.Parse(args); err != nil {
		return workerFlags{}, err
	}
	cfg.LogFormat = config.LogFormat(logFormat)
	if flags.worker < 1 {
		return workerFlags{}, fmt.Errorf("--worker must be at least 1, got %d", flags.worker)
	}
	if err := cfg.Validate(); err != nil {
		return workerFlags{}, err
	}
	return flags, nil
}

// runWorker is the child side of a launch. The parent passes the
// buffer memfd and the result pipe as inherited descriptors.
func runWorker(args []string) error {
	flags, err := parseWorkerFlags(args)
	if err != nil {
		return err
	}

	cfg := flags.config
	logger, err := newLogger(cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	logger = logger.With("pid", os.Getpid())

	options := []memprobe.Option{
		memprobe.WithIgnoreAffinityFailure(cfg.IgnoreAffinityFailure),
		memprobe.WithMappings(cfg.Mappings),
	}
	if cfg.Dump.Dir != "" {
		writer, err := dump.NewWriter(cfg.Dump.Dir, cfg.DumpCompression())
		if err != nil {
			return err
		}
		options = append(options, memprobe.WithDumper(writer))
	}

	buffer := os.NewFile(orchestrator.BufferFD, "spraypaint-buffer")
	results := os.NewFile(orchestrator.ResultFD, "spraypaint-results")
	code, err := orchestrator.ServeWorker(logger, buffer, results, cfg.BufferSize, flags.round, flags.worker, options...)
	if err != nil {
		return err
	}
	if code != 0 {
		return exitStatus(code)
	}
	return nil
}
