// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// spraypaint stress-tests kernel and hypervisor memory management.
//
// The parent process paints a buffer with identity 0 and then, round
// after round, launches one worker process per CPU. Each worker maps
// the buffer copy-on-write, promotes it to private pages, repaints it
// with its own identity, churns through hundreds of fresh anonymous
// mappings, and pushes the buffer through a socket pair, verifying
// every byte at every step. Corruption is logged with the identity
// that painted the stray bytes, so leakage between processes can be
// told apart from plain damage.
//
// Usage:
//
//	spraypaint [--workers N] [--run-time DURATION] [--buf-size BYTES] [--config FILE]
//
// The exit status is 0 when every worker of every round passed, 1
// otherwise. Corruption of the parent's own buffer is fatal.
//
// "spraypaint worker" is the worker mode the parent re-executes itself
// in; it is not meant to be run by hand.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spraypaint/lib/config"
	"github.com/bureau-foundation/spraypaint/lib/orchestrator"
	"github.com/bureau-foundation/spraypaint/lib/process"
	"github.com/bureau-foundation/spraypaint/lib/report"
	"github.com/bureau-foundation/spraypaint/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

// exitStatus ends the process with a status but no error message: the
// details have already been logged.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitStatus) ExitCode() int { return int(e) }

func run(args []string) error {
	if len(args) > 0 && args[0] == "worker" {
		return runWorker(args[1:])
	}
	return runParent(args)
}

type parentFlags struct {
	configPath            string
	workers               int
	runTime               string
	bufferSize            int
	mappings              int
	ignoreAffinityFailure bool
	dumpDir               string
	dumpCompression       string
	reportPath            string
	logFormat             string
	showVersion           bool
}

func newParentFlagSet(flags *parentFlags) *pflag.FlagSet {
	defaults := config.Default()
	flagSet := pflag.NewFlagSet("spraypaint", pflag.ContinueOnError)
	flagSet.StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")
	flagSet.IntVar(&flags.workers, "workers", defaults.Workers, "number of worker processes per round")
	flagSet.StringVar(&flags.runTime, "run-time", "0s", "how long to run (0 runs until interrupted)")
	flagSet.IntVar(&flags.bufferSize, "buf-size", defaults.BufferSize, "size of the painted buffer in bytes (at least three pages are used)")
	flagSet.IntVar(&flags.mappings, "mappings", defaults.Mappings, "anonymous mappings per worker per round")
	flagSet.BoolVar(&flags.ignoreAffinityFailure, "ignore-affinity-failure", false, "silently ignore CPU affinity failures")
	flagSet.StringVar(&flags.dumpDir, "dump-dir", "", "write snapshots of corrupted buffers to this directory")
	flagSet.StringVar(&flags.dumpCompression, "dump-compression", defaults.Dump.Compression, "snapshot compression: none, lz4, or zstd")
	flagSet.StringVar(&flags.reportPath, "report", "", "write a YAML run report to this path at exit")
	flagSet.StringVar(&flags.logFormat, "log-format", string(defaults.LogFormat), "log format: auto, text, or json")
	flagSet.BoolVar(&flags.showVersion, "version", false, "print version information and exit")
	return flagSet
}

// loadParentConfig builds the run configuration: defaults, then the
// --config file, then every flag set explicitly on the command line.
func loadParentConfig(args []string) (*config.Config, bool, error) {
	var flags parentFlags
	flagSet := newParentFlagSet(&flags)
	if err := flagSet.Parse(args); err != nil {
		return nil, false, err
	}
	if flags.showVersion {
		return nil, true, nil
	}
	if flagSet.NArg() > 0 {
		return nil, false, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.LoadFile(flags.configPath)
		if err != nil {
			return nil, false, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if flagSet.Changed("workers") {
		cfg.Workers = flags.workers
	}
	if flagSet.Changed("run-time") {
		runTime, err := parseDuration(flags.runTime)
		if err != nil {
			return nil, false, fmt.Errorf("--run-time: %w", err)
		}
		cfg.RunTime = runTime
	}
	if flagSet.Changed("buf-size") {
		cfg.BufferSize = flags.bufferSize
	}
	if flagSet.Changed("mappings") {
		cfg.Mappings = flags.mappings
	}
	if flagSet.Changed("ignore-affinity-failure") {
		cfg.IgnoreAffinityFailure = flags.ignoreAffinityFailure
	}
	if flagSet.Changed("dump-dir") {
		cfg.Dump.Dir = flags.dumpDir
	}
	if flagSet.Changed("dump-compression") {
		cfg.Dump.Compression = flags.dumpCompression
	}
	if flagSet.Changed("report") {
		cfg.ReportPath = flags.reportPath
	}
	if flagSet.Changed("log-format") {
		cfg.LogFormat = config.LogFormat(flags.logFormat)
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func runParent(args []string) error {
	cfg, showVersion, err := loadParentConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if showVersion {
		version.Print("spraypaint")
		return nil
	}

	logger, err := newLogger(cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := orchestrator.Run(ctx, cfg, orchestrator.WithLogger(logger))

	if cfg.ReportPath != "" && !summary.Started.IsZero() {
		if err := report.Write(cfg.ReportPath, summary.Report(cfg)); err != nil {
			logger.Error("writing run report failed", "path", cfg.ReportPath, "error", err)
		} else {
			logger.Info("run report written", "path", cfg.ReportPath)
		}
	}

	if runErr != nil {
		return runErr
	}
	if code := summary.ExitCode(); code != 0 {
		return exitStatus(code)
	}
	return nil
}
