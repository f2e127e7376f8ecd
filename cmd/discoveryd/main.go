// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command discoveryd extracts PHP attribute metadata from a source tree
// and serves it as a ready-to-consume cache artifact, either as a single
// scan or as a long-lived daemon that keeps the artifact coherent with a
// live, concurrently-mutated file tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/discoveryd/discoveryd/internal/config"
	"github.com/discoveryd/discoveryd/internal/daemon"
	"github.com/discoveryd/discoveryd/internal/lockmgr"
	"github.com/discoveryd/discoveryd/internal/logging"
	"github.com/discoveryd/discoveryd/internal/parser/phpformatter"
	"github.com/discoveryd/discoveryd/internal/parser/treesitter"
)

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitBadArgs  = 2
	exitLockHeld = 3
	exitParse    = 4
)

var opts config.Options

var scanCmd = &cobra.Command{
	Use:   "discovery:scan",
	Short: "Extract PHP attribute metadata and materialize the cache artifact",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringSliceVar(&opts.Paths, "path", nil, "source root to scan (repeatable)")
	scanCmd.Flags().StringVar(&opts.Output, "output", "", "cache artifact destination")
	scanCmd.Flags().StringSliceVar(&opts.Ignore, "ignore", nil, "glob pattern to ignore (repeatable)")
	scanCmd.Flags().BoolVar(&opts.Watch, "watch", false, "enable daemon mode")
	scanCmd.Flags().StringVar(&opts.Socket, "socket", "", "IPC socket path (required with --watch)")
	scanCmd.Flags().StringVar(&opts.PIDFile, "pid", "", "PID file path (required with --watch)")
	scanCmd.Flags().BoolVar(&opts.Incremental, "incremental", false, "reuse prior fingerprints if present")
	scanCmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "format the cache artifact for readability")
	scanCmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "enable debug logging")
	scanCmd.Flags().BoolVar(&opts.Force, "force", false, "unlink a stale lock before acquiring")
}

func main() {
	if err := scanCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	if path, perr := config.DefaultConfigPath(); perr == nil {
		if defaults, lerr := config.LoadFile(path); lerr == nil {
			config.ApplyDefaults(&opts, defaults)
		}
	}
	if err := config.Validate(&opts); err != nil {
		return exitError{code: exitBadArgs, err: err}
	}

	logger := logging.New(opts.Verbose)

	sup := &daemon.Supervisor{
		Cfg: daemon.Config{
			Roots:       opts.Paths,
			Output:      opts.Output,
			IgnoreGlobs: opts.Ignore,
			Watch:       opts.Watch,
			SocketPath:  opts.Socket,
			PIDFile:     opts.PIDFile,
			Incremental: opts.Incremental,
			Pretty:      opts.Pretty,
			Force:       opts.Force,
		},
		Parser:    &treesitter.Parser{},
		Formatter: phpformatter.Formatter{},
		Logger:    logger,
		Verbose:   opts.Verbose,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Boot(ctx); err != nil {
		var heldErr *lockmgr.AlreadyHeldError
		if errors.As(err, &heldErr) {
			logger.Error("lock held by a live incumbent", "pid", heldErr.Incumbent.PID, "socket", heldErr.Incumbent.SocketPath)
			return exitError{code: exitLockHeld, err: err}
		}
		return exitError{code: exitFailure, err: err}
	}

	if !opts.Watch {
		sup.Shutdown()
		return nil
	}

	logger.Info("discoveryd armed", "socket", opts.Socket, "pid_file", opts.PIDFile)
	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return exitError{code: exitFailure, err: err}
	}
	return nil
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, ee.err)
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return exitFailure
}

var _ = exitParse // reserved for strict-mode parser/formatter failures, not yet surfaced as a flag
