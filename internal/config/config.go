// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the daemon's flag/file-backed
// configuration. An optional YAML file supplies defaults for any flag
// not passed on the command line; flags always win. Grounded on the
// teacher's cmd/aleutian/config package (yaml.v3 unmarshal into a plain
// struct, a package-level default path under the user's home
// directory), generalized to use go-playground/validator struct tags
// instead of hand-written field checks.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Options is the fully-resolved configuration for one `discovery:scan`
// invocation, after flags have been merged over any YAML file defaults.
type Options struct {
	Paths       []string `yaml:"paths" validate:"required,min=1"`
	Output      string   `yaml:"output" validate:"required"`
	Ignore      []string `yaml:"ignore"`
	Watch       bool     `yaml:"watch"`
	Socket      string   `yaml:"socket" validate:"required_with=Watch"`
	PIDFile     string   `yaml:"pid" validate:"required_with=Watch"`
	Incremental bool     `yaml:"incremental"`
	Pretty      bool     `yaml:"pretty"`
	Verbose     bool     `yaml:"verbose"`
	Force       bool     `yaml:"force"`
}

// fileDefaults is the shape of the optional YAML config file. Only
// fields a user is likely to want fixed across invocations are exposed
// here; per-run flags like --force are flag-only.
type fileDefaults struct {
	Paths       []string `yaml:"paths"`
	Output      string   `yaml:"output"`
	Ignore      []string `yaml:"ignore"`
	Socket      string   `yaml:"socket"`
	PIDFile     string   `yaml:"pid"`
	Incremental bool     `yaml:"incremental"`
	Pretty      bool     `yaml:"pretty"`
}

// LoadFile reads a YAML defaults file at path. A missing file is not an
// error — it means no defaults are supplied and every value must come
// from flags.
func LoadFile(path string) (*fileDefaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileDefaults{}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var d fileDefaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &d, nil
}

// ApplyDefaults fills any zero-valued field of opts from d, leaving
// explicitly-set flag values untouched.
func ApplyDefaults(opts *Options, d *fileDefaults) {
	if d == nil {
		return
	}
	if len(opts.Paths) == 0 {
		opts.Paths = d.Paths
	}
	if opts.Output == "" {
		opts.Output = d.Output
	}
	if len(opts.Ignore) == 0 {
		opts.Ignore = d.Ignore
	}
	if opts.Socket == "" {
		opts.Socket = d.Socket
	}
	if opts.PIDFile == "" {
		opts.PIDFile = d.PIDFile
	}
	if !opts.Incremental {
		opts.Incremental = d.Incremental
	}
	if !opts.Pretty {
		opts.Pretty = d.Pretty
	}
}

var validate = validator.New()

// Validate enforces the required/mutually-required-together flag rules
// from spec §6: every run needs --path and --output; a watching run also
// needs --socket and --pid.
func Validate(opts *Options) error {
	if err := validate.Struct(opts); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the conventional per-user config file
// location, matching the teacher's $HOME/.<app>/<app>.yaml convention.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".discoveryd", "discoveryd.yaml"), nil
}
