// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for spraypaint.
//
// Configuration comes from [Default], optionally overlaid with a
// single file named by --config (via [LoadFile]). There is no file
// discovery and environment variables never override values. The
// command line is applied last: a flag the user set explicitly wins
// over the file.
//
// Variable expansion is performed on path fields after loading:
// ${VAR} and ${VAR:-default} patterns are expanded.
//
// [Config.Validate] reports every problem at once, wrapped in
// [ErrInvalid].
package config
