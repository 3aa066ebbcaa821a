// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/magicopt/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/magicopt/config.cue on macOS, %APPDATA%\magicopt\config.cue
// on Windows), from config.cue in the current directory, or from an explicit path. The
// package covers optimizer defaults, script and interpreter discovery, the output and log
// locations, and the run history store.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations. Environment
// variables prefixed with MAGICOPT_ override file values.
package config
