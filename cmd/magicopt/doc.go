// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for magicopt.
//
// The root command wires the configuration provider, the execution bridge,
// the run orchestrator and the history journal. `run` is the trigger surface:
// it builds a run request from positional phase/categories arguments plus
// configuration, starts one run and waits for it to settle.
package cmd
