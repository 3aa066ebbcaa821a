// SPDX-License-Identifier: MPL-2.0

// Package bridge turns one optimization request into exactly one result.
//
// Probes inspect the environment (is the embedded interpreter enabled, does
// the entry script exist, is a system interpreter on PATH) and Resolve maps
// the probe results onto one of four strategies in fixed priority order:
//
//  1. StrategyEmbeddedScript: run the script inside the in-process
//     mvdan.cc/sh interpreter, then read the result file.
//  2. StrategySystemProcess: spawn the system interpreter with the script
//     and decode its stdout.
//  3. StrategyEmbeddedSmokeTest: no script, so run a trivial command in the
//     embedded interpreter to prove the wiring.
//  4. StrategyUnavailable: fail with an explicit message.
//
// A strategy that fails at runtime is a failed result, never a reason to
// fall back to the next one.
package bridge
