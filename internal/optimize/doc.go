// SPDX-License-Identifier: MPL-2.0

// Package optimize defines the data model shared by the run orchestrator and
// the execution bridge: the optimization Phase, the validated Categories set,
// the immutable Request that starts a run, and the Result an invocation
// produces.
//
// Request values are built once through NewRequest (or RequestFromConfig) and
// never mutated afterwards; every accessor returns copies of slice fields.
package optimize
