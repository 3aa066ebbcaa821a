// SPDX-License-Identifier: MPL-2.0

// Package orchestrator owns the lifecycle of optimization runs.
//
// One owner goroutine holds the run state. Every public method hands a
// closure to that goroutine and waits for it, so transitions are
// synchronous for the caller and the state is never shared. Each run gets
// one worker goroutine that asks the owner whether cancellation was
// requested, calls the Invoker, and hands the result back to the owner in a
// single step.
//
// Lifecycle:
//
//	Idle ──Start──▶ Running ──▶ Completed | Failed | Cancelled
//	                   ▲                       │
//	                   └─────────Start─────────┘
//
// Cancellation is advisory: it never interrupts the Invoker. It is checked
// right before the invocation and again when the result comes back; a
// cancelled run reports Cancelled even if the late result succeeded.
//
// Subscribers receive progress and terminal events in owner order from a
// single dispatcher goroutine, exactly one terminal event per run.
package orchestrator
