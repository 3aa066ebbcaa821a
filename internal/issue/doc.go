// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. The Issue catalog holds longer Markdown guidance for the
// failures a user is most likely to hit (missing entry script, no
// interpreter, bad configuration, a run already in progress), rendered in
// the terminal with glamour.
package issue
