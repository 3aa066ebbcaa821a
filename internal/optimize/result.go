// SPDX-License-Identifier: MPL-2.0

package optimize

import "slices"

// Result is the outcome of one bridge invocation. The bridge creates it, the
// orchestrator reads it to pick the terminal state, and the caller receives
// it afterwards. Treat a Result as read-only once returned.
type Result struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	OutputPath      string   `json:"outputPath,omitempty"`
	Stdout          string   `json:"stdout,omitempty"`
	Stderr          string   `json:"stderr,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	AssetsProcessed int      `json:"assetsProcessed"`
	AssetsModified  int      `json:"assetsModified"`
	// ExitCode is the interpreter or process exit status (0 when not applicable).
	ExitCode int `json:"exitCode"`
	// Strategy names the execution strategy that produced the result.
	Strategy string `json:"strategy,omitempty"`
}

// FailedResult returns an unsuccessful Result with msg as its message and
// errs appended to Errors. When errs is empty, msg is recorded as the error.
func FailedResult(msg string, errs ...string) *Result {
	if len(errs) == 0 {
		errs = []string{msg}
	}
	return &Result{Message: msg, Errors: slices.Clone(errs)}
}

// Clone returns a deep copy so callers cannot alias the original slices.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Errors = slices.Clone(r.Errors)
	c.Warnings = slices.Clone(r.Warnings)
	return &c
}

// AddError appends a non-empty error line.
func (r *Result) AddError(msg string) {
	if msg != "" {
		r.Errors = append(r.Errors, msg)
	}
}

// AddWarning appends a non-empty warning line.
func (r *Result) AddWarning(msg string) {
	if msg != "" {
		r.Warnings = append(r.Warnings, msg)
	}
}
