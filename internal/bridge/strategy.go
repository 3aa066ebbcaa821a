// SPDX-License-Identifier: MPL-2.0

package bridge

// Strategy is the closed set of ways the bridge can run the workload.
type Strategy int

const (
	// StrategyUnavailable means no strategy applies.
	StrategyUnavailable Strategy = iota
	// StrategyEmbeddedScript runs the script in the embedded interpreter.
	StrategyEmbeddedScript
	// StrategySystemProcess runs the script with a system interpreter binary.
	StrategySystemProcess
	// StrategyEmbeddedSmokeTest runs a no-op in the embedded interpreter.
	StrategyEmbeddedSmokeTest
)

var strategyNames = map[Strategy]string{
	StrategyUnavailable:       "unavailable",
	StrategyEmbeddedScript:    "embedded-script",
	StrategySystemProcess:     "system-process",
	StrategyEmbeddedSmokeTest: "embedded-smoke-test",
}

// String returns the strategy name used in logs, results and history rows.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// Probe holds the leaf checks Resolve decides on.
type Probe struct {
	// Embedded reports whether the in-process interpreter may be used.
	Embedded bool
	// ScriptFound reports whether ScriptPath is a regular file.
	ScriptFound bool
	ScriptPath  string
	// InterpreterFound reports whether the system binary resolved on PATH.
	InterpreterFound bool
	InterpreterPath  string
}

// Resolve picks the strategy for p. The fallback order lives only here.
func Resolve(p Probe) Strategy {
	switch {
	case p.Embedded && p.ScriptFound:
		return StrategyEmbeddedScript
	case p.ScriptFound && p.InterpreterFound:
		return StrategySystemProcess
	case p.Embedded:
		return StrategyEmbeddedSmokeTest
	default:
		return StrategyUnavailable
	}
}
