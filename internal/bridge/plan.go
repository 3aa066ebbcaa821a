// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"time"

	"github.com/perseusxr/magicopt/internal/protocol"
)

// Plan is the concrete invocation for one Invoke call. It is built fresh
// from the request and the probe results and never persisted.
type Plan struct {
	Strategy Strategy
	RunID    string
	// Args is the protocol argument vector; Args[0] is the script path.
	Args []string
	Env  protocol.Env
	// InterpreterPath is set for StrategySystemProcess.
	InterpreterPath string
	// WorkDir is the project directory, or "" for the current directory.
	WorkDir    string
	OutputDir  string
	ResultFile string
	Timeout    time.Duration
}

// ScriptPath returns Args[0], or "" when the plan runs no script.
func (p Plan) ScriptPath() string {
	if len(p.Args) == 0 {
		return ""
	}
	return p.Args[0]
}

// CommandLine renders the plan as a reproducible shell line. Strategies
// that run no script render as "".
func (p Plan) CommandLine() string {
	var program string
	switch p.Strategy {
	case StrategySystemProcess:
		program = p.InterpreterPath
	case StrategyEmbeddedScript:
		program = "sh"
	default:
		return ""
	}
	line, err := protocol.CommandLine(program, p.Args)
	if err != nil {
		return ""
	}
	return line
}
