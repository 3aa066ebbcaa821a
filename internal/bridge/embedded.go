// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/perseusxr/magicopt/internal/optimize"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const smokeTestSource = `echo "magicopt: embedded interpreter ready"`

// runEmbeddedScript parses the script source and runs it in the embedded
// interpreter with the argument vector bound to $1..$8. Stdout of the
// result is the result file, read after the interpreter returns.
func (b *Bridge) runEmbeddedScript(ctx context.Context, plan Plan, logger *log.Logger) *optimize.Result {
	if err := ensureOutputDir(plan.OutputDir); err != nil {
		return optimize.FailedResult(MsgFailed, err.Error())
	}

	source, err := os.ReadFile(plan.ScriptPath())
	if err != nil {
		return optimize.FailedResult(MsgFailed, fmt.Sprintf("read script: %v", err))
	}
	prog, err := syntax.NewParser().Parse(bytes.NewReader(source), plan.ScriptPath())
	if err != nil {
		return optimize.FailedResult(MsgFailed, fmt.Sprintf("failed to parse script: %v", err))
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(append(os.Environ(), plan.Env.Pairs()...)...)),
		interp.StdIO(nil, &stdout, &stderr),
		// "--" ends option parsing so arguments such as "-v" stay positional.
		interp.Params(append([]string{"--"}, plan.Args[1:]...)...),
	}
	if plan.WorkDir != "" {
		opts = append(opts, interp.Dir(plan.WorkDir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return optimize.FailedResult(MsgFailed, fmt.Sprintf("failed to create interpreter: %v", err))
	}

	runErr := runner.Run(ctx, prog)
	if console := strings.TrimSpace(stdout.String()); console != "" {
		logger.Debug("script output", "stdout", console)
	}
	if runErr != nil {
		var exitStatus interp.ExitStatus
		exitCode := 1
		if errors.As(runErr, &exitStatus) {
			exitCode = int(exitStatus)
		}
		return runFailure(ctx, runErr, exitCode, stderr.String(), plan.Timeout)
	}

	res := &optimize.Result{
		Success:    true,
		Message:    MsgCompleted,
		OutputPath: plan.ResultFile,
		Stderr:     stderr.String(),
	}

	data, err := os.ReadFile(plan.ResultFile)
	if err != nil {
		// A missing result file is not a failure on its own.
		res.AddWarning(fmt.Sprintf("result file not readable: %v", err))
		return finalize(res, "", logger)
	}
	return finalize(res, string(data), logger)
}

// runSmokeTest runs a trivial command to verify the interpreter works.
func runSmokeTest(ctx context.Context, timeout time.Duration, logger *log.Logger) *optimize.Result {
	prog, err := syntax.NewParser().Parse(strings.NewReader(smokeTestSource), "smoke-test")
	if err != nil {
		return optimize.FailedResult(MsgFailed, fmt.Sprintf("failed to parse smoke test: %v", err))
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(interp.StdIO(nil, &stdout, &stderr))
	if err != nil {
		return optimize.FailedResult(MsgFailed, fmt.Sprintf("failed to create interpreter: %v", err))
	}
	if err := runner.Run(ctx, prog); err != nil {
		return runFailure(ctx, err, 1, stderr.String(), timeout)
	}

	logger.Info("no entry script found, ran embedded smoke test")
	return &optimize.Result{
		Success: true,
		Message: MsgSmokeTest,
		Stdout:  stdout.String(),
		Warnings: []string{
			"entry script not found; smoke test only",
		},
	}
}

func trimmed(s string) string { return strings.TrimSpace(s) }
