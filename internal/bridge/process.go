// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/perseusxr/magicopt/internal/optimize"

	"github.com/charmbracelet/log"
)

// processWaitDelay bounds how long Wait blocks on inherited pipes after the
// process is killed on timeout.
const processWaitDelay = 2 * time.Second

// runSystemProcess spawns the system interpreter with the argument vector.
// Stdout is the result channel; the exit code decides process-level success.
func (b *Bridge) runSystemProcess(ctx context.Context, plan Plan, logger *log.Logger) *optimize.Result {
	if err := ensureOutputDir(plan.OutputDir); err != nil {
		return optimize.FailedResult(MsgFailed, err.Error())
	}

	cmd := exec.CommandContext(ctx, plan.InterpreterPath, plan.Args...)
	cmd.Dir = plan.WorkDir
	cmd.Env = append(os.Environ(), plan.Env.Pairs()...)
	cmd.WaitDelay = processWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Warn("optimizer process failed", "exit_code", exitCode, "error", err)
		res := runFailure(ctx, err, exitCode, stderr.String(), plan.Timeout)
		res.Stdout = stdout.String()
		return res
	}

	res := &optimize.Result{
		Success:    true,
		Message:    MsgCompleted,
		OutputPath: plan.ResultFile,
		Stderr:     stderr.String(),
	}
	return finalize(res, stdout.String(), logger)
}
