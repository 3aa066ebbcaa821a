// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/logging"
	"github.com/perseusxr/magicopt/internal/optimize"
	"github.com/perseusxr/magicopt/internal/protocol"

	"github.com/charmbracelet/log"
)

const (
	// MsgCompleted is the default message of a successful script run.
	MsgCompleted = "Optimization completed successfully"
	// MsgFailed is the default message of a failed script run.
	MsgFailed = "Optimization failed"
	// MsgSmokeTest is the fixed placeholder reported by the smoke test.
	MsgSmokeTest = "Embedded interpreter executed (smoke test)"
	// MsgUnavailable is reported when no strategy applies.
	MsgUnavailable = "bridge not initialized: script not found or no interpreter available"
	// MsgSettingsUnavailable is reported when the bridge has no settings.
	MsgSettingsUnavailable = "configuration error: settings unavailable"
)

// Bridge performs one invocation per Invoke call using the strategy that
// the current environment supports. It reads, never writes, its settings.
type Bridge struct {
	cfg    *config.Config
	logger *log.Logger
	probe  func(*config.Config) Probe
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// withProbe replaces ProbeAll. Tests use it to force a strategy.
func withProbe(fn func(*config.Config) Probe) Option {
	return func(b *Bridge) { b.probe = fn }
}

// New creates a Bridge over cfg. A nil cfg is accepted; Invoke then
// returns a configuration-error result.
func New(cfg *config.Config, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		logger: logging.Discard(),
		probe:  ProbeAll,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Status probes the environment and returns the probe with the strategy
// Invoke would use right now.
func (b *Bridge) Status() (Probe, Strategy) {
	p := b.probe(b.cfg)
	return p, Resolve(p)
}

// Plan builds the invocation for runID and req.
func (b *Bridge) Plan(runID string, req optimize.Request) (Plan, error) {
	if b.cfg == nil {
		return Plan{}, config.ErrSettingsUnavailable
	}
	probe, strategy := b.Status()

	plan := Plan{
		Strategy:  strategy,
		RunID:     runID,
		WorkDir:   b.cfg.ProjectDir,
		OutputDir: b.cfg.OutputDir(),
		Timeout:   b.cfg.Interpreter.Timeout,
	}
	plan.ResultFile = protocol.ResultFilePath(plan.OutputDir, runID)

	switch strategy {
	case StrategyEmbeddedScript, StrategySystemProcess:
		plan.Args = protocol.EncodeArgs(probe.ScriptPath, req)
		plan.Env = protocol.Env{
			OutputPath: plan.ResultFile,
			LogPath:    b.cfg.LogFilePath(),
			RunID:      runID,
			ScriptPath: probe.ScriptPath,
		}
		if strategy == StrategySystemProcess {
			plan.InterpreterPath = probe.InterpreterPath
		}
	case StrategyEmbeddedSmokeTest, StrategyUnavailable:
		plan.ResultFile = ""
	}
	return plan, nil
}

// Invoke runs req and always returns a result. Panics raised while running
// the workload are recovered into a failed result.
func (b *Bridge) Invoke(ctx context.Context, runID string, req optimize.Request) (res *optimize.Result) {
	if b == nil || b.cfg == nil {
		return optimize.FailedResult(MsgSettingsUnavailable)
	}

	plan, err := b.Plan(runID, req)
	if err != nil {
		return optimize.FailedResult(MsgSettingsUnavailable, err.Error())
	}

	logger := b.logger.With("run", runID, "strategy", plan.Strategy.String())
	logger.Info("invoking optimizer", "phase", req.Phase(), "categories", req.Categories().CSV())
	if line := plan.CommandLine(); line != "" {
		logger.Debug("invocation", "command", line)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("optimizer panicked", "panic", r)
			res = optimize.FailedResult(MsgFailed, fmt.Sprintf("bridge panic: %v", r))
		}
		if res == nil {
			res = optimize.FailedResult(MsgFailed)
		}
		res.Strategy = plan.Strategy.String()
		logger.Info("optimizer finished", "success", res.Success, "elapsed", time.Since(start).Round(time.Millisecond))
	}()

	if plan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.Timeout)
		defer cancel()
	}

	switch plan.Strategy {
	case StrategyEmbeddedScript:
		return b.runEmbeddedScript(ctx, plan, logger)
	case StrategySystemProcess:
		return b.runSystemProcess(ctx, plan, logger)
	case StrategyEmbeddedSmokeTest:
		return runSmokeTest(ctx, plan.Timeout, logger)
	default:
		logger.Warn("no execution strategy available", "script", b.cfg.ScriptPath(), "binary", b.cfg.Interpreter.SystemBinary)
		return optimize.FailedResult(MsgUnavailable)
	}
}

// ensureOutputDir creates the output directory. Existing content is kept.
func ensureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}

// finalize applies the decoding policy to a process-level result: only a
// successful run is decoded, and the text is kept verbatim in Stdout.
func finalize(res *optimize.Result, text string, logger *log.Logger) *optimize.Result {
	res.Stdout = text
	if !res.Success {
		return res
	}
	report, ok := protocol.DecodeResult(text)
	if !ok {
		if text != "" {
			logger.Debug("output is not a result document, keeping process status")
		}
		return res
	}
	report.ApplyTo(res)
	return res
}

// runFailure converts an execution error into a failed result. ctx decides
// whether the failure was a timeout; stderr becomes the summary when set.
func runFailure(ctx context.Context, err error, exitCode int, stderr string, timeout time.Duration) *optimize.Result {
	res := &optimize.Result{Message: MsgFailed, ExitCode: exitCode, Stderr: stderr}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.AddError(fmt.Sprintf("optimizer timed out after %s", timeout))
	case trimmed(stderr) != "":
		res.AddError(trimmed(stderr))
	default:
		res.AddError(err.Error())
	}
	return res
}
