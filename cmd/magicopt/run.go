// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/perseusxr/magicopt/internal/bridge"
	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/history"
	"github.com/perseusxr/magicopt/internal/issue"
	"github.com/perseusxr/magicopt/internal/logging"
	"github.com/perseusxr/magicopt/internal/optimize"
	"github.com/perseusxr/magicopt/internal/orchestrator"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type (
	// runOptions holds the run flags. Only flags the user set override the
	// configured optimizer defaults.
	runOptions struct {
		profile      string
		dryRun       bool
		maxChanges   int
		include      []string
		exclude      []string
		useSelection bool
		noHistory    bool
		jsonOutput   bool
	}

	// runReport is the --json document.
	runReport struct {
		RunID      string           `json:"runId"`
		Status     string           `json:"status"`
		Phase      string           `json:"phase"`
		Categories []string         `json:"categories"`
		DurationMS int64            `json:"durationMs"`
		Result     *optimize.Result `json:"result"`
	}
)

func newRunCommand(app *App, g *globalOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [phase] [categories]",
		Short: "Start an optimization run and wait for it",
		Long: `Start an optimization run and wait for it to settle.

phase is one of Audit, Recommend, Apply or Verify (default Audit, matched
case-insensitively). categories is a comma-separated list of asset types
(default Textures,Meshes,Materials); order is kept.

Profile, dry-run, max-changes, path filters and selection come from the
configuration unless overridden by flags. Ctrl-C requests cancellation; the
run reports cancelled once the optimizer exits.`,
		Example: `  magicopt run
  magicopt run Recommend Textures,Meshes --profile Mobile_Low
  magicopt run apply Textures --dry-run=false --max-changes 20`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOptimization(cmd, g, ro, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&ro.profile, "profile", config.DefaultProfile, "target preset name")
	f.BoolVar(&ro.dryRun, "dry-run", true, "report changes without applying them")
	f.IntVar(&ro.maxChanges, "max-changes", config.DefaultMaxChanges, "maximum number of assets to modify")
	f.StringSliceVar(&ro.include, "include", nil, "include path filter (repeatable)")
	f.StringSliceVar(&ro.exclude, "exclude", nil, "exclude path filter (repeatable)")
	f.BoolVar(&ro.useSelection, "use-selection", false, "limit the run to the host's current selection")
	f.BoolVar(&ro.noHistory, "no-history", false, "do not record this run in the history journal")
	f.BoolVar(&ro.jsonOutput, "json", false, "print the result as JSON")
	return cmd
}

// parseRunArgs resolves the optional positional phase and categories.
func parseRunArgs(args []string) (optimize.Phase, optimize.Categories, error) {
	phase := optimize.DefaultPhase
	categories := optimize.DefaultCategories()

	if len(args) > 0 {
		p, err := optimize.ParsePhase(args[0])
		if err != nil {
			return "", optimize.Categories{}, issue.NewErrorContext().
				WithOperation("parse phase").
				WithResource(args[0]).
				WithSuggestion("Use one of: Audit, Recommend, Apply, Verify").
				WithIssue(issue.InvalidPhaseId).
				Wrap(err).
				BuildError()
		}
		phase = p
	}
	if len(args) > 1 {
		c, err := optimize.ParseCategoriesCSV(args[1])
		if err != nil {
			return "", optimize.Categories{}, issue.NewErrorContext().
				WithOperation("parse categories").
				WithResource(args[1]).
				WithSuggestion("Pass a comma-separated list such as Textures,Meshes").
				Wrap(err).
				BuildError()
		}
		categories = c
	}
	return phase, categories, nil
}

// buildRequest merges configuration defaults with the flags that were set.
func buildRequest(cfg *config.Config, ro *runOptions, flags *pflag.FlagSet, args []string) (optimize.Request, error) {
	phase, categories, err := parseRunArgs(args)
	if err != nil {
		return optimize.Request{}, err
	}

	opts, err := optimize.OptionsFromConfig(cfg, phase, categories)
	if err != nil {
		return optimize.Request{}, err
	}
	if flags.Changed("profile") {
		opts.Profile = ro.profile
	}
	if flags.Changed("dry-run") {
		opts.DryRun = ro.dryRun
	}
	if flags.Changed("max-changes") {
		opts.MaxChanges = ro.maxChanges
	}
	if flags.Changed("include") {
		opts.IncludePaths = ro.include
	}
	if flags.Changed("exclude") {
		opts.ExcludePaths = ro.exclude
	}
	if flags.Changed("use-selection") {
		opts.UseSelection = ro.useSelection
	}
	return optimize.NewRequest(opts)
}

func (a *App) runOptimization(cmd *cobra.Command, g *globalOptions, ro *runOptions, args []string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(ctx, g)
	if err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		return err
	}

	req, err := buildRequest(cfg, ro, cmd.Flags(), args)
	if err != nil {
		var ae *issue.ActionableError
		if errors.As(err, &ae) && ae.IssueID != 0 {
			a.renderIssue(ae.IssueID)
		}
		return err
	}

	sink := logging.New(a.stderr, cfg.Log, cfg.LogFilePath(), g.verbose)
	defer func() { _ = sink.Close() }()
	logger := sink.For(logging.CategoryCLI)

	o := orchestrator.New(
		a.NewInvoker(cfg, sink.For(logging.CategoryBridge)),
		orchestrator.WithLogger(sink.For(logging.CategoryOrchestrator)),
	)
	defer o.Close()

	if cfg.History.Enabled && !ro.noHistory {
		store, err := history.Open(ctx, cfg.HistoryPath(), history.WithLogger(sink.For(logging.CategoryHistory)))
		if err != nil {
			logger.Warn("history disabled for this run", "err", err)
		} else {
			defer func() { _ = store.Close() }()
			if err := store.Attach(context.WithoutCancel(ctx), o); err != nil {
				logger.Warn("history disabled for this run", "err", err)
			}
		}
	}

	if err := o.Subscribe(a.progressPrinter(ro.jsonOutput)); err != nil {
		return err
	}

	runID, err := o.Start(req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			a.renderIssue(issue.RunAlreadyActiveId)
		}
		return issue.WrapWithOperation(err, "start run")
	}
	if !ro.jsonOutput {
		fmt.Fprintf(a.stdout, "%s %s %s\n", TitleStyle.Render("Started"), CmdStyle.Render(runID),
			SubtitleStyle.Render(fmt.Sprintf("(%s: %s)", req.Phase(), req.Categories())))
	}

	select {
	case <-o.Done():
	case <-ctx.Done():
		if o.Cancel() {
			fmt.Fprintln(a.stderr, WarningStyle.Render("Cancellation requested; waiting for the optimizer to exit..."))
		}
		<-o.Done()
	}

	snap, res := o.Snapshot(), o.Result()
	// Close before the deferred store.Close so the terminal event is journaled.
	o.Close()

	if ro.jsonOutput {
		if err := a.printRunJSON(snap, res); err != nil {
			return err
		}
	} else {
		a.printRunResult(snap, res, g.verbose)
	}

	switch snap.Status {
	case orchestrator.StatusCompleted:
		return nil
	case orchestrator.StatusCancelled:
		cmd.SilenceErrors = true
		return &ExitError{Code: ExitRunCancelled, Err: errors.New("optimization cancelled")}
	default:
		if !ro.jsonOutput {
			if res != nil && res.Strategy == bridge.StrategyUnavailable.String() {
				a.renderIssue(issue.ScriptNotFoundId)
			} else if g.verbose {
				a.renderIssue(issue.ScriptExecutionFailedId)
			}
		}
		cmd.SilenceErrors = true
		return &ExitError{Code: ExitRunFailed, Err: errors.New("optimization failed")}
	}
}

// progressPrinter writes progress events to stderr.
func (a *App) progressPrinter(quiet bool) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		if quiet || ev.Kind != orchestrator.EventProgress {
			return
		}
		s := ev.Snapshot
		line := fmt.Sprintf("[%3.0f%%] %s", s.Progress, s.CurrentPhase)
		if s.CurrentAsset != "" {
			line += " " + s.CurrentAsset
		}
		if s.TotalAssets > 0 {
			line += fmt.Sprintf(" (%d/%d)", s.AssetsProcessed, s.TotalAssets)
		}
		fmt.Fprintln(a.stderr, VerboseStyle.Render(line))
	}
}

func (a *App) printRunResult(snap orchestrator.Snapshot, res *optimize.Result, verbose bool) {
	if res == nil {
		res = &optimize.Result{}
	}

	headline := res.Message
	switch snap.Status {
	case orchestrator.StatusCompleted:
		fmt.Fprintln(a.stdout, SuccessStyle.Render("✓ "+headline))
	case orchestrator.StatusCancelled:
		fmt.Fprintln(a.stdout, WarningStyle.Render("! "+headline))
	default:
		fmt.Fprintln(a.stdout, ErrorStyle.Render("✗ "+headline))
	}

	row := func(k, v string) {
		fmt.Fprintf(a.stdout, "  %s %s\n", keyStyle.Render(k+":"), v)
	}
	row("run", snap.RunID)
	row("status", snap.Status.String())
	if res.Strategy != "" {
		row("strategy", res.Strategy)
	}
	row("duration", snap.Duration().String())
	row("assets processed", fmt.Sprint(res.AssetsProcessed))
	row("assets modified", fmt.Sprint(res.AssetsModified))
	if res.OutputPath != "" {
		row("output", res.OutputPath)
	}
	if res.ExitCode != 0 {
		row("exit code", fmt.Sprint(res.ExitCode))
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(a.stdout, "  "+WarningStyle.Render("warning: ")+w)
	}
	for _, e := range res.Errors {
		fmt.Fprintln(a.stdout, "  "+ErrorStyle.Render("error: ")+e)
	}

	if verbose {
		if out := strings.TrimSpace(res.Stdout); out != "" {
			fmt.Fprintln(a.stdout, SubtitleStyle.Render("stdout:"))
			fmt.Fprintln(a.stdout, VerboseStyle.Render(out))
		}
		if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
			fmt.Fprintln(a.stdout, SubtitleStyle.Render("stderr:"))
			fmt.Fprintln(a.stdout, VerboseStyle.Render(errOut))
		}
	}
}

func (a *App) printRunJSON(snap orchestrator.Snapshot, res *optimize.Result) error {
	doc := runReport{
		RunID:      snap.RunID,
		Status:     snap.Status.String(),
		Phase:      snap.Request.Phase().String(),
		Categories: snap.Request.Categories().Labels(),
		DurationMS: snap.Duration().Milliseconds(),
		Result:     res,
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
