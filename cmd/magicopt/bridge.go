// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/perseusxr/magicopt/internal/bridge"
	"github.com/perseusxr/magicopt/internal/issue"
	"github.com/perseusxr/magicopt/internal/logging"

	"github.com/spf13/cobra"
)

func newBridgeCommand(app *App, g *globalOptions) *cobra.Command {
	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "Inspect the execution bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	bridgeCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which execution strategy applies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showBridgeStatus(cmd, g)
		},
	})

	ro := &runOptions{}
	planCmd := &cobra.Command{
		Use:   "plan [phase] [categories]",
		Short: "Print the invocation a run would use, without running it",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showBridgePlan(cmd, g, ro, args)
		},
	}
	f := planCmd.Flags()
	f.StringVar(&ro.profile, "profile", "", "target preset name")
	f.BoolVar(&ro.dryRun, "dry-run", true, "report changes without applying them")
	f.IntVar(&ro.maxChanges, "max-changes", 0, "maximum number of assets to modify")
	f.StringSliceVar(&ro.include, "include", nil, "include path filter (repeatable)")
	f.StringSliceVar(&ro.exclude, "exclude", nil, "exclude path filter (repeatable)")
	f.BoolVar(&ro.useSelection, "use-selection", false, "limit the run to the host's current selection")
	bridgeCmd.AddCommand(planCmd)

	return bridgeCmd
}

func foundLabel(ok bool, yes, no string) string {
	if ok {
		return SuccessStyle.Render(yes)
	}
	return ErrorStyle.Render(no)
}

func (a *App) showBridgeStatus(cmd *cobra.Command, g *globalOptions) error {
	cfg, err := a.loadConfig(cmd.Context(), g)
	if err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		return err
	}

	probe, strategy := bridge.New(cfg).Status()

	fmt.Fprintln(a.stdout, TitleStyle.Render("Execution Bridge"))
	fmt.Fprintln(a.stdout)
	row := func(k, v string) {
		fmt.Fprintf(a.stdout, "%s %s\n", keyStyle.Render(k+":"), v)
	}
	row("embedded interpreter", foundLabel(probe.Embedded, "enabled", "disabled"))
	row("entry script", probe.ScriptPath+" "+foundLabel(probe.ScriptFound, "(found)", "(missing)"))
	interp := cfg.Interpreter.SystemBinary
	if probe.InterpreterFound {
		interp += " → " + probe.InterpreterPath
	}
	row("system interpreter", interp+" "+foundLabel(probe.InterpreterFound, "(found)", "(missing)"))
	row("output directory", cfg.OutputDir())
	if cfg.Interpreter.Timeout > 0 {
		row("timeout", cfg.Interpreter.Timeout.String())
	}
	fmt.Fprintln(a.stdout)
	row("strategy", CmdStyle.Render(strategy.String()))

	switch {
	case strategy == bridge.StrategyUnavailable && !probe.Embedded && probe.ScriptFound:
		a.renderIssue(issue.InterpreterUnavailableId)
	case strategy == bridge.StrategyUnavailable || strategy == bridge.StrategyEmbeddedSmokeTest:
		a.renderIssue(issue.ScriptNotFoundId)
	}
	return nil
}

func (a *App) showBridgePlan(cmd *cobra.Command, g *globalOptions, ro *runOptions, args []string) error {
	cfg, err := a.loadConfig(cmd.Context(), g)
	if err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		return err
	}
	req, err := buildRequest(cfg, ro, cmd.Flags(), args)
	if err != nil {
		return err
	}

	sink := logging.New(a.stderr, cfg.Log, "", g.verbose)
	plan, err := bridge.New(cfg, bridge.WithLogger(sink.For(logging.CategoryBridge))).Plan("", req)
	if err != nil {
		return err
	}

	row := func(k, v string) {
		fmt.Fprintf(a.stdout, "%s %s\n", keyStyle.Render(k+":"), v)
	}
	row("strategy", CmdStyle.Render(plan.Strategy.String()))
	if line := plan.CommandLine(); line != "" {
		row("command", line)
	}
	if plan.ResultFile != "" {
		row("result file", plan.ResultFile)
	}
	if pairs := plan.Env.Pairs(); len(pairs) > 0 {
		row("environment", strings.Join(pairs, "\n"+strings.Repeat(" ", 23)))
	}
	if plan.Strategy == bridge.StrategyUnavailable {
		a.renderIssue(issue.ScriptNotFoundId)
	}
	return nil
}
