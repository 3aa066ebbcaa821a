// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/perseusxr/magicopt/internal/history"
	"github.com/perseusxr/magicopt/internal/orchestrator"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newHistoryCommand(app *App, g *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.listHistory(cmd, g, limit, jsonOutput)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "number of runs to show")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "print entries as JSON")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showHistoryEntry(cmd, g, args[0])
		},
	})
	return historyCmd
}

func (a *App) openHistory(cmd *cobra.Command, g *globalOptions) (*history.Store, error) {
	cfg, err := a.loadConfig(cmd.Context(), g)
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(cmd.Context(), cfg.HistoryPath())
}

func (a *App) listHistory(cmd *cobra.Command, g *globalOptions, limit int, jsonOutput bool) error {
	store, err := a.openHistory(cmd, g)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("History is disabled (history.enabled: false)"))
		return nil
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("No runs recorded yet"))
		return nil
	}
	fmt.Fprintln(a.stdout, TitleStyle.Render("Recent Runs"))
	fmt.Fprintln(a.stdout)
	for _, e := range entries {
		fmt.Fprintf(a.stdout, "%s  %s  %-9s %s  %s\n",
			CmdStyle.Render(e.RunID),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Phase,
			statusStyle(e.Status).Render(fmt.Sprintf("%-9s", e.Status)),
			SubtitleStyle.Render(e.Message))
	}
	return nil
}

func (a *App) showHistoryEntry(cmd *cobra.Command, g *globalOptions, runID string) error {
	store, err := a.openHistory(cmd, g)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("History is disabled (history.enabled: false)"))
		return nil
	}
	defer func() { _ = store.Close() }()

	e, err := store.Get(cmd.Context(), runID)
	if err != nil {
		return err
	}

	row := func(k, v string) {
		fmt.Fprintf(a.stdout, "%s %s\n", keyStyle.Render(k+":"), v)
	}
	row("run", e.RunID)
	row("status", statusStyle(e.Status).Render(e.Status.String()))
	row("phase", e.Phase)
	row("categories", strings.Join(e.Categories, ", "))
	row("profile", e.Profile)
	row("dry run", fmt.Sprint(e.DryRun))
	row("started", e.StartedAt.Local().Format("2006-01-02 15:04:05"))
	row("duration", e.Duration().String())
	row("message", e.Message)
	row("strategy", e.Strategy)
	row("assets processed", fmt.Sprint(e.AssetsProcessed))
	row("assets modified", fmt.Sprint(e.AssetsModified))
	for _, w := range e.Warnings {
		fmt.Fprintln(a.stdout, WarningStyle.Render("warning: ")+w)
	}
	for _, msg := range e.Errors {
		fmt.Fprintln(a.stdout, ErrorStyle.Render("error: ")+msg)
	}
	return nil
}

func statusStyle(s orchestrator.Status) lipgloss.Style {
	switch s {
	case orchestrator.StatusCompleted:
		return SuccessStyle
	case orchestrator.StatusCancelled:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
