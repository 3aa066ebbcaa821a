// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/perseusxr/magicopt/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree over app.
func NewRootCommand(app *App) *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "magicopt",
		Short: "Run asset optimization passes through an external script",
		Long: TitleStyle.Render("magicopt") + SubtitleStyle.Render(" - asset optimization runner") + `

magicopt starts one optimization run at a time, hands it to the optimizer
entry script and reports the result. The script runs inside the embedded
interpreter (mvdan/sh) or as a system process, whichever is available.

` + SubtitleStyle.Render("Examples:") + `
  magicopt run                         Audit Textures, Meshes and Materials
  magicopt run Recommend Textures      Recommend changes for textures only
  magicopt bridge status               Show which execution strategy applies
  magicopt history                     List recent runs
  magicopt config show                 Show current configuration`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/magicopt/config.cue)")

	root.AddCommand(
		newRunCommand(app, g),
		newBridgeCommand(app, g),
		newConfigCommand(app, g),
		newHistoryCommand(app, g),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay uses ActionableError.Format when available.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderIssue writes the catalog entry for id to the app's stderr.
func (a *App) renderIssue(id issue.Id) {
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render("")
	if err != nil {
		fmt.Fprintln(a.stderr, string(entry.MarkdownMsg()))
		return
	}
	fmt.Fprint(a.stderr, rendered)
}
