// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/issue"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatCUE  = "cue"
	formatTOML = "toml"
	formatJSON = "json"
)

// newConfigCommand creates the `magicopt config` command tree.
func newConfigCommand(app *App, g *globalOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage magicopt configuration",
		Long: `Manage magicopt configuration.

Configuration is stored in:
  - Linux: ~/.config/magicopt/config.cue
  - macOS: ~/Library/Application Support/magicopt/config.cue
  - Windows: %APPDATA%\magicopt\config.cue

A config.cue in the current directory is used when the config directory has
none. Environment variables prefixed with MAGICOPT_ override file values,
for example MAGICOPT_OPTIMIZER_PROFILE=Mobile_Low.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfig(cmd, g, format)
		},
	}
	showCmd.Flags().StringVar(&format, "format", formatText, "output format: text, cue, toml or json")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfigPath(cmd, g)
		},
	})

	return cfgCmd
}

func (a *App) showConfig(cmd *cobra.Command, g *globalOptions, format string) error {
	cfg, err := a.loadConfig(cmd.Context(), g)
	if err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, g.verbose))
		cmd.SilenceErrors = true
		return &ExitError{Code: 1, Err: err}
	}

	switch strings.ToLower(format) {
	case formatCUE:
		fmt.Fprint(a.stdout, config.GenerateCUE(cfg))
		return nil
	case formatTOML:
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode configuration as TOML: %w", err)
		}
		_, err = a.stdout.Write(out)
		return err
	case formatJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case formatText:
	default:
		return fmt.Errorf("unknown format %q (valid: text, cue, toml, json)", format)
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)

	section := func(name string) {
		fmt.Fprintln(a.stdout)
		fmt.Fprintf(a.stdout, "%s:\n", CmdStyle.Render(name))
	}
	row := func(k string, v any) {
		fmt.Fprintf(a.stdout, "  %s %s\n", keyStyle.Render(k+":"), SuccessStyle.Render(fmt.Sprint(v)))
	}
	list := func(k string, items []string) {
		if len(items) == 0 {
			fmt.Fprintf(a.stdout, "  %s %s\n", keyStyle.Render(k+":"), SubtitleStyle.Render("(none)"))
			return
		}
		row(k, strings.Join(items, ", "))
	}

	projectDir := cfg.ProjectDir
	if projectDir == "" {
		projectDir = "(current directory)"
	}
	fmt.Fprintf(a.stdout, "%s %s\n", keyStyle.Render("project_dir:"), SuccessStyle.Render(projectDir))

	section("optimizer")
	row("profile", cfg.Optimizer.Profile)
	row("dry_run", cfg.Optimizer.DryRun)
	row("max_changes", cfg.Optimizer.MaxChanges)
	list("include_paths", cfg.Optimizer.IncludePaths)
	list("exclude_paths", cfg.Optimizer.ExcludePaths)
	row("use_selection", cfg.Optimizer.UseSelection)

	section("script")
	row("root", cfg.Script.Root)
	row("entry", cfg.Script.Entry)
	row("resolved", cfg.ScriptPath())

	section("interpreter")
	row("embedded", cfg.Interpreter.Embedded)
	row("system_binary", cfg.Interpreter.SystemBinary)
	row("timeout", cfg.Interpreter.Timeout)

	section("output")
	row("dir", cfg.OutputDir())

	section("log")
	row("level", cfg.Log.Level)
	if file := cfg.LogFilePath(); file != "" {
		row("file", file)
	}

	section("history")
	row("enabled", cfg.History.Enabled)
	row("path", cfg.HistoryPath())
	return nil
}

func (a *App) initConfig() error {
	cfgPath, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}
	if fileExists(cfgPath) {
		fmt.Fprintf(a.stdout, "%s %s\n", WarningStyle.Render("Config file already exists:"), cfgPath)
		return nil
	}

	cfgPath, err = config.CreateDefaultConfig()
	if err != nil {
		return issue.WrapWithOperation(err, "create default configuration")
	}
	fmt.Fprintf(a.stdout, "%s %s\n", SuccessStyle.Render("Created config file:"), cfgPath)
	return nil
}

func (a *App) showConfigPath(cmd *cobra.Command, g *globalOptions) error {
	res, err := config.LoadWithSource(cmd.Context(), config.LoadOptions{ConfigFilePath: g.configPath})
	if err != nil {
		return err
	}
	if res.Path != "" {
		fmt.Fprintln(a.stdout, res.Path)
		return nil
	}

	defaultPath, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s\n", defaultPath, SubtitleStyle.Render("(not found, using defaults)"))
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
