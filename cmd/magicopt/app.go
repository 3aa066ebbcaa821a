// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/perseusxr/magicopt/internal/bridge"
	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/orchestrator"

	"github.com/charmbracelet/log"
)

type (
	// InvokerFactory builds the invocation backend for one run.
	InvokerFactory func(cfg *config.Config, logger *log.Logger) orchestrator.Invoker

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reaches configuration and execution through it.
	App struct {
		Config     config.Provider
		NewInvoker InvokerFactory
		stdout     io.Writer
		stderr     io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     config.Provider
		NewInvoker InvokerFactory
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// globalOptions holds the persistent root flags.
	globalOptions struct {
		verbose    bool
		configPath string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewInvoker == nil {
		deps.NewInvoker = newBridgeInvoker
	}
	return &App{
		Config:     deps.Config,
		NewInvoker: deps.NewInvoker,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

func newBridgeInvoker(cfg *config.Config, logger *log.Logger) orchestrator.Invoker {
	return bridge.New(cfg, bridge.WithLogger(logger))
}

// loadConfig loads configuration honoring --config.
func (a *App) loadConfig(ctx context.Context, g *globalOptions) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: g.configPath})
}
