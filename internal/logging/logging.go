// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured loggers shared by the orchestrator,
// the bridge, the history store and the CLI. Every component logger carries
// a category prefix; when a log file is configured the same lines are also
// written to a size-rotated file.
package logging

import (
	"io"
	"os"

	"github.com/perseusxr/magicopt/internal/config"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	CategoryOrchestrator = "orchestrator"
	CategoryBridge       = "bridge"
	CategoryHistory      = "history"
	CategoryCLI          = "cli"
)

// Sink is the root logger plus the file it may own.
type Sink struct {
	Logger *log.Logger
	file   io.Closer
}

// New creates a Sink writing to w (os.Stderr when nil) and, when filePath is
// non-empty, also to a lumberjack-rotated file. verbose forces debug level.
func New(w io.Writer, cfg config.LogConfig, filePath string, verbose bool) *Sink {
	if w == nil {
		w = os.Stderr
	}

	var file *lumberjack.Logger
	out := w
	if filePath != "" {
		file = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(w, file)
	}

	logger := log.NewWithOptions(out, log.Options{
		Prefix:          config.AppName,
		ReportTimestamp: filePath != "",
		Level:           levelFor(cfg.Level, verbose),
	})

	s := &Sink{Logger: logger}
	if file != nil {
		s.file = file
	}
	return s
}

// For returns a logger for the named category.
func (s *Sink) For(category string) *log.Logger {
	if s == nil || s.Logger == nil {
		return Discard()
	}
	return s.Logger.WithPrefix(category)
}

// Close closes the rotated file, if any.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Discard returns a logger that drops everything. Components use it when
// constructed without one.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func levelFor(l config.LogLevel, verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(string(l))
	if err != nil {
		return log.InfoLevel
	}
	return level
}
