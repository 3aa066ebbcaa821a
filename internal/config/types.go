// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// LogLevelDebug enables debug output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn only reports warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError only reports errors.
	LogLevelError LogLevel = "error"

	// DefaultProfile is the target preset used when none is configured.
	DefaultProfile = "PC_Balanced"
	// DefaultMaxChanges caps the number of assets a single run may modify.
	DefaultMaxChanges = 100
	// DefaultScriptRoot is the script directory relative to the project.
	DefaultScriptRoot = "Content/Scripts/magic_optimizer"
	// DefaultScriptEntry is the entry script file inside the script root.
	DefaultScriptEntry = "entry.sh"
	// DefaultSystemBinary is the interpreter looked up on PATH for the
	// system-process strategy.
	DefaultSystemBinary = "sh"
	// DefaultOutputDir is the result directory relative to the project.
	DefaultOutputDir = "Saved/MagicOptimizer"
	// DefaultHistoryFile is the history database name inside the output dir.
	DefaultHistoryFile = "history.db"
)

var (
	// ErrSettingsUnavailable is returned when an operation needs a settings
	// value and none was supplied.
	ErrSettingsUnavailable = errors.New("settings unavailable")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidOptimizerConfig is the sentinel error wrapped by InvalidOptimizerConfigError.
	ErrInvalidOptimizerConfig = errors.New("invalid optimizer config")
	// ErrInvalidInterpreterConfig is the sentinel error wrapped by InvalidInterpreterConfigError.
	ErrInvalidInterpreterConfig = errors.New("invalid interpreter config")
	// ErrInvalidPathConfig is the sentinel error wrapped by InvalidPathConfigError.
	ErrInvalidPathConfig = errors.New("invalid path config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum severity written by the logger.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidOptimizerConfigError collects field errors from OptimizerConfig.
	InvalidOptimizerConfigError struct {
		FieldErrors []error
	}

	// InvalidInterpreterConfigError collects field errors from InterpreterConfig.
	InvalidInterpreterConfigError struct {
		FieldErrors []error
	}

	// InvalidPathConfigError reports a script or output path setting that is unset.
	InvalidPathConfigError struct {
		Field string
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ProjectDir anchors every relative path below. Empty means the
		// current working directory.
		ProjectDir string `json:"project_dir" mapstructure:"project_dir" toml:"project_dir"`
		// Optimizer holds the request defaults read when a run starts
		Optimizer OptimizerConfig `json:"optimizer" mapstructure:"optimizer" toml:"optimizer"`
		// Script locates the external entry point
		Script ScriptConfig `json:"script" mapstructure:"script" toml:"script"`
		// Interpreter configures how the entry point is executed
		Interpreter InterpreterConfig `json:"interpreter" mapstructure:"interpreter" toml:"interpreter"`
		// Output configures where result files are written
		Output OutputConfig `json:"output" mapstructure:"output" toml:"output"`
		// Log configures the diagnostics sink
		Log LogConfig `json:"log" mapstructure:"log" toml:"log"`
		// History configures the run journal
		History HistoryConfig `json:"history" mapstructure:"history" toml:"history"`
	}

	// OptimizerConfig holds the per-run defaults.
	OptimizerConfig struct {
		Profile      string   `json:"profile" mapstructure:"profile" toml:"profile"`
		DryRun       bool     `json:"dry_run" mapstructure:"dry_run" toml:"dry_run"`
		MaxChanges   int      `json:"max_changes" mapstructure:"max_changes" toml:"max_changes"`
		IncludePaths []string `json:"include_paths" mapstructure:"include_paths" toml:"include_paths"`
		ExcludePaths []string `json:"exclude_paths" mapstructure:"exclude_paths" toml:"exclude_paths"`
		UseSelection bool     `json:"use_selection" mapstructure:"use_selection" toml:"use_selection"`
	}

	// ScriptConfig locates the entry script.
	ScriptConfig struct {
		// Root is the script directory, relative to ProjectDir unless absolute
		Root string `json:"root" mapstructure:"root" toml:"root"`
		// Entry is the entry script file name inside Root
		Entry string `json:"entry" mapstructure:"entry" toml:"entry"`
	}

	// InterpreterConfig controls strategy selection.
	InterpreterConfig struct {
		// Embedded enables the in-process interpreter (default: true)
		Embedded bool `json:"embedded" mapstructure:"embedded" toml:"embedded"`
		// SystemBinary is the interpreter looked up on PATH when the embedded
		// one is disabled
		SystemBinary string `json:"system_binary" mapstructure:"system_binary" toml:"system_binary"`
		// Timeout bounds one invocation. Zero means no bound.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout" toml:"timeout"`
	}

	// OutputConfig configures result file placement.
	OutputConfig struct {
		Dir string `json:"dir" mapstructure:"dir" toml:"dir"`
	}

	// LogConfig configures logging. File is optional; when set, log lines
	// are also written to a rotating file.
	LogConfig struct {
		Level      LogLevel `json:"level" mapstructure:"level" toml:"level"`
		File       string   `json:"file" mapstructure:"file" toml:"file"`
		MaxSizeMB  int      `json:"max_size_mb" mapstructure:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int      `json:"max_backups" mapstructure:"max_backups" toml:"max_backups"`
		MaxAgeDays int      `json:"max_age_days" mapstructure:"max_age_days" toml:"max_age_days"`
		Compress   bool     `json:"compress" mapstructure:"compress" toml:"compress"`
	}

	// HistoryConfig configures the run journal.
	HistoryConfig struct {
		Enabled bool `json:"enabled" mapstructure:"enabled" toml:"enabled"`
		// Path is the SQLite file. Empty means <output dir>/history.db.
		Path string `json:"path" mapstructure:"path" toml:"path"`
	}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ProjectDir: "",
		Optimizer: OptimizerConfig{
			Profile:      DefaultProfile,
			DryRun:       true,
			MaxChanges:   DefaultMaxChanges,
			IncludePaths: []string{},
			ExcludePaths: []string{},
			UseSelection: false,
		},
		Script: ScriptConfig{
			Root:  DefaultScriptRoot,
			Entry: DefaultScriptEntry,
		},
		Interpreter: InterpreterConfig{
			Embedded:     true,
			SystemBinary: DefaultSystemBinary,
			Timeout:      0,
		},
		Output: OutputConfig{
			Dir: DefaultOutputDir,
		},
		Log: LogConfig{
			Level:      LogLevelInfo,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// ScriptPath returns the absolute-or-project-relative path of the entry script.
func (c *Config) ScriptPath() string {
	return filepath.Join(c.resolve(c.Script.Root), c.Script.Entry)
}

// OutputDir returns the resolved result directory.
func (c *Config) OutputDir() string {
	return c.resolve(c.Output.Dir)
}

// LogFilePath returns the resolved log file, or "" when file logging is off.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Log.File) == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

// HistoryPath returns the resolved history database path.
func (c *Config) HistoryPath() string {
	if strings.TrimSpace(c.History.Path) == "" {
		return filepath.Join(c.OutputDir(), DefaultHistoryFile)
	}
	return c.resolve(c.History.Path)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.ProjectDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(c.ProjectDir, p)
}

// IsValid returns whether the OptimizerConfig has valid fields.
func (c OptimizerConfig) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.Profile) == "" {
		errs = append(errs, errors.New("optimizer.profile must be non-empty"))
	}
	if c.MaxChanges <= 0 {
		errs = append(errs, fmt.Errorf("optimizer.max_changes must be positive, got %d", c.MaxChanges))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidOptimizerConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidOptimizerConfigError.
func (e *InvalidOptimizerConfigError) Error() string {
	return fmt.Sprintf("invalid optimizer config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidOptimizerConfig for errors.Is() compatibility.
func (e *InvalidOptimizerConfigError) Unwrap() error { return ErrInvalidOptimizerConfig }

// IsValid returns whether the InterpreterConfig has valid fields.
func (c InterpreterConfig) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.SystemBinary) == "" {
		errs = append(errs, errors.New("interpreter.system_binary must be non-empty"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("interpreter.timeout must not be negative, got %s", c.Timeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidInterpreterConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidInterpreterConfigError.
func (e *InvalidInterpreterConfigError) Error() string {
	return fmt.Sprintf("invalid interpreter config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidInterpreterConfig for errors.Is() compatibility.
func (e *InvalidInterpreterConfigError) Unwrap() error { return ErrInvalidInterpreterConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to Optimizer.IsValid(), Interpreter.IsValid() and
// Log.Level.IsValid(), and checks that script and output paths are set.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Optimizer.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Interpreter.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if strings.TrimSpace(c.Script.Root) == "" || strings.TrimSpace(c.Script.Entry) == "" {
		errs = append(errs, &InvalidPathConfigError{Field: "script.root and script.entry"})
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, &InvalidPathConfigError{Field: "output.dir"})
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPathConfigError.
func (e *InvalidPathConfigError) Error() string {
	return e.Field + " must be non-empty"
}

// Unwrap returns ErrInvalidPathConfig for errors.Is() compatibility.
func (e *InvalidPathConfigError) Unwrap() error { return ErrInvalidPathConfig }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels,
// and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error {
	return ErrInvalidLogLevel
}
