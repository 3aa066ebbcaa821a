// SPDX-License-Identifier: MPL-2.0

package optimize

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/perseusxr/magicopt/internal/config"
)

var (
	// ErrInvalidRequest is the sentinel error wrapped by InvalidRequestError.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrInvalidPath is the sentinel error wrapped by InvalidPathError.
	ErrInvalidPath = errors.New("invalid path filter")
)

type (
	// RequestOptions carries the raw inputs for NewRequest.
	RequestOptions struct {
		Phase        Phase
		Categories   Categories
		Profile      string
		DryRun       bool
		MaxChanges   int
		IncludePaths []string
		ExcludePaths []string
		UseSelection bool
	}

	// Request is the immutable input to one run. Fields are unexported and
	// read through accessors so a Request cannot change after construction.
	Request struct {
		phase        Phase
		categories   Categories
		profile      string
		dryRun       bool
		maxChanges   int
		includePaths []string
		excludePaths []string
		useSelection bool
	}

	// InvalidRequestError collects field-level validation errors for a Request.
	// It wraps ErrInvalidRequest for errors.Is() compatibility.
	InvalidRequestError struct {
		FieldErrors []error
	}

	// InvalidPathError is returned for an include or exclude path that the
	// comma-joined wire encoding cannot carry.
	InvalidPathError struct {
		Field string
		Path  string
	}
)

// NewRequest validates opts and returns an immutable Request.
func NewRequest(opts RequestOptions) (Request, error) {
	req := Request{
		phase:        opts.Phase,
		categories:   Categories{labels: opts.Categories.Labels()},
		profile:      strings.TrimSpace(opts.Profile),
		dryRun:       opts.DryRun,
		maxChanges:   opts.MaxChanges,
		includePaths: cleanPaths(opts.IncludePaths),
		excludePaths: cleanPaths(opts.ExcludePaths),
		useSelection: opts.UseSelection,
	}
	if valid, errs := req.IsValid(); !valid {
		return Request{}, errs[0]
	}
	return req, nil
}

// OptionsFromConfig fills RequestOptions from the settings value so a caller
// can override single fields before NewRequest. The settings are only read.
func OptionsFromConfig(cfg *config.Config, phase Phase, categories Categories) (RequestOptions, error) {
	if cfg == nil {
		return RequestOptions{}, config.ErrSettingsUnavailable
	}
	opt := cfg.Optimizer
	return RequestOptions{
		Phase:        phase,
		Categories:   categories,
		Profile:      opt.Profile,
		DryRun:       opt.DryRun,
		MaxChanges:   opt.MaxChanges,
		IncludePaths: slices.Clone(opt.IncludePaths),
		ExcludePaths: slices.Clone(opt.ExcludePaths),
		UseSelection: opt.UseSelection,
	}, nil
}

// RequestFromConfig reads profile, dry-run, max-changes, path filters and the
// selection flag from the settings value.
func RequestFromConfig(cfg *config.Config, phase Phase, categories Categories) (Request, error) {
	opts, err := OptionsFromConfig(cfg, phase, categories)
	if err != nil {
		return Request{}, err
	}
	return NewRequest(opts)
}

// Phase returns the requested phase.
func (r Request) Phase() Phase { return r.phase }

// Categories returns the ordered category set.
func (r Request) Categories() Categories { return Categories{labels: r.categories.Labels()} }

// Profile returns the target preset name.
func (r Request) Profile() string { return r.profile }

// DryRun reports whether the script must not modify assets.
func (r Request) DryRun() bool { return r.dryRun }

// MaxChanges returns the positive cap on modified assets.
func (r Request) MaxChanges() int { return r.maxChanges }

// IncludePaths returns a copy of the include filter list.
func (r Request) IncludePaths() []string { return slices.Clone(r.includePaths) }

// ExcludePaths returns a copy of the exclude filter list.
func (r Request) ExcludePaths() []string { return slices.Clone(r.excludePaths) }

// UseSelection reports whether the host selection limits the asset scope.
func (r Request) UseSelection() bool { return r.useSelection }

// IsValid returns whether the Request is usable for a run.
func (r Request) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := r.phase.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if r.categories.IsEmpty() {
		errs = append(errs, &InvalidCategoriesError{Reason: "at least one category is required"})
	}
	if r.profile == "" {
		errs = append(errs, fmt.Errorf("profile must be non-empty"))
	}
	if r.maxChanges <= 0 {
		errs = append(errs, fmt.Errorf("max changes must be positive, got %d", r.maxChanges))
	}
	errs = append(errs, checkPaths("include", r.includePaths)...)
	errs = append(errs, checkPaths("exclude", r.excludePaths)...)
	if len(errs) > 0 {
		return false, []error{&InvalidRequestError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidRequestError.
func (e *InvalidRequestError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid run request: " + strings.Join(msgs, "; ")
}

// Unwrap returns the sentinel and every field error so errors.Is matches
// both ErrInvalidRequest and the specific cause (e.g. ErrInvalidPhase).
func (e *InvalidRequestError) Unwrap() []error {
	return append([]error{ErrInvalidRequest}, e.FieldErrors...)
}

// Error implements the error interface for InvalidPathError.
func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s path %q contains %q", e.Field, e.Path, categorySeparator)
}

// Unwrap returns ErrInvalidPath for errors.Is() compatibility.
func (e *InvalidPathError) Unwrap() error { return ErrInvalidPath }

func checkPaths(field string, paths []string) []error {
	var errs []error
	for _, p := range paths {
		if strings.Contains(p, categorySeparator) {
			errs = append(errs, &InvalidPathError{Field: field, Path: p})
		}
	}
	return errs
}

func cleanPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
