// SPDX-License-Identifier: MPL-2.0

package optimize

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// PhaseAudit inspects assets and reports findings without changing them.
	PhaseAudit Phase = "Audit"
	// PhaseRecommend computes suggested changes for audited assets.
	PhaseRecommend Phase = "Recommend"
	// PhaseApply applies recommended changes (subject to dry-run and max-changes).
	PhaseApply Phase = "Apply"
	// PhaseVerify re-checks assets after changes were applied.
	PhaseVerify Phase = "Verify"

	// DefaultPhase is used by the CLI trigger when no phase is given.
	DefaultPhase = PhaseAudit
)

// ErrInvalidPhase is the sentinel error wrapped by InvalidPhaseError.
var ErrInvalidPhase = errors.New("invalid phase")

type (
	// Phase selects what the external script should do. It is opaque to the
	// orchestrator and bridge beyond being passed through.
	Phase string

	// InvalidPhaseError is returned when a phase string is not one of the
	// known phases. It wraps ErrInvalidPhase for errors.Is() compatibility.
	InvalidPhaseError struct {
		Value string
	}
)

// Phases returns every known phase in pipeline order.
func Phases() []Phase {
	return []Phase{PhaseAudit, PhaseRecommend, PhaseApply, PhaseVerify}
}

// ParsePhase matches s case-insensitively against the known phases and
// returns the canonical spelling. Unknown values are a hard error.
func ParsePhase(s string) (Phase, error) {
	trimmed := strings.TrimSpace(s)
	for _, p := range Phases() {
		if strings.EqualFold(trimmed, string(p)) {
			return p, nil
		}
	}
	return "", &InvalidPhaseError{Value: s}
}

// String returns the canonical phase name.
func (p Phase) String() string { return string(p) }

// IsValid returns whether the Phase is one of the known phases,
// and a list of validation errors if it is not.
func (p Phase) IsValid() (bool, []error) {
	for _, known := range Phases() {
		if p == known {
			return true, nil
		}
	}
	return false, []error{&InvalidPhaseError{Value: string(p)}}
}

// Error implements the error interface.
func (e *InvalidPhaseError) Error() string {
	names := make([]string, 0, len(Phases()))
	for _, p := range Phases() {
		names = append(names, string(p))
	}
	return fmt.Sprintf("invalid phase %q (valid: %s)", e.Value, strings.Join(names, ", "))
}

// Unwrap returns ErrInvalidPhase so callers can use errors.Is for programmatic detection.
func (e *InvalidPhaseError) Unwrap() error { return ErrInvalidPhase }
