// SPDX-License-Identifier: MPL-2.0

package optimize

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const categorySeparator = ","

var (
	// ErrInvalidCategories is the sentinel error wrapped by InvalidCategoriesError.
	ErrInvalidCategories = errors.New("invalid categories")

	defaultCategoryLabels = []string{"Textures", "Meshes", "Materials"}
)

type (
	// Categories is an ordered set of asset-type labels. Order is the
	// caller's order; duplicates are dropped keeping the first occurrence.
	// The zero value is an empty (invalid) set.
	Categories struct {
		labels []string
	}

	// InvalidCategoriesError is returned when a set of category labels
	// cannot form a valid Categories value.
	InvalidCategoriesError struct {
		Reason string
	}
)

// NewCategories builds a Categories set. Labels are trimmed and empty labels
// are skipped. A label containing a comma is rejected because the wire
// encoding is comma-separated. At least one label must remain.
func NewCategories(labels ...string) (Categories, error) {
	out := make([]string, 0, len(labels))
	for _, raw := range labels {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		if strings.Contains(label, categorySeparator) {
			return Categories{}, &InvalidCategoriesError{Reason: fmt.Sprintf("label %q contains %q", label, categorySeparator)}
		}
		if slices.Contains(out, label) {
			continue
		}
		out = append(out, label)
	}
	if len(out) == 0 {
		return Categories{}, &InvalidCategoriesError{Reason: "at least one category is required"}
	}
	return Categories{labels: out}, nil
}

// ParseCategoriesCSV splits a comma-separated list and builds the set.
func ParseCategoriesCSV(csv string) (Categories, error) {
	return NewCategories(strings.Split(csv, categorySeparator)...)
}

// DefaultCategories returns Textures, Meshes, Materials.
func DefaultCategories() Categories {
	return Categories{labels: slices.Clone(defaultCategoryLabels)}
}

// Labels returns a copy of the labels in order.
func (c Categories) Labels() []string { return slices.Clone(c.labels) }

// Len returns the number of labels.
func (c Categories) Len() int { return len(c.labels) }

// IsEmpty reports whether the set has no labels.
func (c Categories) IsEmpty() bool { return len(c.labels) == 0 }

// CSV joins the labels with commas in order.
func (c Categories) CSV() string {
	return strings.Join(c.labels, categorySeparator)
}

// String returns the labels joined with ", " for log output.
func (c Categories) String() string { return strings.Join(c.labels, ", ") }

// Error implements the error interface.
func (e *InvalidCategoriesError) Error() string {
	return "invalid categories: " + e.Reason
}

// Unwrap returns ErrInvalidCategories for errors.Is() compatibility.
func (e *InvalidCategoriesError) Unwrap() error { return ErrInvalidCategories }
