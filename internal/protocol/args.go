// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/perseusxr/magicopt/internal/optimize"
)

// ArgCount is the length of an encoded argument vector, script path included.
const ArgCount = 9

const listSeparator = ","

// ErrMalformedArgs is the sentinel error wrapped by MalformedArgsError.
var ErrMalformedArgs = errors.New("malformed argument vector")

// MalformedArgsError reports why an argument vector could not be decoded.
type MalformedArgsError struct {
	Index  int
	Reason string
}

// Error implements the error interface.
func (e *MalformedArgsError) Error() string {
	if e.Index < 0 {
		return "malformed argument vector: " + e.Reason
	}
	return fmt.Sprintf("malformed argument vector: argv[%d]: %s", e.Index, e.Reason)
}

// Unwrap returns ErrMalformedArgs for errors.Is() compatibility.
func (e *MalformedArgsError) Unwrap() error { return ErrMalformedArgs }

// EncodeArgs renders req as the positional argument vector. Element 0 is
// scriptPath; the list values keep the request order.
func EncodeArgs(scriptPath string, req optimize.Request) []string {
	return []string{
		scriptPath,
		req.Phase().String(),
		req.Profile(),
		strconv.FormatBool(req.DryRun()),
		strconv.Itoa(req.MaxChanges()),
		strings.Join(req.IncludePaths(), listSeparator),
		strings.Join(req.ExcludePaths(), listSeparator),
		strconv.FormatBool(req.UseSelection()),
		req.Categories().CSV(),
	}
}

// DecodeArgs is the receiving side of EncodeArgs.
func DecodeArgs(argv []string) (string, optimize.Request, error) {
	if len(argv) != ArgCount {
		return "", optimize.Request{}, &MalformedArgsError{Index: -1, Reason: fmt.Sprintf("expected %d elements, got %d", ArgCount, len(argv))}
	}

	phase, err := optimize.ParsePhase(argv[1])
	if err != nil {
		return "", optimize.Request{}, fmt.Errorf("%w: %w", &MalformedArgsError{Index: 1, Reason: "phase"}, err)
	}
	dryRun, err := parseBool(3, argv[3])
	if err != nil {
		return "", optimize.Request{}, err
	}
	maxChanges, err := strconv.Atoi(argv[4])
	if err != nil {
		return "", optimize.Request{}, &MalformedArgsError{Index: 4, Reason: fmt.Sprintf("max changes %q is not an integer", argv[4])}
	}
	useSelection, err := parseBool(7, argv[7])
	if err != nil {
		return "", optimize.Request{}, err
	}
	cats, err := optimize.ParseCategoriesCSV(argv[8])
	if err != nil {
		return "", optimize.Request{}, fmt.Errorf("%w: %w", &MalformedArgsError{Index: 8, Reason: "categories"}, err)
	}

	req, err := optimize.NewRequest(optimize.RequestOptions{
		Phase:        phase,
		Categories:   cats,
		Profile:      argv[2],
		DryRun:       dryRun,
		MaxChanges:   maxChanges,
		IncludePaths: splitList(argv[5]),
		ExcludePaths: splitList(argv[6]),
		UseSelection: useSelection,
	})
	if err != nil {
		return "", optimize.Request{}, err
	}
	return argv[0], req, nil
}

// parseBool accepts exactly "true" or "false".
func parseBool(index int, s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &MalformedArgsError{Index: index, Reason: fmt.Sprintf("%q is not \"true\" or \"false\"", s)}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}
