// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// QuoteArgs shell-quotes each argument on its own. Quoting is never applied
// to an already-joined line.
func QuoteArgs(args []string) ([]string, error) {
	quoted := make([]string, len(args))
	for i, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return nil, fmt.Errorf("quote argument %d: %w", i, err)
		}
		quoted[i] = q
	}
	return quoted, nil
}

// CommandLine renders program and argv as one shell line that reproduces
// the invocation when pasted into a POSIX shell.
func CommandLine(program string, argv []string) (string, error) {
	quoted, err := QuoteArgs(append([]string{program}, argv...))
	if err != nil {
		return "", err
	}
	return strings.Join(quoted, " "), nil
}
