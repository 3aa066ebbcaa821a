// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/perseusxr/magicopt/internal/optimize"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

func testRequest(t *testing.T) optimize.Request {
	t.Helper()
	cats, err := optimize.NewCategories("Meshes", "Textures", "Materials")
	if err != nil {
		t.Fatal(err)
	}
	req, err := optimize.NewRequest(optimize.RequestOptions{
		Phase:        optimize.PhaseRecommend,
		Categories:   cats,
		Profile:      "PC_Balanced",
		DryRun:       true,
		MaxChanges:   100,
		IncludePaths: []string{"/Game/Props", "/Game/Env"},
		UseSelection: false,
	})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestEncodeArgs(t *testing.T) {
	got := EncodeArgs("/scripts/entry.sh", testRequest(t))
	want := []string{
		"/scripts/entry.sh",
		"Recommend",
		"PC_Balanced",
		"true",
		"100",
		"/Game/Props,/Game/Env",
		"",
		"false",
		"Meshes,Textures,Materials",
	}
	if !slices.Equal(got, want) {
		t.Errorf("EncodeArgs() =\n%q\nwant\n%q", got, want)
	}
	if len(got) != ArgCount {
		t.Errorf("len(EncodeArgs()) = %d, want %d", len(got), ArgCount)
	}
}

func TestDecodeArgs_RoundTrip(t *testing.T) {
	req := testRequest(t)
	script, decoded, err := DecodeArgs(EncodeArgs("/scripts/entry.sh", req))
	if err != nil {
		t.Fatalf("DecodeArgs() error = %v", err)
	}
	if script != "/scripts/entry.sh" {
		t.Errorf("script = %q", script)
	}
	if decoded.Phase() != req.Phase() || decoded.Profile() != req.Profile() ||
		decoded.DryRun() != req.DryRun() || decoded.MaxChanges() != req.MaxChanges() ||
		decoded.UseSelection() != req.UseSelection() {
		t.Errorf("decoded = %+v, want %+v", decoded, req)
	}
	if !slices.Equal(decoded.Categories().Labels(), req.Categories().Labels()) {
		t.Errorf("categories = %v, want %v (order preserved)", decoded.Categories().Labels(), req.Categories().Labels())
	}
	if !slices.Equal(decoded.IncludePaths(), req.IncludePaths()) {
		t.Errorf("include = %v, want %v", decoded.IncludePaths(), req.IncludePaths())
	}
	if len(decoded.ExcludePaths()) != 0 {
		t.Errorf("exclude = %v, want empty", decoded.ExcludePaths())
	}
}

func TestDecodeArgs_RoundTripPaths(t *testing.T) {
	opts := optimize.RequestOptions{
		Phase:        optimize.PhaseAudit,
		Categories:   optimize.DefaultCategories(),
		Profile:      "PC_Balanced",
		MaxChanges:   10,
		IncludePaths: []string{"/Game/My Props", "/Game/Env"},
		ExcludePaths: []string{"/Game/Dev"},
	}
	req, err := optimize.NewRequest(opts)
	if err != nil {
		t.Fatal(err)
	}
	_, decoded, err := DecodeArgs(EncodeArgs("/s", req))
	if err != nil {
		t.Fatalf("DecodeArgs() error = %v", err)
	}
	if !slices.Equal(decoded.IncludePaths(), req.IncludePaths()) || !slices.Equal(decoded.ExcludePaths(), req.ExcludePaths()) {
		t.Errorf("paths = %v / %v, want %v / %v", decoded.IncludePaths(), decoded.ExcludePaths(), req.IncludePaths(), req.ExcludePaths())
	}

	// A comma inside a path cannot survive the comma-joined list, so the
	// request is rejected before it reaches the wire.
	opts.IncludePaths = []string{"/Game/a,b"}
	if _, err := optimize.NewRequest(opts); !errors.Is(err, optimize.ErrInvalidPath) {
		t.Errorf("NewRequest(comma path) error = %v, want ErrInvalidPath", err)
	}
}

func TestDecodeArgs_Malformed(t *testing.T) {
	valid := EncodeArgs("/s", testRequest(t))
	with := func(i int, v string) []string {
		argv := slices.Clone(valid)
		argv[i] = v
		return argv
	}

	tests := []struct {
		name string
		argv []string
	}{
		{"too short", valid[:8]},
		{"bad phase", with(1, "Optimize")},
		{"bad dry run", with(3, "yes")},
		{"bad max changes", with(4, "lots")},
		{"bad use selection", with(7, "1")},
		{"empty categories", with(8, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeArgs(tt.argv)
			if err == nil {
				t.Fatal("DecodeArgs() should fail")
			}
			if !errors.Is(err, ErrMalformedArgs) {
				t.Errorf("error does not wrap ErrMalformedArgs: %v", err)
			}
		})
	}
}

func TestCommandLine_QuotesEachArgument(t *testing.T) {
	argv := []string{"%s|", "Audit", "it's", "", "a b", "$HOME;rm -rf /"}
	line, err := CommandLine("printf", argv)
	if err != nil {
		t.Fatalf("CommandLine() error = %v", err)
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(line), "line")
	if err != nil {
		t.Fatalf("command line does not parse: %v\n%s", err, line)
	}
	var out bytes.Buffer
	runner, err := interp.New(interp.StdIO(nil, &out, &out))
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Run(context.Background(), file); err != nil {
		t.Fatalf("command line run failed: %v", err)
	}
	if got, want := out.String(), "Audit|it's||a b|$HOME;rm -rf /|"; got != want {
		t.Errorf("printf saw %q, want %q", got, want)
	}
}

func TestQuoteArgs_RejectsNUL(t *testing.T) {
	if _, err := QuoteArgs([]string{"a\x00b"}); err == nil {
		t.Error("QuoteArgs() should reject NUL bytes")
	}
}

func TestResultFilePath(t *testing.T) {
	if got, want := ResultFilePath("out", "run_1"), filepath.Join("out", "run_1.result.json"); got != want {
		t.Errorf("ResultFilePath(run) = %s, want %s", got, want)
	}
	if got, want := ResultFilePath("out", ""), filepath.Join("out", LegacyResultFile); got != want {
		t.Errorf("ResultFilePath(no run) = %s, want %s", got, want)
	}
}

func TestEnv_Pairs(t *testing.T) {
	got := Env{OutputPath: "/o.json", RunID: "run_1"}.Pairs()
	want := []string{"MAGICOPTIMIZER_OUTPUT=/o.json", "MAGICOPTIMIZER_RUN_ID=run_1"}
	if !slices.Equal(got, want) {
		t.Errorf("Pairs() = %v, want %v", got, want)
	}
}
