// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/history"
	"github.com/perseusxr/magicopt/internal/optimize"
	"github.com/perseusxr/magicopt/internal/orchestrator"
	"github.com/perseusxr/magicopt/internal/testutil"

	"github.com/charmbracelet/log"
)

type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return s.cfg, s.err
}

// recordingInvoker returns result and remembers every request.
type recordingInvoker struct {
	mu     sync.Mutex
	reqs   []optimize.Request
	result *optimize.Result
}

func (r *recordingInvoker) Invoke(_ context.Context, _ string, req optimize.Request) *optimize.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.result.Clone()
}

func (r *recordingInvoker) requests() []optimize.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reqs)
}

type testApp struct {
	app    *App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProjectDir = t.TempDir()
	cfg.History.Enabled = false
	return cfg
}

func newTestApp(cfg *config.Config, inv orchestrator.Invoker) *testApp {
	ta := &testApp{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	deps := Dependencies{
		Config: staticConfig{cfg: cfg},
		Stdout: ta.stdout,
		Stderr: ta.stderr,
	}
	if inv != nil {
		deps.NewInvoker = func(*config.Config, *log.Logger) orchestrator.Invoker { return inv }
	}
	ta.app = NewApp(deps)
	return ta
}

func (ta *testApp) execute(args ...string) error {
	root := NewRootCommand(ta.app)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestGetVersionString(t *testing.T) {
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2025-06-15T10:00:00Z"
	if got, want := getVersionString(), "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}

	Version = "dev"
	if got, want := getVersionString(), "dev (built from source)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}
}

func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantPhase optimize.Phase
		wantCats  []string
		wantErr   error
	}{
		{"defaults", nil, optimize.PhaseAudit, []string{"Textures", "Meshes", "Materials"}, nil},
		{"phase only", []string{"recommend"}, optimize.PhaseRecommend, []string{"Textures", "Meshes", "Materials"}, nil},
		{"phase and categories", []string{"Apply", "Meshes,Textures"}, optimize.PhaseApply, []string{"Meshes", "Textures"}, nil},
		{"unknown phase", []string{"Deploy"}, "", nil, optimize.ErrInvalidPhase},
		{"empty categories", []string{"Audit", " , "}, "", nil, optimize.ErrInvalidCategories},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, cats, err := parseRunArgs(tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseRunArgs() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRunArgs() error = %v", err)
			}
			if phase != tt.wantPhase {
				t.Errorf("phase = %q, want %q", phase, tt.wantPhase)
			}
			if !slices.Equal(cats.Labels(), tt.wantCats) {
				t.Errorf("categories = %v, want %v", cats.Labels(), tt.wantCats)
			}
		})
	}
}

func TestRun_DefaultsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimizer.Profile = "Console_High"
	cfg.Optimizer.ExcludePaths = []string{"/Game/Dev"}
	inv := &recordingInvoker{result: &optimize.Result{Success: true, Message: "all good", AssetsProcessed: 9}}
	ta := newTestApp(cfg, inv)

	if err := ta.execute("run"); err != nil {
		t.Fatalf("run error = %v\nstderr: %s", err, ta.stderr)
	}

	reqs := inv.requests()
	if len(reqs) != 1 {
		t.Fatalf("invoker called %d times, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Phase() != optimize.PhaseAudit || req.Categories().CSV() != "Textures,Meshes,Materials" {
		t.Errorf("request = %s %s, want defaults", req.Phase(), req.Categories().CSV())
	}
	if req.Profile() != "Console_High" || !req.DryRun() || req.MaxChanges() != config.DefaultMaxChanges {
		t.Errorf("request did not take config defaults: profile=%q dryRun=%v max=%d", req.Profile(), req.DryRun(), req.MaxChanges())
	}
	if !slices.Equal(req.ExcludePaths(), []string{"/Game/Dev"}) {
		t.Errorf("ExcludePaths() = %v", req.ExcludePaths())
	}

	out := ta.stdout.String()
	for _, want := range []string{"all good", "completed", "run_", "9"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(ta.stderr.String(), orchestrator.PhaseInitializing) {
		t.Errorf("stderr should show progress, got:\n%s", ta.stderr)
	}
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	inv := &recordingInvoker{result: &optimize.Result{Success: true}}
	ta := newTestApp(testConfig(t), inv)

	err := ta.execute("run", "verify", "Materials,Textures",
		"--profile", "Mobile_Low", "--dry-run=false", "--max-changes", "5",
		"--include", "/Game/A", "--include", "/Game/B", "--use-selection")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	req := inv.requests()[0]
	if req.Phase() != optimize.PhaseVerify {
		t.Errorf("Phase() = %q, want Verify", req.Phase())
	}
	if got := req.Categories().Labels(); !slices.Equal(got, []string{"Materials", "Textures"}) {
		t.Errorf("Categories() = %v, want caller order", got)
	}
	if req.Profile() != "Mobile_Low" || req.DryRun() || req.MaxChanges() != 5 || !req.UseSelection() {
		t.Errorf("flags not applied: profile=%q dryRun=%v max=%d sel=%v", req.Profile(), req.DryRun(), req.MaxChanges(), req.UseSelection())
	}
	if !slices.Equal(req.IncludePaths(), []string{"/Game/A", "/Game/B"}) {
		t.Errorf("IncludePaths() = %v", req.IncludePaths())
	}
}

func TestRun_InvalidPhaseDoesNotInvoke(t *testing.T) {
	inv := &recordingInvoker{result: &optimize.Result{Success: true}}
	ta := newTestApp(testConfig(t), inv)

	err := ta.execute("run", "Deploy")
	if !errors.Is(err, optimize.ErrInvalidPhase) {
		t.Fatalf("run error = %v, want ErrInvalidPhase", err)
	}
	if n := len(inv.requests()); n != 0 {
		t.Errorf("invoker called %d times, want 0", n)
	}
}

func TestRun_FailureReturnsExitError(t *testing.T) {
	inv := &recordingInvoker{result: optimize.FailedResult("Optimization failed", "boom")}
	ta := newTestApp(testConfig(t), inv)

	err := ta.execute("run")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitRunFailed {
		t.Fatalf("run error = %v, want ExitError code %d", err, ExitRunFailed)
	}
	out := ta.stdout.String()
	if !strings.Contains(out, "boom") || !strings.Contains(out, "failed") {
		t.Errorf("stdout should report the failure:\n%s", out)
	}
}

func TestRun_ConfigLoadError(t *testing.T) {
	ta := newTestApp(nil, nil)
	ta.app.Config = staticConfig{err: errors.New("bad file")}

	if err := ta.execute("run"); err == nil || !strings.Contains(err.Error(), "bad file") {
		t.Fatalf("run error = %v, want config error", err)
	}
}

func TestRun_JSONOutput(t *testing.T) {
	inv := &recordingInvoker{result: &optimize.Result{Success: true, Message: "done", AssetsModified: 2}}
	ta := newTestApp(testConfig(t), inv)

	if err := ta.execute("run", "Audit", "Textures", "--json"); err != nil {
		t.Fatalf("run error = %v", err)
	}

	var doc runReport
	if err := json.Unmarshal(ta.stdout.Bytes(), &doc); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, ta.stdout)
	}
	if doc.Status != "completed" || doc.Phase != "Audit" || !slices.Equal(doc.Categories, []string{"Textures"}) {
		t.Errorf("report = %+v", doc)
	}
	if doc.Result == nil || doc.Result.Message != "done" || doc.Result.AssetsModified != 2 {
		t.Errorf("report result = %+v", doc.Result)
	}
}

func TestRun_SmokeTestThroughBridge(t *testing.T) {
	ta := newTestApp(testConfig(t), nil)

	if err := ta.execute("run", "Audit", "Textures,Meshes"); err != nil {
		t.Fatalf("run error = %v\nstderr: %s", err, ta.stderr)
	}
	if !strings.Contains(ta.stdout.String(), "smoke test") {
		t.Errorf("stdout should carry the smoke-test message:\n%s", ta.stdout)
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	inv := &recordingInvoker{result: &optimize.Result{Success: true, Message: "journaled"}}
	ta := newTestApp(cfg, inv)

	if err := ta.execute("run", "Recommend"); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !testutil.FileExists(cfg.HistoryPath()) {
		t.Fatalf("history database not created at %s", cfg.HistoryPath())
	}

	ta.stdout.Reset()
	if err := ta.execute("history", "--json"); err != nil {
		t.Fatalf("history error = %v", err)
	}
	var entries []history.Entry
	if err := json.Unmarshal(ta.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, ta.stdout)
	}
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}
	if entries[0].Phase != "Recommend" || entries[0].Status != orchestrator.StatusCompleted || entries[0].Message != "journaled" {
		t.Errorf("entry = %+v", entries[0])
	}

	ta.stdout.Reset()
	if err := ta.execute("history", "show", entries[0].RunID); err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if !strings.Contains(ta.stdout.String(), "journaled") {
		t.Errorf("history show output:\n%s", ta.stdout)
	}

	if err := ta.execute("history", "show", "run_missing"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("history show unknown error = %v, want ErrNotFound", err)
	}
}

func TestRun_NoHistoryFlag(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	ta := newTestApp(cfg, &recordingInvoker{result: &optimize.Result{Success: true}})

	if err := ta.execute("run", "--no-history"); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if testutil.FileExists(cfg.HistoryPath()) {
		t.Errorf("history database should not exist with --no-history")
	}
}

func TestHistory_Disabled(t *testing.T) {
	ta := newTestApp(testConfig(t), nil)
	if err := ta.execute("history"); err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(ta.stdout.String(), "disabled") {
		t.Errorf("stdout = %q, want disabled notice", ta.stdout)
	}
}

func TestBridgeStatus(t *testing.T) {
	cfg := testConfig(t)
	ta := newTestApp(cfg, nil)

	if err := ta.execute("bridge", "status"); err != nil {
		t.Fatalf("bridge status error = %v", err)
	}
	out := ta.stdout.String()
	if !strings.Contains(out, "embedded-smoke-test") || !strings.Contains(out, cfg.ScriptPath()) {
		t.Errorf("bridge status output:\n%s", out)
	}
}

func TestBridgePlan(t *testing.T) {
	cfg := testConfig(t)
	testutil.MustWriteScript(t, cfg.ScriptPath(), "#!/bin/sh\nexit 0\n")
	ta := newTestApp(cfg, nil)

	if err := ta.execute("bridge", "plan", "Apply", "Textures", "--profile", "Mobile_Low"); err != nil {
		t.Fatalf("bridge plan error = %v", err)
	}
	out := ta.stdout.String()
	for _, want := range []string{"embedded-script", "MAGICOPTIMIZER_OUTPUT=", filepath.Base(cfg.ScriptPath()), "Mobile_Low"} {
		if !strings.Contains(out, want) {
			t.Errorf("bridge plan output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_Formats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimizer.IncludePaths = []string{"/Game/Env"}

	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"Current Configuration", "PC_Balanced", "/Game/Env"}},
		{"toml", []string{"[optimizer]", "PC_Balanced", "max_changes = 100"}},
		{"json", []string{`"profile": "PC_Balanced"`, `"include_paths": [`}},
		{"cue", []string{"optimizer: {", `profile: "PC_Balanced"`}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			ta := newTestApp(cfg, nil)
			if err := ta.execute("config", "show", "--format", tt.format); err != nil {
				t.Fatalf("config show error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(ta.stdout.String(), want) {
					t.Errorf("output missing %q:\n%s", want, ta.stdout)
				}
			}
		})
	}

	ta := newTestApp(cfg, nil)
	if err := ta.execute("config", "show", "--format", "yaml"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestConfigInitAndPath(t *testing.T) {
	dir := t.TempDir()
	config.SetConfigDirOverride(dir)
	t.Cleanup(config.Reset)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	ta := newTestApp(testConfig(t), nil)
	if err := ta.execute("config", "path"); err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(ta.stdout.String(), "not found") {
		t.Errorf("config path before init = %q", ta.stdout)
	}

	ta.stdout.Reset()
	if err := ta.execute("config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	want := filepath.Join(dir, "config.cue")
	if !testutil.FileExists(want) {
		t.Fatalf("config init did not create %s", want)
	}

	ta.stdout.Reset()
	if err := ta.execute("config", "init"); err != nil {
		t.Fatalf("second config init error = %v", err)
	}
	if !strings.Contains(ta.stdout.String(), "already exists") {
		t.Errorf("second init output = %q", ta.stdout)
	}

	ta.stdout.Reset()
	if err := ta.execute("config", "path"); err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if strings.TrimSpace(ta.stdout.String()) != want {
		t.Errorf("config path = %q, want %q", ta.stdout, want)
	}
}
