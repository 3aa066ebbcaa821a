// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perseusxr/magicopt/internal/bridge"
	"github.com/perseusxr/magicopt/internal/config"
	"github.com/perseusxr/magicopt/internal/optimize"
	"github.com/perseusxr/magicopt/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedInvoker blocks every call until release is closed.
type gatedInvoker struct {
	release chan struct{}
	started chan string
	result  *optimize.Result
	calls   atomic.Int32
}

func newGatedInvoker(res *optimize.Result) *gatedInvoker {
	return &gatedInvoker{
		release: make(chan struct{}),
		started: make(chan string, 4),
		result:  res,
	}
}

func (g *gatedInvoker) Invoke(ctx context.Context, runID string, _ optimize.Request) *optimize.Result {
	g.calls.Add(1)
	g.started <- runID
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return g.result.Clone()
}

type invokerFunc func(ctx context.Context, runID string, req optimize.Request) *optimize.Result

func (f invokerFunc) Invoke(ctx context.Context, runID string, req optimize.Request) *optimize.Result {
	return f(ctx, runID, req)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) kinds() []EventKind {
	var kinds []EventKind
	for _, ev := range r.all() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func testRequest(t *testing.T, labels ...string) optimize.Request {
	t.Helper()
	cats := optimize.DefaultCategories()
	if len(labels) > 0 {
		var err error
		cats, err = optimize.NewCategories(labels...)
		require.NoError(t, err)
	}
	req, err := optimize.NewRequest(optimize.RequestOptions{
		Phase:      optimize.PhaseAudit,
		Categories: cats,
		Profile:    config.DefaultProfile,
		DryRun:     true,
		MaxChanges: config.DefaultMaxChanges,
	})
	require.NoError(t, err)
	return req
}

func newTestOrchestrator(t *testing.T, inv Invoker, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(inv, opts...)
	t.Cleanup(o.Close)
	return o
}

func waitSettled(t *testing.T, o *Orchestrator) (Snapshot, *optimize.Result) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, res, err := o.Wait(ctx)
	require.NoError(t, err, "run did not settle")
	return snap, res
}

func TestStart_RunningBeforeStartReturns(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true, Message: "ok"})
	o := newTestOrchestrator(t, inv)

	runID, err := o.Start(testRequest(t))
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	snap := o.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, runID, snap.RunID)
	assert.False(t, snap.StartTime.IsZero())
	assert.True(t, snap.EndTime.IsZero())

	close(inv.release)
	snap, res := waitSettled(t, o)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "ok", res.Message)
	assert.InDelta(t, 100, snap.Progress, 0)
	assert.Equal(t, PhaseCompleted, snap.CurrentPhase)
}

func TestStart_RejectedWhileRunning(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true})
	o := newTestOrchestrator(t, inv)

	first, err := o.Start(testRequest(t, "Textures"))
	require.NoError(t, err)
	<-inv.started
	require.True(t, o.UpdateProgress(40, "Scanning", "T_Rock", 4, 10))
	before := o.Snapshot()

	second, err := o.Start(testRequest(t, "Meshes"))
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Empty(t, second)

	after := o.Snapshot()
	assert.Equal(t, first, after.RunID)
	assert.Equal(t, before.Status, after.Status)
	assert.InDelta(t, before.Progress, after.Progress, 0)
	assert.Equal(t, before.CurrentAsset, after.CurrentAsset)
	assert.Equal(t, []string{"Textures"}, after.Request.Categories().Labels())

	close(inv.release)
	waitSettled(t, o)
	assert.Equal(t, int32(1), inv.calls.Load())
}

func TestStart_InvalidRequest(t *testing.T) {
	o := newTestOrchestrator(t, newGatedInvoker(nil))

	_, err := o.Start(optimize.Request{})
	require.ErrorIs(t, err, optimize.ErrInvalidRequest)
	assert.Equal(t, StatusIdle, o.Snapshot().Status)
}

func TestStart_NoInvoker(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	_, err := o.Start(testRequest(t))
	require.ErrorIs(t, err, ErrNoInvoker)
}

func TestCancel_BeforeSettleWinsOverSuccess(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true, Message: "late success", Strategy: "system-process"})
	o := newTestOrchestrator(t, inv)
	rec := &recorder{}
	require.NoError(t, o.Subscribe(rec.handle))

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started

	require.True(t, o.Cancel())
	assert.True(t, o.Cancel(), "repeated cancel of a running run is accepted")
	assert.True(t, o.Snapshot().CancelRequested)

	close(inv.release)
	snap, res := waitSettled(t, o)
	assert.Equal(t, StatusCancelled, snap.Status)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, MsgCancelled, res.Message)
	assert.Equal(t, "system-process", res.Strategy)
	assert.NotEmpty(t, res.Warnings)

	o.Close()
	kinds := rec.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventCancelled, kinds[len(kinds)-1])
}

func TestCancel_BeforeInvocationSkipsInvoker(t *testing.T) {
	var calls atomic.Int32
	o := newTestOrchestrator(t, invokerFunc(func(context.Context, string, optimize.Request) *optimize.Result {
		calls.Add(1)
		return &optimize.Result{Success: true}
	}))
	req := testRequest(t)

	// Start and cancel in one owner turn so the worker's first check sees the flag.
	require.NoError(t, o.do(func() {
		o.state = runState{
			runID:           "run_manual",
			status:          StatusRunning,
			startTime:       o.clock.Now(),
			request:         req,
			cancelRequested: true,
		}
		o.done = make(chan struct{})
		o.workers.Add(1)
		go o.work("run_manual", req)
	}))

	snap, res := waitSettled(t, o)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Equal(t, MsgCancelled, res.Message)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCancel_NotRunning(t *testing.T) {
	o := newTestOrchestrator(t, newGatedInvoker(nil))
	assert.False(t, o.Cancel())
	assert.Equal(t, StatusIdle, o.Snapshot().Status)
}

func TestUpdateProgress_ClampedAndMonotonic(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true})
	o := newTestOrchestrator(t, inv)

	assert.False(t, o.UpdateProgress(10, "Scanning", "", 0, 0), "no run in progress")

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started

	require.True(t, o.UpdateProgress(150, "Scanning", "T_A", 1, 3))
	assert.InDelta(t, 100, o.Snapshot().Progress, 0)

	require.True(t, o.UpdateProgress(-5, "Scanning", "T_B", 2, 3))
	snap := o.Snapshot()
	assert.InDelta(t, 100, snap.Progress, 0, "progress never moves backwards")
	assert.Equal(t, "T_B", snap.CurrentAsset)
	assert.Equal(t, 2, snap.AssetsProcessed)
	assert.Equal(t, 3, snap.TotalAssets)
	assert.Equal(t, StatusRunning, snap.Status)

	close(inv.release)
	waitSettled(t, o)
	assert.False(t, o.UpdateProgress(50, "late", "", 0, 0))
}

func TestRun_SmokeTestWithoutScript(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectDir = t.TempDir()
	o := newTestOrchestrator(t, bridge.New(cfg))

	_, err := o.Start(testRequest(t, "Textures", "Meshes"))
	require.NoError(t, err)

	snap, res := waitSettled(t, o)
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, bridge.MsgSmokeTest, res.Message)
}

func TestRun_ScriptFailureFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectDir = t.TempDir()
	testutil.MustWriteScript(t, cfg.ScriptPath(), "#!/bin/sh\necho boom >&2\nexit 3\n")
	o := newTestOrchestrator(t, bridge.New(cfg))

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)

	snap, res := waitSettled(t, o)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Errors, "boom")
	assert.Equal(t, PhaseFailed, snap.CurrentPhase)
}

func TestRun_InvokerPanicAndNilResultFail(t *testing.T) {
	tests := []struct {
		name string
		inv  invokerFunc
		want string
	}{
		{
			name: "panic",
			inv: func(context.Context, string, optimize.Request) *optimize.Result {
				panic("kaboom")
			},
			want: "invoker panic: kaboom",
		},
		{
			name: "nil result",
			inv:  func(context.Context, string, optimize.Request) *optimize.Result { return nil },
			want: "invoker returned no result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, tt.inv)
			_, err := o.Start(testRequest(t))
			require.NoError(t, err)

			snap, res := waitSettled(t, o)
			assert.Equal(t, StatusFailed, snap.Status)
			assert.Contains(t, res.Errors, tt.want)
		})
	}
}

func TestRun_SequentialRunsGetDistinctIDs(t *testing.T) {
	o := newTestOrchestrator(t, invokerFunc(func(context.Context, string, optimize.Request) *optimize.Result {
		return &optimize.Result{Success: true}
	}))

	seen := map[string]bool{}
	for range 5 {
		id, err := o.Start(testRequest(t))
		require.NoError(t, err)
		waitSettled(t, o)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestRun_EndTimeNeverBeforeStart(t *testing.T) {
	clock := testutil.NewFakeClock(time.Time{})
	start := clock.Now()
	inv := newGatedInvoker(&optimize.Result{Success: true})
	o := newTestOrchestrator(t, inv, WithClock(clock))

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started

	clock.Advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, o.Snapshot().Duration())

	clock.Set(start.Add(-time.Hour))
	close(inv.release)
	snap, _ := waitSettled(t, o)
	assert.Equal(t, start, snap.StartTime)
	assert.Equal(t, start, snap.EndTime)
	assert.Equal(t, time.Duration(0), snap.Duration())
}

func TestEvents_OrderedWithSingleTerminal(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true, AssetsProcessed: 7})
	o := New(inv)
	rec := &recorder{}
	require.NoError(t, o.Subscribe(rec.handle))
	require.ErrorIs(t, o.Subscribe(nil), ErrNilHandler)

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started
	for _, v := range []float64{10, 20, 30} {
		require.True(t, o.UpdateProgress(v, "Scanning", "", int(v), 30))
	}
	close(inv.release)
	waitSettled(t, o)
	o.Close()

	events := rec.all()
	require.Len(t, events, 6)
	assert.Equal(t, []EventKind{
		EventProgress, EventProgress, EventProgress, EventProgress, EventProgress, EventCompleted,
	}, rec.kinds())

	assert.Equal(t, PhaseInitializing, events[0].Snapshot.CurrentPhase)
	for i, want := range []float64{0, 10, 20, 30, 100} {
		assert.InDelta(t, want, events[i].Snapshot.Progress, 0, "event %d", i)
		assert.Nil(t, events[i].Result)
	}

	terminal := events[len(events)-1]
	assert.True(t, terminal.Kind.IsTerminal())
	require.NotNil(t, terminal.Result)
	assert.Equal(t, 30, terminal.Snapshot.AssetsProcessed)
	assert.Equal(t, StatusCompleted, terminal.Snapshot.Status)
}

func TestEvents_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	o := New(invokerFunc(func(context.Context, string, optimize.Request) *optimize.Result {
		return &optimize.Result{Success: false, Message: "nope"}
	}))
	var terminals atomic.Int32
	require.NoError(t, o.Subscribe(func(ev Event) {
		if ev.Kind == EventProgress {
			panic("handler bug")
		}
		terminals.Add(1)
	}))

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	waitSettled(t, o)
	testutil.Eventually(t, 5*time.Second, func() bool { return terminals.Load() == 1 },
		"terminal event not delivered after a panicking handler")
	o.Close()

	assert.Equal(t, int32(1), terminals.Load())
}

func TestClose_CancelsInvocationContext(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: false, Message: "interrupted"})
	o := New(inv)

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started

	o.Close()

	snap := o.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "interrupted", o.Result().Message)

	_, err = o.Start(testRequest(t))
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, o.Cancel())

	select {
	case <-o.Done():
	default:
		t.Fatal("Done() should be closed after Close()")
	}
}

func TestWait_ContextExpires(t *testing.T) {
	inv := newGatedInvoker(&optimize.Result{Success: true})
	o := newTestOrchestrator(t, inv)

	_, err := o.Start(testRequest(t))
	require.NoError(t, err)
	<-inv.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, res, err := o.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Nil(t, res)

	close(inv.release)
	waitSettled(t, o)
}

func TestDone_ClosedBeforeFirstRun(t *testing.T) {
	o := newTestOrchestrator(t, newGatedInvoker(nil))
	select {
	case <-o.Done():
	default:
		t.Fatal("Done() should be closed before any run")
	}
	assert.Nil(t, o.Result())
}
