// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/perseusxr/magicopt/internal/logging"
	"github.com/perseusxr/magicopt/internal/optimize"

	"github.com/charmbracelet/log"
)

const (
	// PhaseInitializing labels the progress the orchestrator reports before invoking.
	PhaseInitializing = "Initializing..."
	// PhaseCompleted labels the final progress of a run whose invocation succeeded.
	PhaseCompleted = "Completed"
	// PhaseFailed labels the final progress of a run whose invocation failed.
	PhaseFailed = "Failed"

	// MsgCancelled is the message of the result handed out for a cancelled run.
	MsgCancelled = "Optimization cancelled"

	minProgress = 0
	maxProgress = 100
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in flight.
	ErrAlreadyRunning = errors.New("an optimization run is already in progress")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("orchestrator is closed")
	// ErrNoInvoker is returned by Start when the orchestrator was built without an Invoker.
	ErrNoInvoker = errors.New("no invoker configured")
)

type (
	// Invoker performs one blocking invocation. *bridge.Bridge implements it.
	// The returned result must not be nil; a nil result is treated as failure.
	Invoker interface {
		Invoke(ctx context.Context, runID string, req optimize.Request) *optimize.Result
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	// Orchestrator runs at most one optimization at a time.
	Orchestrator struct {
		invoker  Invoker
		clock    Clock
		logger   *log.Logger
		newRunID func(Clock) string

		ops      chan func()
		quit     chan struct{}
		loopDone chan struct{}
		events   *dispatcher
		workers  sync.WaitGroup

		// invokeCtx is handed to the Invoker. Only Close cancels it.
		invokeCtx    context.Context
		invokeCancel context.CancelFunc
		closeOnce    sync.Once

		// Owned by the loop goroutine.
		state   runState
		done    chan struct{}
		closing bool

		// Written by the loop right before it exits.
		final       Snapshot
		finalResult *optimize.Result
	}
)

// WithClock sets the clock used for run timestamps.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRunIDGenerator replaces NewRunID.
func WithRunIDGenerator(fn func(Clock) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

// New creates an idle Orchestrator and starts its owner goroutine.
// Call Close to release it.
func New(invoker Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  invoker,
		clock:    realClock{},
		logger:   logging.Discard(),
		newRunID: func(c Clock) string { return NewRunID(c.Now()) },
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.invokeCtx, o.invokeCancel = context.WithCancel(context.Background())
	o.events = newDispatcher(o.logger)

	// Before the first run Done is already closed.
	o.done = make(chan struct{})
	close(o.done)

	go o.loop()
	return o
}

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	for {
		select {
		case op := <-o.ops:
			op()
		case <-o.quit:
			o.final = o.state.snapshot(o.clock.Now())
			o.finalResult = o.state.result.Clone()
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (o *Orchestrator) do(fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case o.ops <- op:
		<-finished
		return nil
	case <-o.loopDone:
		return ErrClosed
	}
}

// Start begins a run for req and returns its id. The run is Running when
// Start returns. While another run is Running it returns ErrAlreadyRunning
// and leaves that run untouched.
func (o *Orchestrator) Start(req optimize.Request) (string, error) {
	if valid, errs := req.IsValid(); !valid {
		return "", errs[0]
	}
	if o.invoker == nil {
		return "", ErrNoInvoker
	}

	var (
		runID string
		err   error
	)
	if doErr := o.do(func() {
		if o.closing {
			err = ErrClosed
			return
		}
		if !o.state.status.AcceptsStart() {
			o.logger.Warn("start ignored: run already in progress", "run", o.state.runID)
			err = ErrAlreadyRunning
			return
		}

		now := o.clock.Now()
		runID = o.newRunID(o.clock)
		o.state = runState{
			runID:     runID,
			status:    StatusRunning,
			startTime: now,
			request:   req,
		}
		o.done = make(chan struct{})
		o.logger.Info("run started", "run", runID, "phase", req.Phase(), "categories", req.Categories().CSV())

		o.workers.Add(1)
		go o.work(runID, req)
	}); doErr != nil {
		return "", doErr
	}
	return runID, err
}

func (o *Orchestrator) work(runID string, req optimize.Request) {
	defer o.workers.Done()

	var cancelled bool
	if err := o.do(func() {
		cancelled = o.state.cancelRequested
		if !cancelled {
			o.setProgress(minProgress, PhaseInitializing, "", 0, 0)
		}
	}); err != nil {
		return
	}

	var res *optimize.Result
	if !cancelled {
		res = o.invoke(runID, req)
	}

	// Close waits for workers before stopping the loop, so this hand-off lands.
	_ = o.do(func() { o.settle(runID, res) })
}

// invoke calls the Invoker and turns a panic or a nil result into a failure.
func (o *Orchestrator) invoke(runID string, req optimize.Request) (res *optimize.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("invoker panicked", "run", runID, "panic", r)
			res = optimize.FailedResult("Optimization failed", fmt.Sprintf("invoker panic: %v", r))
		}
		if res == nil {
			res = optimize.FailedResult("Optimization failed", "invoker returned no result")
		}
	}()
	return o.invoker.Invoke(o.invokeCtx, runID, req)
}

// settle records the terminal state of runID. Owner goroutine only.
func (o *Orchestrator) settle(runID string, res *optimize.Result) {
	if o.state.runID != runID || o.state.status != StatusRunning {
		return
	}

	switch {
	case o.state.cancelRequested:
		o.state.status = StatusCancelled
		discarded := &optimize.Result{Message: MsgCancelled}
		if res != nil {
			discarded.Strategy = res.Strategy
			discarded.AddWarning(fmt.Sprintf("discarded result of cancelled run (success=%t)", res.Success))
		}
		res = discarded
	case res.Success:
		o.setProgress(maxProgress, PhaseCompleted, "", max(o.state.assetsProcessed, res.AssetsProcessed), o.state.totalAssets)
		o.state.status = StatusCompleted
	default:
		o.setProgress(maxProgress, PhaseFailed, "", max(o.state.assetsProcessed, res.AssetsProcessed), o.state.totalAssets)
		o.state.status = StatusFailed
	}

	now := o.clock.Now()
	if now.Before(o.state.startTime) {
		now = o.state.startTime
	}
	o.state.endTime = now
	o.state.result = res

	snap := o.state.snapshot(now)
	o.logger.Info("run finished", "run", runID, "status", snap.Status, "duration", snap.Duration())
	o.events.push(Event{Kind: terminalKind(snap.Status), Snapshot: snap, Result: res.Clone()})
	close(o.done)
}

// Cancel requests cancellation of the running run. It returns false, and
// only logs, when nothing is running.
func (o *Orchestrator) Cancel() bool {
	var ok bool
	_ = o.do(func() {
		if o.state.status != StatusRunning {
			o.logger.Info("cancel ignored: no run in progress")
			return
		}
		ok = true
		if o.state.cancelRequested {
			return
		}
		o.state.cancelRequested = true
		o.logger.Info("cancellation requested", "run", o.state.runID)
	})
	return ok
}

// UpdateProgress records progress of the running run. value is clamped to
// [0,100] and never moves backwards within a run. It returns false when no
// run is in progress.
func (o *Orchestrator) UpdateProgress(value float64, phase, asset string, processed, total int) bool {
	var ok bool
	_ = o.do(func() {
		if o.state.status != StatusRunning {
			return
		}
		o.setProgress(value, phase, asset, processed, total)
		ok = true
	})
	return ok
}

// setProgress applies a progress update and queues its event. Owner goroutine only.
func (o *Orchestrator) setProgress(value float64, phase, asset string, processed, total int) {
	value = max(minProgress, min(maxProgress, value))
	if value > o.state.progress {
		o.state.progress = value
	}
	o.state.currentPhase = phase
	o.state.currentAsset = asset
	o.state.assetsProcessed = max(0, processed)
	o.state.totalAssets = max(0, total)

	o.logger.Debug("progress", "run", o.state.runID, "value", o.state.progress, "phase", phase, "asset", asset)
	o.events.push(Event{Kind: EventProgress, Snapshot: o.state.snapshot(o.clock.Now())})
}

// Snapshot returns a copy of the current run state.
func (o *Orchestrator) Snapshot() Snapshot {
	var snap Snapshot
	if err := o.do(func() { snap = o.state.snapshot(o.clock.Now()) }); err != nil {
		return o.final
	}
	return snap
}

// Result returns a copy of the last settled run's result, or nil.
func (o *Orchestrator) Result() *optimize.Result {
	var res *optimize.Result
	if err := o.do(func() { res = o.state.result.Clone() }); err != nil {
		return o.finalResult.Clone()
	}
	return res
}

// Done returns a channel closed when the current run settles. Before any run
// it is already closed.
func (o *Orchestrator) Done() <-chan struct{} {
	var done <-chan struct{}
	if err := o.do(func() { done = o.done }); err != nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return done
}

// Wait blocks until the current run settles or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, *optimize.Result, error) {
	select {
	case <-o.Done():
		return o.Snapshot(), o.Result(), nil
	case <-ctx.Done():
		return o.Snapshot(), nil, ctx.Err()
	}
}

// Subscribe registers handler for every event. Handlers run on a single
// dispatcher goroutine in event order; they must not call Subscribe or Close.
func (o *Orchestrator) Subscribe(handler func(Event)) error {
	return o.events.subscribe(handler)
}

// Close stops accepting runs, cancels the context of an in-flight
// invocation, waits for it to settle and delivers all queued events.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		_ = o.do(func() { o.closing = true })
		o.invokeCancel()
		o.workers.Wait()
		close(o.quit)
		<-o.loopDone
		o.events.close()
	})
}
