// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"time"

	"github.com/perseusxr/magicopt/internal/optimize"
)

// runState is the mutable run record. Only the owner goroutine touches it.
type runState struct {
	runID           string
	status          Status
	progress        float64
	currentPhase    string
	currentAsset    string
	assetsProcessed int
	totalAssets     int
	startTime       time.Time
	endTime         time.Time
	cancelRequested bool
	request         optimize.Request
	result          *optimize.Result
}

// Snapshot is a copy of the run state taken on the owner goroutine.
type Snapshot struct {
	RunID           string
	Status          Status
	Progress        float64
	CurrentPhase    string
	CurrentAsset    string
	AssetsProcessed int
	TotalAssets     int
	StartTime       time.Time
	EndTime         time.Time
	CancelRequested bool
	Request         optimize.Request
	// TakenAt is the orchestrator clock reading when the copy was made.
	TakenAt time.Time
}

func (s *runState) snapshot(now time.Time) Snapshot {
	return Snapshot{
		RunID:           s.runID,
		Status:          s.status,
		Progress:        s.progress,
		CurrentPhase:    s.currentPhase,
		CurrentAsset:    s.currentAsset,
		AssetsProcessed: s.assetsProcessed,
		TotalAssets:     s.totalAssets,
		StartTime:       s.startTime,
		EndTime:         s.endTime,
		CancelRequested: s.cancelRequested,
		Request:         s.request,
		TakenAt:         now,
	}
}

// Duration is end-start for a settled run and TakenAt-start while running.
// It is zero before the first run.
func (s Snapshot) Duration() time.Duration {
	switch {
	case s.StartTime.IsZero():
		return 0
	case !s.EndTime.IsZero():
		return s.EndTime.Sub(s.StartTime)
	case s.TakenAt.After(s.StartTime):
		return s.TakenAt.Sub(s.StartTime)
	default:
		return 0
	}
}
