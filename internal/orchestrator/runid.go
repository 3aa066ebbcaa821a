// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

const runIDTimeLayout = "20060102_150405"

// NewRunID returns run_<UTC yyyymmdd_hhmmss>_<8 hex chars of a random UUID>.
func NewRunID(now time.Time) string {
	return "run_" + now.UTC().Format(runIDTimeLayout) + "_" + uuid.New().String()[:8]
}

// Clock supplies the orchestrator's notion of now.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
