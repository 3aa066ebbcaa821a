// SPDX-License-Identifier: MPL-2.0

package protocol

import "path/filepath"

const (
	// EnvOutput names the file the script writes its result document to.
	EnvOutput = "MAGICOPTIMIZER_OUTPUT"
	// EnvLog names the log file the script may append to. Only set when a
	// log file is configured.
	EnvLog = "MAGICOPTIMIZER_LOG"
	// EnvRunID carries the orchestrator's run identifier.
	EnvRunID = "MAGICOPTIMIZER_RUN_ID"
	// EnvScript carries the resolved entry script path.
	EnvScript = "MAGICOPTIMIZER_SCRIPT"

	// LegacyResultFile is the fixed result name used when no run ID is known.
	LegacyResultFile = "last_result.json"
	resultFileSuffix = ".result.json"
)

// ResultFilePath returns the run-scoped result file inside outputDir, or
// the legacy fixed name when runID is empty.
func ResultFilePath(outputDir, runID string) string {
	if runID == "" {
		return filepath.Join(outputDir, LegacyResultFile)
	}
	return filepath.Join(outputDir, runID+resultFileSuffix)
}

// Env is the set of protocol variables handed to one invocation.
type Env struct {
	OutputPath string
	LogPath    string
	RunID      string
	ScriptPath string
}

// Pairs renders the variables as KEY=value entries. Empty values are omitted.
func (e Env) Pairs() []string {
	var pairs []string
	add := func(k, v string) {
		if v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	add(EnvOutput, e.OutputPath)
	add(EnvLog, e.LogPath)
	add(EnvRunID, e.RunID)
	add(EnvScript, e.ScriptPath)
	return pairs
}
