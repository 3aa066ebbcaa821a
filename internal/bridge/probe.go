// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"os"
	"os/exec"

	"github.com/perseusxr/magicopt/internal/config"
)

// ProbeEmbedded reports whether the embedded interpreter may be used. It is
// compiled in, so only the configuration switch can turn it off.
func ProbeEmbedded(cfg *config.Config) bool {
	return cfg != nil && cfg.Interpreter.Embedded
}

// ProbeScript reports whether path names an existing regular file.
func ProbeScript(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ProbeInterpreter resolves binary through PATH (or as a path when it
// contains a separator) and returns the executable location.
func ProbeInterpreter(binary string) (string, bool) {
	if binary == "" {
		return "", false
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}
	return path, true
}

// ProbeAll runs every probe for cfg.
func ProbeAll(cfg *config.Config) Probe {
	if cfg == nil {
		return Probe{}
	}
	p := Probe{
		Embedded:   ProbeEmbedded(cfg),
		ScriptPath: cfg.ScriptPath(),
	}
	p.ScriptFound = ProbeScript(p.ScriptPath)
	p.InterpreterPath, p.InterpreterFound = ProbeInterpreter(cfg.Interpreter.SystemBinary)
	return p
}
