// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/perseusxr/magicopt/internal/optimize"
)

// Report is the decoded result document. Each field records whether the
// script supplied a usable value for it.
type Report struct {
	Message         string
	HasMessage      bool
	AssetsProcessed int
	HasProcessed    bool
	AssetsModified  int
	HasModified     bool
	// Success is nil when the document has no boolean "success" key.
	Success *bool
}

// DecodeResult parses text as a JSON object and extracts the known fields.
// When the whole text is not an object, the last line that is one is used,
// so progress chatter before the document does not hide it. ok is false
// when no JSON object is found.
func DecodeResult(text string) (Report, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Report{}, false
	}
	if fields, ok := decodeObject([]byte(trimmed)); ok {
		return reportFromFields(fields), true
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if fields, ok := decodeObject([]byte(line)); ok {
			return reportFromFields(fields), true
		}
	}
	return Report{}, false
}

func decodeObject(data []byte) (map[string]json.RawMessage, bool) {
	if !bytes.HasPrefix(data, []byte("{")) {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// reportFromFields decodes each field independently; a field with the wrong
// JSON type is treated as absent.
func reportFromFields(fields map[string]json.RawMessage) Report {
	var r Report
	if raw, ok := fields["message"]; ok {
		r.HasMessage = json.Unmarshal(raw, &r.Message) == nil
	}
	if raw, ok := fields["assetsProcessed"]; ok {
		r.HasProcessed = json.Unmarshal(raw, &r.AssetsProcessed) == nil
	}
	if raw, ok := fields["assetsModified"]; ok {
		r.HasModified = json.Unmarshal(raw, &r.AssetsModified) == nil
	}
	if raw, ok := fields["success"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			r.Success = &b
		}
	}
	return r
}

// ApplyTo merges the report into res. A non-empty message replaces the
// default, counts replace the default only when positive, and an explicit
// success:false forces failure. Success:true never upgrades a failed result.
func (r Report) ApplyTo(res *optimize.Result) {
	if res == nil {
		return
	}
	if r.HasMessage && r.Message != "" {
		res.Message = r.Message
	}
	if r.HasProcessed && r.AssetsProcessed > 0 {
		res.AssetsProcessed = r.AssetsProcessed
	}
	if r.HasModified && r.AssetsModified > 0 {
		res.AssetsModified = r.AssetsModified
	}
	if r.Success != nil && !*r.Success {
		res.Success = false
	}
}
