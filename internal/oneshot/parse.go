package oneshot

import (
	"encoding/json"
	"strings"
)

// ParseTranscript extracts the transcript from CLI stdout. The tool is
// expected to end its output with a single-line JSON object carrying a
// "text" field; diagnostics may be interleaved before it. When no JSON
// object is found the last non-diagnostic plain line is used. An empty
// result means the audio carried no recognizable speech.
func ParseTranscript(out string) string {
	lines := strings.Split(out, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		s := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(s, "{") {
			continue
		}
		var obj struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj.Text != nil {
			return strings.TrimSpace(*obj.Text)
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		s := strings.TrimSpace(lines[i])
		if s == "" || isDiagnostic(s) {
			continue
		}
		return stripTimestamp(s)
	}
	return ""
}

func isDiagnostic(s string) bool {
	if strings.HasPrefix(s, "PROGRESS:") {
		return true
	}
	lower := strings.ToLower(s)
	for _, p := range []string{"whisper_", "ggml_", "main:", "system_info:", "error:", "warning:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// stripTimestamp drops a leading "[00:00:00.000 --> 00:00:02.000]" segment
// marker when the tool printed timestamped transcript lines.
func stripTimestamp(s string) string {
	if !strings.HasPrefix(s, "[") {
		return s
	}
	end := strings.Index(s, "]")
	if end < 0 || !strings.Contains(s[:end], "-->") {
		return s
	}
	return strings.TrimSpace(s[end+1:])
}
