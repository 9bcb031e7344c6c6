package worker

import (
	"encoding/json"
	"strings"
)

// Result is the parsed body of a worker's MC_RESULT marker line.
type Result struct {
	Status       string   `json:"status"`
	Commits      []string `json:"commits"`
	Summary      string   `json:"summary"`
	FilesChanged []string `json:"files_changed"`
	Discoveries  []string `json:"discoveries"`
	Concerns     []string `json:"concerns"`
}

const resultMarker = "MC_RESULT:"

// ParseMCResult scans output for the terminal MC_RESULT:{...} marker
// and decodes its JSON payload.
//
// It follows the same fallback chain as the teacher's Claude CLI output
// parser: locate the last marker, try a strict decode of everything
// after it; on failure, fall back to extracting the outermost {...}
// brace span from the marker onward. Returns ok=false (never an error)
// when no usable payload is found. The dispatcher fails the unit with a
// data error when ok is false, whatever the process's exit code.
func ParseMCResult(output string) (result Result, ok bool) {
	idx := strings.LastIndex(output, resultMarker)
	if idx < 0 {
		return Result{}, false
	}
	rest := output[idx+len(resultMarker):]

	var r Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &r); err == nil {
		return normalize(r), true
	}

	start := strings.Index(rest, "{")
	end := strings.LastIndex(rest, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}
	if err := json.Unmarshal([]byte(rest[start:end+1]), &r); err != nil {
		return Result{}, false
	}
	return normalize(r), true
}

// normalize replaces missing or null MC_RESULT list fields with empty
// slices. A list field present with a non-list value is not guarded:
// the decode fails and ParseMCResult returns ok=false.
func normalize(r Result) Result {
	if r.Commits == nil {
		r.Commits = []string{}
	}
	if r.FilesChanged == nil {
		r.FilesChanged = []string{}
	}
	if r.Discoveries == nil {
		r.Discoveries = []string{}
	}
	if r.Concerns == nil {
		r.Concerns = []string{}
	}
	return r
}
