// Package filter condenses the server's drained output before it is shown.
package filter

import (
	"fmt"
	"strings"
)

// DedupeFilter collapses runs of identical consecutive lines
type DedupeFilter struct {
	lastLine string
	count    int
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool // false while the line repeats the previous one
	Count      int  // length of the current run (1 = first)
}

// Check determines if a line should be emitted or folded into the current run
func (f *DedupeFilter) Check(line string) DedupeResult {
	if f.count > 0 && line == f.lastLine {
		f.count++
		return DedupeResult{ShouldEmit: false, Count: f.count}
	}
	f.lastLine = line
	f.count = 1
	return DedupeResult{ShouldEmit: true, Count: 1}
}

// CollapseLines folds runs of identical consecutive lines in text into one
// line suffixed with the repeat count, e.g. "retrying (x3)".
func CollapseLines(text string) string {
	if text == "" {
		return ""
	}
	trailing := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var f DedupeFilter
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		res := f.Check(line)
		if res.ShouldEmit {
			out = append(out, line)
			continue
		}
		out[len(out)-1] = fmt.Sprintf("%s (x%d)", line, res.Count)
	}

	joined := strings.Join(out, "\n")
	if trailing {
		joined += "\n"
	}
	return joined
}
