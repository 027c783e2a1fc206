package chunker

import "strings"

// slidingWindow is the final fallback when neither AST parsing nor
// boundary-regex chunking found any units: pack lines into maxChunkSize
// windows with no semantic boundary awareness.
func slidingWindow(content string, maxChunkSize, overlapSize int) []boundaryUnit {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	var units []boundaryUnit
	start := 0
	for start < len(lines) {
		size := 0
		end := start
		for end < len(lines) && (size == 0 || size+len(lines[end]) <= maxChunkSize) {
			size += len(lines[end]) + 1
			end++
		}
		if end == start {
			end = start + 1
		}
		units = append(units, boundaryUnit{
			text:      strings.Join(lines[start:end], "\n"),
			startLine: start + 1,
			endLine:   end,
		})

		if end >= len(lines) {
			break
		}
		overlapLines := overlapSize / maxLineWidth(lines[start:end])
		next := end - overlapLines
		if next <= start {
			next = end
		}
		start = next
	}
	return units
}

func maxLineWidth(lines []string) int {
	w := 1
	for _, l := range lines {
		if len(l) > w {
			w = len(l)
		}
	}
	return w
}
