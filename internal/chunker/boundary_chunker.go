package chunker

import (
	"regexp"
	"strings"
)

var boundaryPatterns = map[string]struct {
	fn    *regexp.Regexp
	class *regexp.Regexp
}{
	"python": {
		fn:    regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`),
		class: regexp.MustCompile(`^\s*class\s+(\w+)`),
	},
	"javascript": {
		fn:    regexp.MustCompile(`^\s*(?:function\s+(\w+)|(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:\([^)]*\)\s*=>|function))`),
		class: regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)`),
	},
	"typescript": {
		fn:    regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)|^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*[:=]`),
		class: regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`),
	},
	"java": {
		fn:    regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static)?\s*[\w<>\[\]]+\s+(\w+)\s*\(`),
		class: regexp.MustCompile(`^\s*(?:public|private|protected)?\s*class\s+(\w+)`),
	},
}

// chunkByBoundary splits source on regex-detected function/class boundaries
// using brace-depth to find each unit's end. Fallback path only, used when
// chunkByEntities can't parse the source with tree-sitter at all.
func chunkByBoundary(content, lang string) []boundaryUnit {
	pat, ok := boundaryPatterns[lang]
	if !ok {
		return nil
	}

	lines := strings.Split(content, "\n")
	var units []boundaryUnit

	var current strings.Builder
	currentStart := 1
	currentScope := ""
	braceCount := 0
	inUnit := false

	flush := func(endLine int) {
		if current.Len() == 0 {
			return
		}
		units = append(units, boundaryUnit{
			text:      current.String(),
			startLine: currentStart,
			endLine:   endLine,
			scopeName: currentScope,
		})
		current.Reset()
		inUnit = false
	}

	for i, line := range lines {
		lineNum := i + 1
		braceDelta := strings.Count(line, "{") - strings.Count(line, "}")

		if m := pat.fn.FindStringSubmatch(line); m != nil {
			if inUnit && braceCount <= 0 {
				flush(lineNum - 1)
			}
			current.Reset()
			current.WriteString(line)
			current.WriteByte('\n')
			currentStart = lineNum
			currentScope = firstNonEmpty(m[1:])
			braceCount = braceDelta
			inUnit = true
			continue
		}
		if m := pat.class.FindStringSubmatch(line); m != nil {
			if inUnit && braceCount <= 0 {
				flush(lineNum - 1)
			}
			current.Reset()
			current.WriteString(line)
			current.WriteByte('\n')
			currentStart = lineNum
			currentScope = firstNonEmpty(m[1:])
			braceCount = braceDelta
			inUnit = true
			continue
		}

		if inUnit {
			current.WriteString(line)
			current.WriteByte('\n')
			braceCount += braceDelta
			if braceCount <= 0 && strings.TrimSpace(line) != "" {
				flush(lineNum)
			}
		}
	}
	if inUnit {
		flush(len(lines))
	}

	return units
}

func firstNonEmpty(candidates []string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
