package textsearch

import "strings"

// stopwords is a fixed set of common English tokens dropped from keyword
// extraction since they carry no discriminating power in a code search.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "it": true, "for": true, "on": true,
	"with": true, "as": true, "at": true, "by": true, "from": true,
	"this": true, "that": true, "be": true, "are": true, "was": true,
	"were": true, "how": true, "what": true, "where": true, "when": true,
	"why": true, "does": true, "do": true, "can": true, "i": true,
}

func isKeywordRune(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '.'
}

// trimNonKeyword strips leading/trailing characters outside
// [A-Za-z0-9_.] from a whitespace-split token.
func trimNonKeyword(tok string) string {
	start := 0
	for start < len(tok) && !isKeywordRune(tok[start]) {
		start++
	}
	end := len(tok)
	for end > start && !isKeywordRune(tok[end-1]) {
		end--
	}
	return tok[start:end]
}

// ExtractKeywords splits query on whitespace, trims non-keyword edge
// characters, drops tokens under 2 characters and stopwords, and
// deduplicates while preserving first-seen order.
func ExtractKeywords(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(query) {
		tok = trimNonKeyword(tok)
		if len(tok) < 2 {
			continue
		}
		lower := strings.ToLower(tok)
		if stopwords[lower] {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, tok)
	}
	return out
}
