package segment

import (
	"regexp"
	"unicode/utf8"
)

var whitespaceRunRE = regexp.MustCompile(`\s+`)

// splitOnSentenceBoundaries reimplements Python's
// `re.split(r"(?<=[.!?])\s+(?=[A-ZÀ-Ÿ\"‘’“”(])", text)`
// without lookaround: it finds each whitespace run, and treats it as a
// split point only when the rune immediately before the run is a sentence
// terminator and the rune immediately after is a sentence-starting rune.
// The whitespace itself is consumed by the split, exactly like the Python
// regex (the run is the matched text; only its neighbors are lookaround).
func splitOnSentenceBoundaries(text string) []string {
	matches := whitespaceRunRE.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var fragments []string
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		prev, ok := lastRuneBefore(text, start)
		if !ok || !isSentenceEnd(prev) {
			continue
		}
		next, ok := firstRuneAt(text, end)
		if !ok || !isSentenceStart(next) {
			continue
		}
		fragments = append(fragments, text[last:start])
		last = end
	}
	fragments = append(fragments, text[last:])
	return fragments
}

func lastRuneBefore(s string, pos int) (rune, bool) {
	if pos == 0 {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:pos])
	if r == utf8.RuneError {
		return 0, false
	}
	return r, true
}

func firstRuneAt(s string, pos int) (rune, bool) {
	if pos >= len(s) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s[pos:])
	if r == utf8.RuneError {
		return 0, false
	}
	return r, true
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isSentenceStart mirrors the Python character class [A-ZÀ-Ÿ"‘’“”(],
// including the Unicode ordering quirk of the literal À-Ÿ range: as written,
// À (U+00C0) to Ÿ (U+0178) spans not just accented capitals but also the
// lowercase à-ÿ block and several Latin Extended-A letters in between. The
// port preserves that range exactly rather than "fixing" it, since it's the
// original's actual matching behavior.
func isSentenceStart(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 0x00C0 && r <= 0x0178:
		return true
	case r == '"' || r == '(':
		return true
	case r == '‘' || r == '’' || r == '“' || r == '”':
		return true
	default:
		return false
	}
}
