package query

import (
	"regexp"
	"strings"
)

const (
	highlightOpen  = "<<"
	highlightClose = ">>"
)

func queryTerms(q string) []string {
	var terms []string
	for _, t := range strings.Fields(q) {
		t = strings.Trim(t, `"`)
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func termsPattern(terms []string) *regexp.Regexp {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)(` + strings.Join(escaped, "|") + `)`)
}

// highlightSegment wraps every case-insensitive occurrence of any query
// term in text with << >> sentinel markers. Grounded on
// original_source's _highlight_segment.
func highlightSegment(text, q string) string {
	terms := queryTerms(q)
	if len(terms) == 0 {
		return text
	}
	re := termsPattern(terms)
	return re.ReplaceAllString(text, highlightOpen+"$1"+highlightClose)
}

type token struct {
	start, end int
	text       string
}

func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if start >= 0 {
				tokens = append(tokens, token{start, i, text[start:i]})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start, len(text), text[start:]})
	}
	return tokens
}

type kwicWindow struct {
	Left, Match, Right string
}

func pivotTokenIndex(tokens []token, matchStart int) int {
	for i, t := range tokens {
		if t.start <= matchStart && matchStart < t.end {
			return i
		}
	}
	return 0
}

func windowAround(tokens []token, pivot, window int) (left, right string) {
	lo := pivot - window
	if lo < 0 {
		lo = 0
	}
	hi := pivot + 1 + window
	if hi > len(tokens) {
		hi = len(tokens)
	}
	leftTokens := make([]string, 0, pivot-lo)
	for _, t := range tokens[lo:pivot] {
		leftTokens = append(leftTokens, t.text)
	}
	var rightTokens []string
	if pivot+1 < hi {
		for _, t := range tokens[pivot+1 : hi] {
			rightTokens = append(rightTokens, t.text)
		}
	}
	return strings.Join(leftTokens, " "), strings.Join(rightTokens, " ")
}

// kwicFirst returns the left/match/right window around the first query
// match in text. Grounded on original_source's _kwic_windows.
func kwicFirst(text, q string, window int) kwicWindow {
	terms := queryTerms(q)
	if len(terms) == 0 {
		return kwicWindow{Match: text}
	}
	re := termsPattern(terms)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return kwicWindow{Left: text}
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return kwicWindow{Match: text[loc[0]:loc[1]]}
	}
	pivot := pivotTokenIndex(tokens, loc[0])
	left, right := windowAround(tokens, pivot, window)
	return kwicWindow{Left: left, Match: text[loc[0]:loc[1]], Right: right}
}

// kwicAll returns one window per occurrence of any query term in text.
// Grounded on original_source's _all_kwic_windows.
func kwicAll(text, q string, window int) []kwicWindow {
	terms := queryTerms(q)
	if len(terms) == 0 {
		return []kwicWindow{{Match: text}}
	}
	re := termsPattern(terms)
	tokens := tokenize(text)
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	results := make([]kwicWindow, 0, len(locs))
	for _, loc := range locs {
		pivot := 0
		if len(tokens) > 0 {
			pivot = pivotTokenIndex(tokens, loc[0])
		}
		left, right := windowAround(tokens, pivot, window)
		results = append(results, kwicWindow{Left: left, Match: text[loc[0]:loc[1]], Right: right})
	}
	return results
}
