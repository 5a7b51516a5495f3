// Package textnorm implements the deterministic Unicode normalization policy
// that produces text_norm from text_raw at every unit ingestion point.
//
// Grounded on original_source/src/multicorpus_engine/unicode_policy.py.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SeparatorRune is the designated "segment-separator" code point (U+00A4,
// CURRENCY SIGN in the source corpus) that must never appear in text_norm.
const SeparatorRune = '¤'

// removeChars are invisible code points dropped entirely from text_norm.
var removeChars = map[rune]struct{}{
	'​': {}, // ZERO WIDTH SPACE
	'‌': {}, // ZERO WIDTH NON-JOINER
	'‍': {}, // ZERO WIDTH JOINER
	'⁠': {}, // WORD JOINER
	'﻿': {}, // BOM / ZERO WIDTH NO-BREAK SPACE
	'­': {}, // SOFT HYPHEN
}

// normalizeToSpace are characters mapped to an ASCII space.
var normalizeToSpace = map[rune]struct{}{
	' ':    {}, // NON-BREAKING SPACE
	' ':    {}, // NARROW NO-BREAK SPACE
	' ':    {}, // FIGURE SPACE
	' ':    {}, // THIN SPACE
	SeparatorRune: {}, // designated segment separator
}

func isStrippedControl(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n'
}

// Normalize applies the full Unicode normalization policy, producing text_norm
// from text_raw:
//
//  1. Unicode NFC composition.
//  2. Line-ending normalization: CRLF/CR -> LF.
//  3. Removal of invisible code points (ZWSP, ZWNJ, ZWJ, word-joiner, BOM, soft hyphen).
//  4. Mapping of NBSP/NNBSP/figure/thin spaces and the segment-separator to ASCII space.
//  5. Stripping of ASCII control characters except TAB and LF.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x). Empty
// input maps to empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	composed := norm.NFC.String(text)
	composed = strings.ReplaceAll(composed, "\r\n", "\n")
	composed = strings.ReplaceAll(composed, "\r", "\n")

	var b strings.Builder
	b.Grow(len(composed))
	for _, r := range composed {
		if _, drop := removeChars[r]; drop {
			continue
		}
		if _, toSpace := normalizeToSpace[r]; toSpace {
			b.WriteByte(' ')
			continue
		}
		if isStrippedControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TextDisplay returns a display-friendly, non-stored variant of text_raw in
// which the segment-separator is rendered as " | " so the author's intent
// stays visible in the UI.
func TextDisplay(textRaw string) string {
	return strings.ReplaceAll(textRaw, string(SeparatorRune), " | ")
}

// CountSeparators counts segment-separator occurrences in text_raw, used to
// populate the per-unit sep_count metadata field.
func CountSeparators(textRaw string) int {
	return strings.Count(textRaw, string(SeparatorRune))
}
