// Package segment implements the rule-based sentence segmenter (spec.md
// §4.4): splitting stored line units into sentence-level units, protecting
// known abbreviations and decimal numbers from false boundary detection.
//
// Grounded line-for-line on original_source's segmenter.py. One departure:
// Go's regexp (RE2) has no lookaround, so the sentence-boundary split that
// Python expresses as a single lookbehind/lookahead regex is reimplemented
// as an explicit scan over whitespace runs in split.go, checking the
// surrounding runes by hand; the abbreviation-protection regex has no
// lookaround and ports directly.
package segment

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	PackDefault  = "default"
	PackFRStrict = "fr_strict"
	PackENStrict = "en_strict"
)

var baseAbbrevPattern = `\b(?:M|Mme|Mmes|Dr|Prof|St|Sgt|Cdt|Lt|Cpt|Mlle|Mlles|No|Nos|Mr|Mrs|Ms)\.` +
	`|\b(?:Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.` +
	`|\b(?:p|pp|vol|ed|eds|fig|tab|art|sect|cf|vs|ibid|loc|op|cit)\.` +
	`|\d+\.\d+`

var packExtraAbbreviations = map[string][]string{
	PackDefault:  {},
	PackFRStrict: {"ann", "chap", "env", "etc", "par"},
	PackENStrict: {"approx", "dept", "misc", "chap"},
}

var abbrevREByPack = compileAbbrevRegexes()

func compileAbbrevRegexes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(packExtraAbbreviations))
	for pack, extras := range packExtraAbbreviations {
		pattern := baseAbbrevPattern
		if len(extras) > 0 {
			escaped := make([]string, len(extras))
			for i, e := range extras {
				escaped[i] = regexp.QuoteMeta(e)
			}
			pattern += `|\b(?:` + strings.Join(escaped, "|") + `)\.`
		}
		out[pack] = regexp.MustCompile(`(?i)` + pattern)
	}
	return out
}

// ResolveSegmentPack resolves a user-facing pack name ("", "auto", or an
// explicit pack name) to an internal pack key, defaulting by language when
// pack is empty or "auto".
func ResolveSegmentPack(pack, lang string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(pack))
	if raw == "" || raw == "auto" {
		normLang := strings.ToLower(strings.TrimSpace(lang))
		if normLang == "" {
			normLang = "und"
		}
		switch {
		case strings.HasPrefix(normLang, "fr"):
			return PackFRStrict, nil
		case strings.HasPrefix(normLang, "en"):
			return PackENStrict, nil
		default:
			return PackDefault, nil
		}
	}
	if _, ok := abbrevREByPack[raw]; !ok {
		supported := sortedPackNames()
		return "", fmt.Errorf("unknown segmentation pack: %q. use auto or one of: %s", raw, strings.Join(supported, ", "))
	}
	return raw, nil
}

func sortedPackNames() []string {
	names := make([]string, 0, len(abbrevREByPack))
	for name := range abbrevREByPack {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SegmentText splits text into sentence strings using the abbreviation-
// protected regex rules for the given language/pack. Returns an empty slice
// for empty input, a single-element slice containing the original text for
// whitespace-only input, and the original text as a single fragment if no
// split point is found.
func SegmentText(text, lang, pack string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return []string{text}, nil
	}

	resolvedPack, err := ResolveSegmentPack(pack, lang)
	if err != nil {
		return nil, err
	}
	abbrevRE := abbrevREByPack[resolvedPack]

	counter := 0
	placeholders := map[string]string{}
	protected := abbrevRE.ReplaceAllStringFunc(text, func(m string) string {
		ph := fmt.Sprintf("\x00A%d\x00", counter)
		placeholders[ph] = m
		counter++
		return ph
	})

	fragments := splitOnSentenceBoundaries(protected)

	var result []string
	for _, fragment := range fragments {
		restored := fragment
		for ph, original := range placeholders {
			restored = strings.ReplaceAll(restored, ph, original)
		}
		stripped := strings.TrimSpace(restored)
		if stripped != "" {
			result = append(result, stripped)
		}
	}
	if len(result) == 0 {
		return []string{strings.TrimSpace(text)}, nil
	}
	return result, nil
}
