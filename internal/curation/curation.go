// Package curation implements rule-based text_norm post-processing (spec.md
// §4.7): regex substitution rules applied in sequence to a document's
// stored text_norm column, without touching text_raw or re-importing.
//
// Grounded on original_source's curation.py. One accepted behavioral
// difference (recorded in DESIGN.md): Go's regexp package is RE2, not
// Python's backtracking `re` — replacement strings use Go's `$1` capture
// syntax rather than Python's `\1`, and any pattern relying on
// backreferences or lookaround in the pattern itself (not supported by
// either engine's rule author in practice, since this spec's rules are
// meant to be simple substitutions) would need rewriting.
package curation

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Rule is a single regex substitution rule.
type Rule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Flags       string `json:"flags,omitempty"` // letters from {i, m, s}
	Description string `json:"description,omitempty"`

	compiled *regexp.Regexp
}

// Compile parses and validates the rule's pattern, translating the
// {i,m,s} flag letters into Go's inline flag-group syntax (e.g. "(?im)").
func (r *Rule) Compile() error {
	prefix := inlineFlags(r.Flags)
	re, err := regexp.Compile(prefix + r.Pattern)
	if err != nil {
		return apierr.Validation("invalid regex pattern %q: %v", r.Pattern, err)
	}
	r.compiled = re
	return nil
}

func inlineFlags(flags string) string {
	var letters []byte
	for _, want := range []byte{'i', 'm', 's'} {
		for _, f := range []byte(flags) {
			if f == want {
				letters = append(letters, want)
				break
			}
		}
	}
	if len(letters) == 0 {
		return ""
	}
	return "(?" + string(letters) + ")"
}

// RulesFromList compiles a list of rule specs, validating every pattern
// up front. Mirrors original_source's rules_from_list.
func RulesFromList(specs []Rule) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(specs))
	for i := range specs {
		r := specs[i]
		if err := r.Compile(); err != nil {
			return nil, err
		}
		rules = append(rules, &r)
	}
	return rules, nil
}

// ApplyRules applies every rule's substitution to text in sequence and
// returns the fully curated result.
func ApplyRules(text string, rules []*Rule) string {
	for _, r := range rules {
		text = r.compiled.ReplaceAllString(text, r.Replacement)
	}
	return text
}

// Report summarizes one curation operation, grounded on
// original_source's CurationReport.
type Report struct {
	DocID         int64    `json:"doc_id"`
	UnitsTotal    int      `json:"units_total"`
	UnitsModified int      `json:"units_modified"`
	RulesMatched  []string `json:"rules_matched,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// CurateDocument applies rules to every unit of docID, writing back only
// units whose text_norm actually changed. The FTS index is left stale —
// the caller must run indexer.Rebuild afterward; indexer.Repair only adds
// missing rows and does not refresh rows whose text_norm changed.
func CurateDocument(ctx context.Context, store *storage.Store, docID int64, rules []*Rule) (*Report, error) {
	units, err := store.ListUnits(ctx, docID, nil)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		return &Report{DocID: docID, Warnings: []string{fmt.Sprintf("no units found for doc_id=%d", docID)}}, nil
	}

	rulesFired := map[string]bool{}
	var updates []storage.TextUpdate
	for _, u := range units {
		original := u.TextNorm
		curated := ApplyRules(original, rules)
		if curated == original {
			continue
		}
		updates = append(updates, storage.TextUpdate{UnitID: u.ID, TextNorm: curated})
		for _, r := range rules {
			if r.compiled.MatchString(original) {
				label := r.Description
				if label == "" {
					label = r.Pattern
				}
				rulesFired[label] = true
			}
		}
	}

	if err := store.BatchUpdateTextNorm(ctx, updates); err != nil {
		return nil, fmt.Errorf("write curated units: %w", err)
	}

	matched := make([]string, 0, len(rulesFired))
	for label := range rulesFired {
		matched = append(matched, label)
	}
	sort.Strings(matched)

	return &Report{
		DocID:         docID,
		UnitsTotal:    len(units),
		UnitsModified: len(updates),
		RulesMatched:  matched,
	}, nil
}

// CurateAllDocuments applies rules to every document in the store, one
// Report per document, grounded on original_source's curate_all_documents.
func CurateAllDocuments(ctx context.Context, store *storage.Store, rules []*Rule) ([]*Report, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	reports := make([]*Report, 0, len(docs))
	for _, d := range docs {
		r, err := CurateDocument(ctx, store, d.ID, rules)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Example is one before/after sample in a PreviewReport.
type Example struct {
	UnitID int64  `json:"unit_id"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// PreviewReport summarizes a dry-run curation pass, grounded on spec.md
// §4.7's preview variant: same evaluation as CurateDocument but no write.
type PreviewReport struct {
	DocID             int64     `json:"doc_id"`
	UnitsTotal        int       `json:"units_total"`
	UnitsChanged      int       `json:"units_changed"`
	ReplacementsTotal int       `json:"replacements_total"`
	Examples          []Example `json:"examples,omitempty"`
}

const (
	defaultPreviewSamples = 10
	maxPreviewSamples     = 50
)

// PreviewDocument evaluates rules against docID's units without writing
// anything back. maxExamples is clamped to [1, maxPreviewSamples]; 0 uses
// the default.
func PreviewDocument(ctx context.Context, store *storage.Store, docID int64, rules []*Rule, maxExamples int) (*PreviewReport, error) {
	if maxExamples <= 0 {
		maxExamples = defaultPreviewSamples
	}
	if maxExamples > maxPreviewSamples {
		maxExamples = maxPreviewSamples
	}

	units, err := store.ListUnits(ctx, docID, nil)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}

	report := &PreviewReport{DocID: docID, UnitsTotal: len(units)}
	for _, u := range units {
		original := u.TextNorm
		curated := ApplyRules(original, rules)
		if curated == original {
			continue
		}
		report.UnitsChanged++
		for _, r := range rules {
			report.ReplacementsTotal += len(r.compiled.FindAllStringIndex(original, -1))
		}
		if len(report.Examples) < maxExamples {
			report.Examples = append(report.Examples, Example{UnitID: u.ID, Before: original, After: curated})
		}
	}
	return report, nil
}
