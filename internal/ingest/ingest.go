// Package ingest defines the importer handoff contract (spec.md §4.2): a
// finite ordered sequence of (kind, text_raw, external_id?) triples handed
// from a format-specific importer to the storage layer, plus the
// external_id diagnostics shared by every importer.
//
// Grounded on original_source's docx_numbered_lines.py/txt.py: the numbered
// line pattern `^\[\s*(\d+)\s*\]\s*(.+)$`, the duplicate/hole/non-monotonic
// analysis, and the "blank lines are skipped, the rest advance n" counting
// convention all come from there.
package ingest

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
	"github.com/hyperjump/agrafes/internal/textnorm"
)

// Importer parses a byte stream into an ordered sequence of line specs.
// DOCX and TEI importers are deliberately not implemented (out of scope);
// PlainTextImporter is the one built-in implementation.
type Importer interface {
	Parse(r io.Reader) ([]models.LineSpec, error)
}

// Report is the diagnostic summary produced by one import operation,
// grounded on docx_numbered_lines.ImportReport.
type Report struct {
	DocID          int64    `json:"doc_id"`
	UnitsTotal     int      `json:"units_total"`
	UnitsLine      int      `json:"units_line"`
	UnitsStructure int      `json:"units_structure"`
	Duplicates     []int    `json:"duplicates"`
	Holes          []int    `json:"holes"`
	NonMonotonic   []int    `json:"non_monotonic"`
	Warnings       []string `json:"warnings"`
}

// AnalyzeExternalIDs returns (duplicates, holes, non_monotonic) describing
// the supplied external_id sequence in encounter order. A hole is any
// integer strictly between the minimum and maximum present value that does
// not itself appear; non-monotonic flags any id that does not strictly
// increase over its immediate predecessor.
func AnalyzeExternalIDs(ids []int) (duplicates, holes, nonMonotonic []int) {
	seen := make(map[int]bool, len(ids))
	dupSeen := make(map[int]bool)
	for i, id := range ids {
		if seen[id] && !dupSeen[id] {
			duplicates = append(duplicates, id)
			dupSeen[id] = true
		}
		seen[id] = true
		if i > 0 && id <= ids[i-1] {
			nonMonotonic = append(nonMonotonic, id)
		}
	}

	present := make(map[int]bool, len(ids))
	uniq := make([]int, 0, len(ids))
	for _, id := range ids {
		if !present[id] {
			present[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Ints(uniq)
	if len(uniq) > 0 {
		for expected := uniq[0]; expected <= uniq[len(uniq)-1]; expected++ {
			if !present[expected] {
				holes = append(holes, expected)
			}
		}
	}
	return duplicates, holes, nonMonotonic
}

// Params bundles the document metadata accompanying an import.
type Params struct {
	Title        string
	Language     string
	DocRole      models.DocRole
	ResourceType string
	SourcePath   string
	SourceHash   string
}

// Run creates a new document and its unit sequence from the importer's
// parsed line specs, normalizing text and computing external_id
// diagnostics. Grounded on import_txt_numbered_lines's create-document,
// then bulk-insert-units, then analyze-and-warn flow.
func Run(ctx context.Context, store *storage.Store, imp Importer, r io.Reader, p Params) (*Report, error) {
	specs, err := imp.Parse(r)
	if err != nil {
		return nil, apierr.BadRequest("parse import source: %v", err)
	}

	doc, err := store.CreateDocument(ctx, &models.Document{
		Title:        p.Title,
		Language:     p.Language,
		Role:         p.DocRole,
		ResourceType: p.ResourceType,
		SourcePath:   p.SourcePath,
		SourceHash:   p.SourceHash,
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	units := make([]*models.Unit, 0, len(specs))
	var externalIDs []int
	for i, spec := range specs {
		norm := textnorm.Normalize(spec.TextRaw)
		u := &models.Unit{
			Kind:       spec.Kind,
			N:          i + 1,
			ExternalID: spec.ExternalID,
			TextRaw:    spec.TextRaw,
			TextNorm:   norm,
		}
		if spec.ExternalID != nil {
			externalIDs = append(externalIDs, *spec.ExternalID)
			if sep := textnorm.CountSeparators(spec.TextRaw); sep > 0 {
				u.Metadata = map[string]interface{}{"sep_count": sep}
			}
		}
		units = append(units, u)
	}

	if _, err := store.ReplaceUnits(ctx, doc.ID, units); err != nil {
		return nil, fmt.Errorf("insert units: %w", err)
	}

	duplicates, holes, nonMonotonic := AnalyzeExternalIDs(externalIDs)
	report := &Report{
		DocID:          doc.ID,
		UnitsTotal:     len(units),
		UnitsLine:      len(externalIDs),
		UnitsStructure: len(units) - len(externalIDs),
		Duplicates:     duplicates,
		Holes:          holes,
		NonMonotonic:   nonMonotonic,
	}
	if len(duplicates) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("duplicate external_id(s) found: %v", duplicates))
	}
	if len(holes) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("holes in external_id sequence: %v", holes))
	}
	if len(nonMonotonic) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("non-monotonic external_id(s): %v", nonMonotonic))
	}
	return report, nil
}
