package segment

import (
	"context"
	"fmt"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Report summarizes one resegment operation, grounded on
// original_source's SegmentationReport.
type Report struct {
	DocID       int64    `json:"doc_id"`
	UnitsInput  int      `json:"units_input"`
	UnitsOutput int      `json:"units_output"`
	SegmentPack string   `json:"segment_pack"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Resegment replaces a document's line units with sentence-segmented units.
// Grounded on resegment_document: load line units ordered by n, segment
// each one's text_norm, delete alignment_links and old line units, insert
// the new sentence-level sequence (renumbered 1..N globally), and leave the
// FTS index stale — the caller must run indexer.Rebuild or indexer.Repair
// afterward.
func Resegment(ctx context.Context, store *storage.Store, docID int64, lang, pack string) (*Report, error) {
	lineKind := models.UnitLine
	rows, err := store.ListUnits(ctx, docID, &lineKind)
	if err != nil {
		return nil, fmt.Errorf("load line units: %w", err)
	}

	resolvedPack, err := ResolveSegmentPack(pack, lang)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return &Report{
			DocID:       docID,
			SegmentPack: resolvedPack,
			Warnings:    []string{fmt.Sprintf("no line units found for doc_id=%d", docID)},
		}, nil
	}

	var newUnits []*models.Unit
	globalN := 1
	for _, row := range rows {
		sentences, err := SegmentText(row.TextNorm, lang, resolvedPack)
		if err != nil {
			return nil, err
		}
		for _, sent := range sentences {
			newUnits = append(newUnits, &models.Unit{
				N:        globalN,
				TextRaw:  sent,
				TextNorm: sent,
			})
			globalN++
		}
	}

	result, err := store.ReplaceLineUnits(ctx, docID, newUnits)
	if err != nil {
		return nil, fmt.Errorf("replace line units: %w", err)
	}

	report := &Report{
		DocID:       docID,
		UnitsInput:  len(rows),
		UnitsOutput: len(result.Units),
		SegmentPack: resolvedPack,
	}
	if result.AlignmentLinksLost > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"deleted %d alignment_link(s) for doc_id=%d (stale after resegmentation)", result.AlignmentLinksLost, docID))
	}
	return report, nil
}
