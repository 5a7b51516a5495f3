package align

import (
	"context"
	"fmt"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// auditSampleCap bounds how many orphan unit IDs are surfaced in a quality
// report, keeping the payload small for large corpora.
const auditSampleCap = 20

// Quality computes the aggregate coverage and integrity report for one
// pivot<->target pair: coverage percentage, orphan counts (pivot/target
// lines with no outgoing/incoming link), collisions (a pivot unit linked
// more than once), and review-status counts. Not present in
// original_source, which only reports per-run coverage; added per
// spec.md §4.6 to give curators a standing health view between runs.
func Quality(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64) (*models.AlignmentQuality, error) {
	totalPivot, err := store.CountLineUnits(ctx, pivotDocID)
	if err != nil {
		return nil, fmt.Errorf("align quality: %w", err)
	}

	links, err := store.ListAlignmentLinks(ctx, pivotDocID, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align quality: %w", err)
	}

	coveredPivot := map[int64]bool{}
	reviewCounts := map[string]int{}
	linkedPivotCount := map[int64]int{}
	for _, l := range links {
		coveredPivot[l.PivotUnitID] = true
		linkedPivotCount[l.PivotUnitID]++
		reviewCounts[string(l.ReviewStatus)]++
	}

	pivotUnits, err := store.ListUnits(ctx, pivotDocID, kindPtr(models.UnitLine))
	if err != nil {
		return nil, fmt.Errorf("align quality: %w", err)
	}
	targetUnits, err := store.ListUnits(ctx, targetDocID, kindPtr(models.UnitLine))
	if err != nil {
		return nil, fmt.Errorf("align quality: %w", err)
	}

	linkedTarget := map[int64]bool{}
	for _, l := range links {
		linkedTarget[l.TargetUnitID] = true
	}

	var orphanPivot, orphanTarget []int64
	for _, u := range pivotUnits {
		if !coveredPivot[u.ID] {
			orphanPivot = append(orphanPivot, u.ID)
		}
	}
	for _, u := range targetUnits {
		if !linkedTarget[u.ID] {
			orphanTarget = append(orphanTarget, u.ID)
		}
	}

	collisions, err := store.CollisionCounts(ctx, pivotDocID, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align quality: %w", err)
	}

	q := &models.AlignmentQuality{
		PivotDocID:         pivotDocID,
		TargetDocID:        targetDocID,
		TotalPivotUnits:    totalPivot,
		CoveredPivotUnits:  len(coveredPivot),
		OrphanPivotCount:   len(orphanPivot),
		OrphanTargetCount:  len(orphanTarget),
		CollisionCount:     collisions,
		ReviewStatusCounts: reviewCounts,
		OrphanPivotSample:  capInt64(orphanPivot, auditSampleCap),
		OrphanTargetSample: capInt64(orphanTarget, auditSampleCap),
	}
	if totalPivot > 0 {
		q.CoveragePct = float64(int(float64(len(coveredPivot))/float64(totalPivot)*10000+0.5)) / 100
	}
	return q, nil
}

func capInt64(ids []int64, n int) []int64 {
	if len(ids) <= n {
		return ids
	}
	return ids[:n]
}

// Audit returns one entry per link for a pivot<->target pair, newest run
// first, joining in the pivot/target unit text for human review. Grounded
// on spec.md §4.6's manual-review workflow; original_source has no
// equivalent (it never exposes a link-level listing, only pair reports).
func Audit(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64) ([]*models.AlignmentAuditEntry, error) {
	links, err := store.ListAlignmentLinks(ctx, pivotDocID, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align audit: %w", err)
	}
	entries := make([]*models.AlignmentAuditEntry, 0, len(links))
	for _, l := range links {
		pivotUnit, err := store.GetUnit(ctx, l.PivotUnitID)
		if err != nil {
			return nil, fmt.Errorf("align audit: %w", err)
		}
		targetUnit, err := store.GetUnit(ctx, l.TargetUnitID)
		if err != nil {
			return nil, fmt.Errorf("align audit: %w", err)
		}
		entries = append(entries, &models.AlignmentAuditEntry{
			LinkID:       l.ID,
			PivotUnitID:  l.PivotUnitID,
			TargetUnitID: l.TargetUnitID,
			ExternalID:   l.ExternalID,
			ReviewStatus: l.ReviewStatus,
			PivotText:    pivotUnit.TextNorm,
			TargetText:   targetUnit.TextNorm,
			CreatedAt:    l.CreatedAt,
		})
	}
	return entries, nil
}
