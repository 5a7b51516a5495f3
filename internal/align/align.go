// Package align implements the four alignment strategies of spec.md §4.6:
// external_id, position, similarity, and the external_id_then_position
// hybrid. Each strategy produces unit-level 1-1 alignment_links between a
// pivot document and one or more target documents, plus a coverage and
// diagnostics report.
//
// Grounded on original_source's aligner.py: the external_id/position/hybrid
// strategies and their report shape are a direct structural port; the
// greedy similarity strategy reuses its Levenshtein edit-distance scoring.
package align

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// DefaultSimilarityThreshold is the minimum score a similarity match must
// reach to produce a link.
const DefaultSimilarityThreshold = 0.8

// Options controls one alignment run.
type Options struct {
	RunID               string
	Debug               bool
	SimilarityThreshold float64
}

func docTitle(ctx context.Context, store *storage.Store, docID int64) string {
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Sprintf("doc_%d", docID)
	}
	return doc.Title
}

type lineRow struct {
	unitID     int64
	n          int
	externalID *int
	textNorm   string
}

func loadDocLineRows(ctx context.Context, store *storage.Store, docID int64) ([]lineRow, error) {
	units, err := store.ListUnits(ctx, docID, kindPtr(models.UnitLine))
	if err != nil {
		return nil, err
	}
	rows := make([]lineRow, len(units))
	for i, u := range units {
		rows[i] = lineRow{unitID: u.ID, n: u.N, externalID: u.ExternalID, textNorm: u.TextNorm}
	}
	return rows, nil
}

func kindPtr(k models.UnitKind) *models.UnitKind { return &k }

// extMap groups line rows by external_id, returning the unit IDs per id
// (in document order, so [0] is always the "first" when duplicates exist)
// and the sorted list of ids that occur more than once.
func extMap(rows []lineRow) (map[int][]int64, []int) {
	m := map[int][]int64{}
	for _, r := range rows {
		if r.externalID == nil {
			continue
		}
		m[*r.externalID] = append(m[*r.externalID], r.unitID)
	}
	var dups []int
	for eid, ids := range m {
		if len(ids) > 1 {
			dups = append(dups, eid)
		}
	}
	sort.Ints(dups)
	return m, dups
}

func sortedKeys(m map[int][]int64) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func intersect(a, b map[int][]int64) []int {
	var out []int
	for id := range a {
		if _, ok := b[id]; ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func setDiff(a, b map[int][]int64) []int {
	var out []int
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func newLink(runID string, pivotUID, targetUID, pivotDocID, targetDocID int64, extID *int) *models.AlignmentLink {
	return &models.AlignmentLink{
		RunID:        runID,
		PivotUnitID:  pivotUID,
		TargetUnitID: targetUID,
		PivotDocID:   pivotDocID,
		TargetDocID:  targetDocID,
		ExternalID:   extID,
		ReviewStatus: models.ReviewUnreviewed,
	}
}

// AlignPair aligns one (pivot, target) document pair on shared external_id
// values. When duplicates exist on either side the first unit (lowest n)
// is used. Grounded on original_source's align_pair.
func AlignPair(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64, opt Options) (*models.AlignmentReport, error) {
	pivotRows, err := loadDocLineRows(ctx, store, pivotDocID)
	if err != nil {
		return nil, fmt.Errorf("align pair: load pivot lines: %w", err)
	}
	targetRows, err := loadDocLineRows(ctx, store, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align pair: load target lines: %w", err)
	}

	pivotMap, pivotDups := extMap(pivotRows)
	targetMap, targetDups := extMap(targetRows)
	common := intersect(pivotMap, targetMap)

	report := &models.AlignmentReport{
		PivotDocID:       pivotDocID,
		TargetDocID:      targetDocID,
		PivotTitle:       docTitle(ctx, store, pivotDocID),
		TargetTitle:      docTitle(ctx, store, targetDocID),
		PivotLineCount:   len(pivotMap),
		TargetLineCount:  len(targetMap),
		Matched:          common,
		MissingInTarget:  setDiff(pivotMap, targetMap),
		MissingInPivot:   setDiff(targetMap, pivotMap),
		DuplicatesPivot:  pivotDups,
		DuplicatesTarget: targetDups,
	}
	appendDupAndCoverageWarnings(report, pivotDups, targetDups)

	var links []*models.AlignmentLink
	var sample []map[string]interface{}
	for _, eid := range common {
		eid := eid
		pivotUID := pivotMap[eid][0]
		targetUID := targetMap[eid][0]
		links = append(links, newLink(opt.RunID, pivotUID, targetUID, pivotDocID, targetDocID, &eid))
		if opt.Debug && len(sample) < 20 {
			sample = append(sample, map[string]interface{}{
				"phase": "external_id", "pivot_unit_id": pivotUID, "target_unit_id": targetUID, "external_id": eid,
			})
		}
	}
	if err := store.CreateAlignmentLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("align pair: %w", err)
	}
	report.LinksCreated = len(links)
	if opt.Debug {
		report.Debug = map[string]interface{}{
			"strategy":      "external_id",
			"link_sources":  map[string]int{"external_id": len(links)},
			"sample_links":  sample,
		}
	}
	return report, nil
}

func appendDupAndCoverageWarnings(report *models.AlignmentReport, pivotDups, targetDups []int) {
	if len(pivotDups) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("duplicate external_id(s) in pivot doc %d: %v", report.PivotDocID, pivotDups))
	}
	if len(targetDups) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("duplicate external_id(s) in target doc %d: %v", report.TargetDocID, targetDups))
	}
	if len(report.MissingInTarget) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d external_id(s) in pivot missing from target", len(report.MissingInTarget)))
	}
	if len(report.MissingInPivot) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d external_id(s) in target missing from pivot", len(report.MissingInPivot)))
	}
}

// AlignByExternalID aligns pivotDocID against each of targetDocIDs,
// returning one report per pair.
func AlignByExternalID(ctx context.Context, store *storage.Store, pivotDocID int64, targetDocIDs []int64, opt Options) ([]*models.AlignmentReport, error) {
	reports := make([]*models.AlignmentReport, 0, len(targetDocIDs))
	for _, t := range targetDocIDs {
		r, err := AlignPair(ctx, store, pivotDocID, t, opt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AlignPairByPosition aligns a (pivot, target) pair by shared sequential
// position n, ignoring external_id entirely. Grounded on
// original_source's align_pair_by_position.
func AlignPairByPosition(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64, opt Options) (*models.AlignmentReport, error) {
	pivotRows, err := loadDocLineRows(ctx, store, pivotDocID)
	if err != nil {
		return nil, fmt.Errorf("align by position: load pivot lines: %w", err)
	}
	targetRows, err := loadDocLineRows(ctx, store, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align by position: load target lines: %w", err)
	}

	pivotPos := map[int]int64{}
	for _, r := range pivotRows {
		pivotPos[r.n] = r.unitID
	}
	targetPos := map[int]int64{}
	for _, r := range targetRows {
		targetPos[r.n] = r.unitID
	}

	var common, missingTarget, missingPivot []int
	for n := range pivotPos {
		if _, ok := targetPos[n]; ok {
			common = append(common, n)
		} else {
			missingTarget = append(missingTarget, n)
		}
	}
	for n := range targetPos {
		if _, ok := pivotPos[n]; !ok {
			missingPivot = append(missingPivot, n)
		}
	}
	sort.Ints(common)
	sort.Ints(missingTarget)
	sort.Ints(missingPivot)

	report := &models.AlignmentReport{
		PivotDocID:      pivotDocID,
		TargetDocID:     targetDocID,
		PivotTitle:      docTitle(ctx, store, pivotDocID),
		TargetTitle:     docTitle(ctx, store, targetDocID),
		PivotLineCount:  len(pivotPos),
		TargetLineCount: len(targetPos),
		Matched:         common,
		MissingInTarget: missingTarget,
		MissingInPivot:  missingPivot,
	}
	if len(missingTarget) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d position(s) in pivot missing from target", len(missingTarget)))
	}
	if len(missingPivot) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d position(s) in target missing from pivot", len(missingPivot)))
	}

	var links []*models.AlignmentLink
	var sample []map[string]interface{}
	for _, n := range common {
		n := n
		pivotUID, targetUID := pivotPos[n], targetPos[n]
		links = append(links, newLink(opt.RunID, pivotUID, targetUID, pivotDocID, targetDocID, &n))
		if opt.Debug && len(sample) < 20 {
			sample = append(sample, map[string]interface{}{"phase": "position", "pivot_unit_id": pivotUID, "target_unit_id": targetUID, "position": n})
		}
	}
	if err := store.CreateAlignmentLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("align by position: %w", err)
	}
	report.LinksCreated = len(links)
	if opt.Debug {
		report.Debug = map[string]interface{}{
			"strategy":     "position",
			"link_sources": map[string]int{"position": len(links)},
			"sample_links": sample,
		}
	}
	return report, nil
}

// AlignByPosition aligns pivotDocID against each of targetDocIDs by
// position, returning one report per pair.
func AlignByPosition(ctx context.Context, store *storage.Store, pivotDocID int64, targetDocIDs []int64, opt Options) ([]*models.AlignmentReport, error) {
	reports := make([]*models.AlignmentReport, 0, len(targetDocIDs))
	for _, t := range targetDocIDs {
		r, err := AlignPairByPosition(ctx, store, pivotDocID, t, opt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AlignPairBySimilarity aligns a (pivot, target) pair by greedy
// Levenshtein-based text similarity: for each pivot line, in order, the
// highest-scoring unmatched target line is chosen; a link is created only
// if the best score meets threshold. Each target line is consumed at most
// once. Grounded on original_source's align_pair_by_similarity.
func AlignPairBySimilarity(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64, opt Options) (*models.AlignmentReport, error) {
	threshold := opt.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	pivotRows, err := loadDocLineRows(ctx, store, pivotDocID)
	if err != nil {
		return nil, fmt.Errorf("align by similarity: load pivot lines: %w", err)
	}
	targetRows, err := loadDocLineRows(ctx, store, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align by similarity: load target lines: %w", err)
	}

	report := &models.AlignmentReport{
		PivotDocID:      pivotDocID,
		TargetDocID:     targetDocID,
		PivotTitle:      docTitle(ctx, store, pivotDocID),
		TargetTitle:     docTitle(ctx, store, targetDocID),
		PivotLineCount:  len(pivotRows),
		TargetLineCount: len(targetRows),
	}

	usedTarget := map[int64]bool{}
	var links []*models.AlignmentLink
	var sample []map[string]interface{}
	var scores []float64

	for _, p := range pivotRows {
		bestScore := -1.0
		var bestUID int64
		found := false
		for _, t := range targetRows {
			if usedTarget[t.unitID] {
				continue
			}
			score := similarity(p.textNorm, t.textNorm)
			if score > bestScore {
				bestScore = score
				bestUID = t.unitID
				found = true
			}
		}
		if found && bestScore >= threshold {
			usedTarget[bestUID] = true
			n := p.n
			links = append(links, newLink(opt.RunID, p.unitID, bestUID, pivotDocID, targetDocID, &n))
			report.Matched = append(report.Matched, int(p.unitID))
			scores = append(scores, bestScore)
			if opt.Debug && len(sample) < 20 {
				sample = append(sample, map[string]interface{}{
					"phase": "similarity", "pivot_unit_id": p.unitID, "target_unit_id": bestUID, "score": roundTo4(bestScore),
				})
			}
		} else {
			report.MissingInTarget = append(report.MissingInTarget, int(p.unitID))
		}
	}

	if err := store.CreateAlignmentLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("align by similarity: %w", err)
	}
	report.LinksCreated = len(links)
	if len(report.MissingInTarget) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d pivot unit(s) unmatched (similarity < %.2f)", len(report.MissingInTarget), threshold))
	}
	if opt.Debug {
		stats := map[string]interface{}{"matched_count": len(scores)}
		if len(scores) > 0 {
			min, max, sum := scores[0], scores[0], 0.0
			for _, s := range scores {
				if s < min {
					min = s
				}
				if s > max {
					max = s
				}
				sum += s
			}
			stats["score_min"] = roundTo4(min)
			stats["score_max"] = roundTo4(max)
			stats["score_mean"] = roundTo4(sum / float64(len(scores)))
		}
		report.Debug = map[string]interface{}{
			"strategy":          "similarity",
			"threshold":         threshold,
			"link_sources":      map[string]int{"similarity": len(links)},
			"similarity_stats":  stats,
			"sample_links":      sample,
		}
	}
	return report, nil
}

func roundTo4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}

// AlignBySimilarity aligns pivotDocID against each of targetDocIDs using
// edit-distance similarity, returning one report per pair.
func AlignBySimilarity(ctx context.Context, store *storage.Store, pivotDocID int64, targetDocIDs []int64, opt Options) ([]*models.AlignmentReport, error) {
	reports := make([]*models.AlignmentReport, 0, len(targetDocIDs))
	for _, t := range targetDocIDs {
		r, err := AlignPairBySimilarity(ctx, store, pivotDocID, t, opt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AlignPairExternalIDThenPosition aligns by external_id first (phase 1,
// anchor links), then fills remaining unmatched lines by shared position n
// among what's left on both sides (phase 2, monotone fallback). Grounded
// on original_source's align_pair_external_id_then_position.
func AlignPairExternalIDThenPosition(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64, opt Options) (*models.AlignmentReport, error) {
	pivotRows, err := loadDocLineRows(ctx, store, pivotDocID)
	if err != nil {
		return nil, fmt.Errorf("align hybrid: load pivot lines: %w", err)
	}
	targetRows, err := loadDocLineRows(ctx, store, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("align hybrid: load target lines: %w", err)
	}

	pivotMap, pivotDups := extMap(pivotRows)
	targetMap, targetDups := extMap(targetRows)
	commonExt := intersect(pivotMap, targetMap)

	report := &models.AlignmentReport{
		PivotDocID:       pivotDocID,
		TargetDocID:      targetDocID,
		PivotTitle:       docTitle(ctx, store, pivotDocID),
		TargetTitle:      docTitle(ctx, store, targetDocID),
		PivotLineCount:   len(pivotRows),
		TargetLineCount:  len(targetRows),
		Matched:          commonExt,
		MissingInTarget:  setDiff(pivotMap, targetMap),
		MissingInPivot:   setDiff(targetMap, pivotMap),
		DuplicatesPivot:  pivotDups,
		DuplicatesTarget: targetDups,
	}
	appendDupAndCoverageWarnings(report, pivotDups, targetDups)

	usedPivot := map[int64]bool{}
	usedTarget := map[int64]bool{}
	var links []*models.AlignmentLink
	var sample []map[string]interface{}
	externalIDLinks := 0

	for _, eid := range commonExt {
		eid := eid
		pivotUID := pivotMap[eid][0]
		targetUID := targetMap[eid][0]
		usedPivot[pivotUID] = true
		usedTarget[targetUID] = true
		links = append(links, newLink(opt.RunID, pivotUID, targetUID, pivotDocID, targetDocID, &eid))
		externalIDLinks++
		if opt.Debug && len(sample) < 20 {
			sample = append(sample, map[string]interface{}{"phase": "external_id", "pivot_unit_id": pivotUID, "target_unit_id": targetUID, "external_id": eid})
		}
	}

	pivotRemaining := map[int]int64{}
	for _, r := range pivotRows {
		if !usedPivot[r.unitID] {
			pivotRemaining[r.n] = r.unitID
		}
	}
	targetRemaining := map[int]int64{}
	for _, r := range targetRows {
		if !usedTarget[r.unitID] {
			targetRemaining[r.n] = r.unitID
		}
	}
	var commonPos []int
	for n := range pivotRemaining {
		if _, ok := targetRemaining[n]; ok {
			commonPos = append(commonPos, n)
		}
	}
	sort.Ints(commonPos)

	positionLinks := 0
	for _, n := range commonPos {
		n := n
		pivotUID, targetUID := pivotRemaining[n], targetRemaining[n]
		links = append(links, newLink(opt.RunID, pivotUID, targetUID, pivotDocID, targetDocID, &n))
		positionLinks++
		if opt.Debug && len(sample) < 20 {
			sample = append(sample, map[string]interface{}{"phase": "position", "pivot_unit_id": pivotUID, "target_unit_id": targetUID, "position": n})
		}
	}

	if err := store.CreateAlignmentLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("align hybrid: %w", err)
	}
	if len(commonPos) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("position fallback created %d link(s)", len(commonPos)))
	}
	report.LinksCreated = len(links)
	if opt.Debug {
		report.Debug = map[string]interface{}{
			"strategy":     "external_id_then_position",
			"link_sources": map[string]int{"external_id": externalIDLinks, "position": positionLinks},
			"sample_links": sample,
		}
	}
	return report, nil
}

// AlignByExternalIDThenPosition aligns pivotDocID against each of
// targetDocIDs using the hybrid strategy, returning one report per pair.
func AlignByExternalIDThenPosition(ctx context.Context, store *storage.Store, pivotDocID int64, targetDocIDs []int64, opt Options) ([]*models.AlignmentReport, error) {
	reports := make([]*models.AlignmentReport, 0, len(targetDocIDs))
	for _, t := range targetDocIDs {
		r, err := AlignPairExternalIDThenPosition(ctx, store, pivotDocID, t, opt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Run dispatches to the requested strategy.
func Run(ctx context.Context, store *storage.Store, strategy models.AlignmentStrategy, pivotDocID int64, targetDocIDs []int64, opt Options) ([]*models.AlignmentReport, error) {
	switch strategy {
	case models.StrategyExternalID:
		return AlignByExternalID(ctx, store, pivotDocID, targetDocIDs, opt)
	case models.StrategyPosition:
		return AlignByPosition(ctx, store, pivotDocID, targetDocIDs, opt)
	case models.StrategySimilarity:
		return AlignBySimilarity(ctx, store, pivotDocID, targetDocIDs, opt)
	case models.StrategyExternalIDThenPosition:
		return AlignByExternalIDThenPosition(ctx, store, pivotDocID, targetDocIDs, opt)
	default:
		return nil, apierr.Validation("unknown alignment strategy %q", strategy)
	}
}

// AddDocRelation records a declarative pivot<->target relationship
// ("translation_of" or "excerpt_of"), grounded on original_source's
// add_doc_relation.
func AddDocRelation(ctx context.Context, store *storage.Store, docID int64, relationType string, targetDocID int64) error {
	if relationType != "translation_of" && relationType != "excerpt_of" {
		return apierr.Validation("relation_type must be translation_of or excerpt_of, got %q", relationType)
	}
	return store.CreateDocRelation(ctx, &models.DocRelation{DocID: docID, RelationType: relationType, TargetDocID: targetDocID})
}
