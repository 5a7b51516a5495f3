// Package query implements the FTS5-backed query engine (spec.md §4.5):
// segment and KWIC projections, limit+1 pagination, and the parallel-view
// join across alignment links.
//
// Grounded on original_source's query.py for the SQL join shape, the
// <<…>> highlight markers, and the KWIC tokenizer; the limit+1 pagination
// probe is spec.md's own addition (original_source does not paginate).
package query

import (
	"context"
	"fmt"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Defaults supplies the config-driven limits applied when a request leaves
// them unset.
type Defaults struct {
	DefaultLimit  int
	MaxLimit      int
	DefaultWindow int
}

// Run executes req against store and returns a paginated, projected
// response. Grounded on original_source's run_query, extended with
// limit+1 pagination per spec.md §4.5.
func Run(ctx context.Context, store *storage.Store, req models.QueryRequest, d Defaults) (*models.QueryResponse, error) {
	if req.Query == "" {
		return &models.QueryResponse{Hits: []models.QueryHit{}, Limit: req.Limit, Offset: req.Offset}, nil
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeSegment
	}
	if mode != models.ModeSegment && mode != models.ModeKWIC {
		return nil, apierr.Validation("unknown query mode %q: expected %q or %q", mode, models.ModeSegment, models.ModeKWIC)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = d.DefaultLimit
	}
	if limit > d.MaxLimit {
		return nil, apierr.Validation("limit %d exceeds max_limit %d", limit, d.MaxLimit)
	}
	offset := req.Offset
	if offset < 0 {
		return nil, apierr.Validation("offset must be >= 0, got %d", offset)
	}
	// Negative selects the config default; zero is a literal "no context"
	// request (spec.md §8 property 12), so it must not be coerced upward.
	window := req.Window
	if window < 0 {
		window = d.DefaultWindow
	}

	rows, err := store.SearchFTS(ctx, req.Query, storage.MatchFilters{
		Language:     req.Language,
		DocID:        req.DocID,
		ResourceType: req.ResourceType,
		DocRole:      req.DocRole,
	}, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	var hits []models.QueryHit
	for _, row := range rows {
		base := models.QueryHit{
			DocID:      row.DocID,
			UnitID:     row.UnitID,
			ExternalID: row.ExternalID,
			Language:   row.Language,
			Title:      row.Title,
			TextNorm:   row.TextNorm,
		}

		switch mode {
		case models.ModeSegment:
			hit := base
			hit.Text = highlightSegment(row.TextNorm, req.Query)
			if req.IncludeAligned {
				aligned, err := fetchAligned(ctx, store, row.UnitID, req.AlignedCap)
				if err != nil {
					return nil, err
				}
				hit.Aligned = aligned
			}
			hits = append(hits, hit)

		case models.ModeKWIC:
			var windows []kwicWindow
			if req.AllOccurrences {
				windows = kwicAll(row.TextNorm, req.Query, window)
			} else {
				windows = []kwicWindow{kwicFirst(row.TextNorm, req.Query, window)}
			}
			var aligned []models.AlignedUnit
			if req.IncludeAligned {
				aligned, err = fetchAligned(ctx, store, row.UnitID, req.AlignedCap)
				if err != nil {
					return nil, err
				}
			}
			for _, w := range windows {
				hit := base
				hit.Left, hit.Match, hit.Right = w.Left, w.Match, w.Right
				hit.Aligned = aligned
				hits = append(hits, hit)
			}
		}
	}

	resp := &models.QueryResponse{
		Hits:    hits,
		Limit:   limit,
		Offset:  offset,
		HasMore: hasMore,
		Total:   nil,
	}
	if hasMore {
		next := offset + limit
		resp.NextOffset = &next
	}
	return resp, nil
}

func fetchAligned(ctx context.Context, store *storage.Store, pivotUnitID int64, cap int) ([]models.AlignedUnit, error) {
	rows, err := store.AlignedTargets(ctx, pivotUnitID, cap)
	if err != nil {
		return nil, fmt.Errorf("fetch aligned units: %w", err)
	}
	out := make([]models.AlignedUnit, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AlignedUnit{
			DocID:      r.DocID,
			UnitID:     r.UnitID,
			Language:   r.Language,
			Title:      r.Title,
			ExternalID: r.ExternalID,
			TextNorm:   r.TextNorm,
		})
	}
	return out, nil
}
