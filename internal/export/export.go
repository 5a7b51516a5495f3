// Package export writes query and alignment results to disk as plain
// functions over already-computed data (spec.md treats the format writers
// as out-of-scope "pure functions over query results"; this package gives
// the three job kinds the sidecar contract names -- export_tei,
// export_align_csv, export_run_report -- a concrete, minimal home rather
// than leaving the /export routes unimplemented).
//
// The CSV shape is grounded on original_source's csv_export.py
// (DictWriter over a fixed field list, segment vs kwic columns); TEI and
// run-report have no original_source counterpart and are new, built in
// the same "pure function writing one file" shape.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// teiDoc/teiText/teiBody/teiSeg mirror the minimal subset of TEI's <text><body>
// structure needed to round-trip a document's line units: one <seg> per
// line unit, its external_id (if any) carried as an @n attribute.
type teiDoc struct {
	XMLName xml.Name `xml:"TEI"`
	Text    teiText  `xml:"text"`
}

type teiText struct {
	Body teiBody `xml:"body"`
}

type teiBody struct {
	Segs []teiSeg `xml:"seg"`
}

type teiSeg struct {
	N    string `xml:"n,attr,omitempty"`
	Text string `xml:",chardata"`
}

// Stats reports what an export wrote, for the job manager's result payload.
type Stats struct {
	OutputPath string `json:"output_path"`
	RowCount   int    `json:"row_count"`
}

// TEI writes a document's line units as a minimal TEI <text><body> tree.
func TEI(ctx context.Context, store *storage.Store, docID int64, outputPath string) (*Stats, error) {
	lineKind := models.UnitLine
	units, err := store.ListUnits(ctx, docID, &lineKind)
	if err != nil {
		return nil, fmt.Errorf("export tei: %w", err)
	}
	doc := teiDoc{}
	for _, u := range units {
		n := ""
		if u.ExternalID != nil {
			n = fmt.Sprintf("%d", *u.ExternalID)
		}
		doc.Text.Body.Segs = append(doc.Text.Body.Segs, teiSeg{N: n, Text: u.TextNorm})
	}
	if err := ensureParent(outputPath); err != nil {
		return nil, fmt.Errorf("export tei: %w", err)
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export tei: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("export tei: %w", err)
	}
	return &Stats{OutputPath: outputPath, RowCount: len(units)}, nil
}

var alignCSVFields = []string{
	"link_id", "pivot_unit_id", "target_unit_id", "external_id",
	"review_status", "pivot_text_norm", "target_text_norm",
}

// AlignCSV writes a pivot<->target pair's alignment links as CSV, one row
// per link, columns matching original_source's csv_export field-list
// convention. delimiter is usually ',' (CSV) or '\t' (TSV).
func AlignCSV(ctx context.Context, store *storage.Store, pivotDocID, targetDocID int64, outputPath string, delimiter rune) (*Stats, error) {
	links, err := store.ListAlignmentLinks(ctx, pivotDocID, targetDocID)
	if err != nil {
		return nil, fmt.Errorf("export align csv: %w", err)
	}
	if err := ensureParent(outputPath); err != nil {
		return nil, fmt.Errorf("export align csv: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("export align csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if delimiter != 0 {
		w.Comma = delimiter
	}
	if err := w.Write(alignCSVFields); err != nil {
		return nil, fmt.Errorf("export align csv: %w", err)
	}
	for _, l := range links {
		pivotText, targetText := "", ""
		if pu, err := store.GetUnit(ctx, l.PivotUnitID); err == nil {
			pivotText = pu.TextNorm
		}
		if tu, err := store.GetUnit(ctx, l.TargetUnitID); err == nil {
			targetText = tu.TextNorm
		}
		extID := ""
		if l.ExternalID != nil {
			extID = fmt.Sprintf("%d", *l.ExternalID)
		}
		row := []string{
			fmt.Sprintf("%d", l.ID),
			fmt.Sprintf("%d", l.PivotUnitID),
			fmt.Sprintf("%d", l.TargetUnitID),
			extID,
			string(l.ReviewStatus),
			pivotText,
			targetText,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export align csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export align csv: %w", err)
	}
	return &Stats{OutputPath: outputPath, RowCount: len(links)}, nil
}

// RunReport writes one run's full record (params, stats, and -- for align
// runs -- its links) as a single JSON document.
func RunReport(ctx context.Context, store *storage.Store, runID string, outputPath string) (*Stats, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	report := map[string]interface{}{
		"run": run,
	}
	if run.Kind == models.RunAlign {
		links, err := store.ListAlignmentLinksByRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("export run report: %w", err)
		}
		report["alignment_links"] = links
	}
	if err := ensureParent(outputPath); err != nil {
		return nil, fmt.Errorf("export run report: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, apierr.Internal("marshal run report: %v", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("export run report: %w", err)
	}
	return &Stats{OutputPath: outputPath, RowCount: 1}, nil
}
