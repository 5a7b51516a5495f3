package sidecar

import (
	"context"

	"github.com/hyperjump/agrafes/internal/align"
	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/curation"
	"github.com/hyperjump/agrafes/internal/export"
	"github.com/hyperjump/agrafes/internal/indexer"
	"github.com/hyperjump/agrafes/internal/ingest"
	"github.com/hyperjump/agrafes/internal/metadata"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
	"github.com/hyperjump/agrafes/internal/segment"
)

// paramString/paramInt64/paramFloat64/paramBool read a loosely-typed
// params bag (as decoded from /jobs/enqueue's JSON body) with a default.
func paramString(p map[string]interface{}, key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func paramInt64(p map[string]interface{}, key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func paramFloat64(p map[string]interface{}, key string, def float64) float64 {
	if v, ok := p[key].(float64); ok && v != 0 {
		return v
	}
	return def
}

func paramInt64Slice(p map[string]interface{}, key string) []int64 {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

// jobFuncFor validates params eagerly (shape, mandatory fields, enum
// values) and returns the closure the job manager will run asynchronously,
// per spec.md §4.8's "validation is performed eagerly at submission" rule.
func (s *Server) jobFuncFor(kind models.JobKind, params map[string]interface{}) (jobFunc, error) {
	switch kind {
	case models.JobKindIndex:
		return s.indexJobFunc(), nil

	case models.JobKindImport:
		path := paramString(params, "path", "")
		title := paramString(params, "title", "")
		language := paramString(params, "language", "")
		if path == "" || title == "" || language == "" {
			return nil, apierr.BadRequest("import job requires path, title, language")
		}
		return s.importJobFunc(path, title, language, paramString(params, "doc_role", ""), paramString(params, "resource_type", "")), nil

	case models.JobKindCurate:
		rawRules, _ := params["rules"].([]interface{})
		rules, err := rulesFromRaw(rawRules)
		if err != nil {
			return nil, err
		}
		docID := paramInt64(params, "doc_id")
		return s.curateJobFunc(docID, rules), nil

	case models.JobKindValidateMeta:
		return s.validateMetaJobFunc(paramInt64(params, "doc_id")), nil

	case models.JobKindSegment:
		docID := paramInt64(params, "doc_id")
		if docID == 0 {
			return nil, apierr.BadRequest("segment job requires doc_id")
		}
		return s.segmentJobFunc(docID, paramString(params, "language", ""), paramString(params, "pack", "")), nil

	case models.JobKindAlign:
		strategy := models.AlignmentStrategy(paramString(params, "strategy", ""))
		pivotDocID := paramInt64(params, "pivot_doc_id")
		targetDocIDs := paramInt64Slice(params, "target_doc_ids")
		if pivotDocID == 0 || len(targetDocIDs) == 0 {
			return nil, apierr.BadRequest("align job requires pivot_doc_id and target_doc_ids")
		}
		threshold := paramFloat64(params, "similarity_threshold", s.cfg.Align.DefaultSimilarityThreshold)
		return s.alignJobFunc(strategy, pivotDocID, targetDocIDs, threshold), nil

	case models.JobKindExportTEI:
		docID := paramInt64(params, "doc_id")
		outputPath := paramString(params, "output_path", "")
		if docID == 0 || outputPath == "" {
			return nil, apierr.BadRequest("export_tei job requires doc_id and output_path")
		}
		return s.exportTEIJobFunc(docID, outputPath), nil

	case models.JobKindExportAlignCSV:
		pivotDocID := paramInt64(params, "pivot_doc_id")
		targetDocID := paramInt64(params, "target_doc_id")
		outputPath := paramString(params, "output_path", "")
		if pivotDocID == 0 || targetDocID == 0 || outputPath == "" {
			return nil, apierr.BadRequest("export_align_csv job requires pivot_doc_id, target_doc_id, output_path")
		}
		delim := rune(',')
		if paramString(params, "delimiter", "") == "\t" {
			delim = '\t'
		}
		return s.exportAlignCSVJobFunc(pivotDocID, targetDocID, outputPath, delim), nil

	case models.JobKindExportRunReport:
		runID := paramString(params, "run_id", "")
		outputPath := paramString(params, "output_path", "")
		if runID == "" || outputPath == "" {
			return nil, apierr.BadRequest("export_run_report job requires run_id and output_path")
		}
		return s.exportRunReportJobFunc(runID, outputPath), nil

	default:
		return nil, apierr.Validation("unknown job kind %q", kind)
	}
}

func rulesFromRaw(raw []interface{}) ([]*curation.Rule, error) {
	specs := make([]curation.Rule, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, apierr.BadRequest("each curation rule must be an object")
		}
		specs = append(specs, curation.Rule{
			Pattern:     paramString(m, "pattern", ""),
			Replacement: paramString(m, "replacement", ""),
			Flags:       paramString(m, "flags", ""),
			Description: paramString(m, "description", ""),
		})
	}
	return curation.RulesFromList(specs)
}

func (s *Server) indexJobFunc() jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunIndex, nil)
		if err != nil {
			return nil, err
		}
		progress(25)
		stats, err := indexer.Rebuild(ctx, s.store)
		if err != nil {
			return nil, err
		}
		progress(90)
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"units_indexed": stats.UnitsIndexed})
		return map[string]interface{}{"run_id": runID, "units_indexed": stats.UnitsIndexed}, nil
	}
}

func (s *Server) importJobFunc(path, title, language, docRole, resourceType string) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		f, err := openSourceFile(path)
		if err != nil {
			return nil, apierr.BadRequest("open source file: %v", err)
		}
		defer f.Close()
		runID, err := runs.Start(ctx, s.store, models.RunImport, map[string]interface{}{"path": path, "title": title})
		if err != nil {
			return nil, err
		}
		progress(20)
		report, err := ingest.Run(ctx, s.store, ingest.PlainTextImporter{}, f, ingest.Params{
			Title: title, Language: language, DocRole: models.DocRole(docRole), ResourceType: resourceType, SourcePath: path,
		})
		if err != nil {
			return nil, err
		}
		progress(90)
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"units_total": report.UnitsTotal})
		return map[string]interface{}{"run_id": runID, "doc_id": report.DocID, "units_total": report.UnitsTotal}, nil
	}
}

func (s *Server) curateJobFunc(docID int64, rules []*curation.Rule) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunCurate, map[string]interface{}{"doc_id": docID})
		if err != nil {
			return nil, err
		}
		progress(30)
		if docID != 0 {
			report, err := curation.CurateDocument(ctx, s.store, docID, rules)
			if err != nil {
				return nil, err
			}
			progress(90)
			_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"units_modified": report.UnitsModified})
			return map[string]interface{}{"run_id": runID, "units_modified": report.UnitsModified}, nil
		}
		reports, err := curation.CurateAllDocuments(ctx, s.store, rules)
		if err != nil {
			return nil, err
		}
		progress(90)
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"documents_curated": len(reports)})
		return map[string]interface{}{"run_id": runID, "documents_curated": len(reports)}, nil
	}
}

func (s *Server) validateMetaJobFunc(docID int64) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunValidateMeta, map[string]interface{}{"doc_id": docID})
		if err != nil {
			return nil, err
		}
		progress(40)
		if docID != 0 {
			result, err := metadata.ValidateDocument(ctx, s.store, docID)
			if err != nil {
				return nil, err
			}
			_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"is_valid": result.IsValid})
			return map[string]interface{}{"run_id": runID, "is_valid": result.IsValid, "warnings": result.Warnings}, nil
		}
		results, err := metadata.ValidateAllDocuments(ctx, s.store)
		if err != nil {
			return nil, err
		}
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"documents_checked": len(results)})
		return map[string]interface{}{"run_id": runID, "documents_checked": len(results)}, nil
	}
}

func (s *Server) segmentJobFunc(docID int64, language, pack string) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunSegment, map[string]interface{}{"doc_id": docID, "pack": pack})
		if err != nil {
			return nil, err
		}
		progress(30)
		report, err := segment.Resegment(ctx, s.store, docID, language, pack)
		if err != nil {
			return nil, err
		}
		progress(90)
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"units_output": report.UnitsOutput})
		return map[string]interface{}{"run_id": runID, "units_output": report.UnitsOutput}, nil
	}
}

func (s *Server) alignJobFunc(strategy models.AlignmentStrategy, pivotDocID int64, targetDocIDs []int64, threshold float64) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunAlign, map[string]interface{}{"strategy": string(strategy), "pivot_doc_id": pivotDocID})
		if err != nil {
			return nil, err
		}
		progress(20)
		reports, err := align.Run(ctx, s.store, strategy, pivotDocID, targetDocIDs, align.Options{RunID: runID, SimilarityThreshold: threshold})
		if err != nil {
			return nil, err
		}
		total := 0
		for i, rep := range reports {
			total += rep.LinksCreated
			progress(20 + (i+1)*70/len(reports))
		}
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"links_created": total})
		return map[string]interface{}{"run_id": runID, "links_created": total}, nil
	}
}

func (s *Server) exportTEIJobFunc(docID int64, outputPath string) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunExport, map[string]interface{}{"kind": "tei", "doc_id": docID})
		if err != nil {
			return nil, err
		}
		progress(40)
		stats, err := export.TEI(ctx, s.store, docID, outputPath)
		if err != nil {
			return nil, err
		}
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"row_count": stats.RowCount})
		return map[string]interface{}{"run_id": runID, "output_path": stats.OutputPath, "row_count": stats.RowCount}, nil
	}
}

func (s *Server) exportAlignCSVJobFunc(pivotDocID, targetDocID int64, outputPath string, delim rune) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		runID, err := runs.Start(ctx, s.store, models.RunExport, map[string]interface{}{"kind": "align_csv", "pivot_doc_id": pivotDocID, "target_doc_id": targetDocID})
		if err != nil {
			return nil, err
		}
		progress(40)
		stats, err := export.AlignCSV(ctx, s.store, pivotDocID, targetDocID, outputPath, delim)
		if err != nil {
			return nil, err
		}
		_ = runs.Finish(ctx, s.store, runID, map[string]interface{}{"row_count": stats.RowCount})
		return map[string]interface{}{"run_id": runID, "output_path": stats.OutputPath, "row_count": stats.RowCount}, nil
	}
}

func (s *Server) exportRunReportJobFunc(runID, outputPath string) jobFunc {
	return func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		progress(50)
		stats, err := export.RunReport(ctx, s.store, runID, outputPath)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"output_path": stats.OutputPath}, nil
	}
}
