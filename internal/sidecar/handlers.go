package sidecar

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperjump/agrafes/internal/align"
	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/curation"
	"github.com/hyperjump/agrafes/internal/diagnostics"
	"github.com/hyperjump/agrafes/internal/export"
	"github.com/hyperjump/agrafes/internal/indexer"
	"github.com/hyperjump/agrafes/internal/ingest"
	"github.com/hyperjump/agrafes/internal/metadata"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/query"
	"github.com/hyperjump/agrafes/internal/runs"
	"github.com/hyperjump/agrafes/internal/segment"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, openAPIDocument())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := diagnostics.Collect(r.Context(), s.store)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"report": report})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"shutting_down": true})
	go func() {
		_ = s.Stop(r.Context())
	}()
}

// --- query -----------------------------------------------------------------

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunQuery, map[string]interface{}{"query": req.Query, "mode": string(req.Mode)})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp, err := query.Run(r.Context(), s.store, req, query.Defaults{
		DefaultLimit:  s.cfg.Query.DefaultLimit,
		MaxLimit:      s.cfg.Query.MaxLimit,
		DefaultWindow: s.cfg.Query.DefaultWindow,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"hits": len(resp.Hits)})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": resp})
}

// --- import / index ----------------------------------------------------------

type importRequest struct {
	Path         string `json:"path"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	DocRole      string `json:"doc_role"`
	ResourceType string `json:"resource_type"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.Path == "" || req.Title == "" || req.Language == "" {
		s.respondErr(w, apierr.BadRequest("path, title, and language are required"))
		return
	}
	f, err := openSourceFile(req.Path)
	if err != nil {
		s.respondErr(w, apierr.BadRequest("open source file: %v", err))
		return
	}
	defer f.Close()

	runID, err := runs.Start(r.Context(), s.store, models.RunImport, map[string]interface{}{"path": req.Path, "title": req.Title})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	report, err := ingest.Run(r.Context(), s.store, ingest.PlainTextImporter{}, f, ingest.Params{
		Title:        req.Title,
		Language:     req.Language,
		DocRole:      models.DocRole(req.DocRole),
		ResourceType: req.ResourceType,
		SourcePath:   req.Path,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"units_total": report.UnitsTotal})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": report})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runID, err := runs.Start(r.Context(), s.store, models.RunIndex, nil)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	stats, err := indexer.Rebuild(r.Context(), s.store)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"units_indexed": stats.UnitsIndexed})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": stats})
}

// --- curate ------------------------------------------------------------------

type curateRequest struct {
	DocID       *int64          `json:"doc_id,omitempty"`
	Rules       []curation.Rule `json:"rules"`
	MaxExamples int             `json:"max_examples,omitempty"`
}

func (s *Server) handleCurate(w http.ResponseWriter, r *http.Request) {
	var req curateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	rules, err := curation.RulesFromList(req.Rules)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunCurate, map[string]interface{}{"doc_id": req.DocID})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if req.DocID != nil {
		report, err := curation.CurateDocument(r.Context(), s.store, *req.DocID, rules)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"units_modified": report.UnitsModified})
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": report})
		return
	}
	reports, err := curation.CurateAllDocuments(r.Context(), s.store, rules)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"documents_curated": len(reports)})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": reports})
}

func (s *Server) handleCuratePreview(w http.ResponseWriter, r *http.Request) {
	var req curateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.DocID == nil {
		s.respondErr(w, apierr.BadRequest("doc_id is required for preview"))
		return
	}
	rules, err := curation.RulesFromList(req.Rules)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	report, err := curation.PreviewDocument(r.Context(), s.store, *req.DocID, rules, req.MaxExamples)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": report})
}

// --- validate-meta -------------------------------------------------------------

func (s *Server) handleValidateMeta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID *int64 `json:"doc_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunValidateMeta, map[string]interface{}{"doc_id": req.DocID})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if req.DocID != nil {
		result, err := metadata.ValidateDocument(r.Context(), s.store, *req.DocID)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"is_valid": result.IsValid})
		s.respondJSONStatus(w, http.StatusOK, validateMetaStatus(len(result.Warnings) > 0), map[string]interface{}{"run_id": runID, "result": result})
		return
	}
	results, err := metadata.ValidateAllDocuments(r.Context(), s.store)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"documents_checked": len(results)})
	anyWarnings := false
	for _, res := range results {
		if len(res.Warnings) > 0 {
			anyWarnings = true
			break
		}
	}
	s.respondJSONStatus(w, http.StatusOK, validateMetaStatus(anyWarnings), map[string]interface{}{"run_id": runID, "result": results})
}

// validateMetaStatus maps a metadata validation outcome onto the
// envelope's status field (spec.md §6): advisory warnings never fail the
// request, but they're surfaced at the top level rather than buried in
// "result".
func validateMetaStatus(anyWarnings bool) string {
	if anyWarnings {
		return "warnings"
	}
	return "ok"
}

// --- segment -------------------------------------------------------------------

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID    int64  `json:"doc_id"`
		Language string `json:"language"`
		Pack     string `json:"pack,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunSegment, map[string]interface{}{"doc_id": req.DocID, "pack": req.Pack})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	report, err := segment.Resegment(r.Context(), s.store, req.DocID, req.Language, req.Pack)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"units_output": report.UnitsOutput})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": report})
}

// --- align ---------------------------------------------------------------------

func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy            string  `json:"strategy"`
		PivotDocID          int64   `json:"pivot_doc_id"`
		TargetDocIDs        []int64 `json:"target_doc_ids"`
		SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
		Debug               bool    `json:"debug,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunAlign, map[string]interface{}{
		"strategy": req.Strategy, "pivot_doc_id": req.PivotDocID, "target_doc_ids": req.TargetDocIDs,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	threshold := req.SimilarityThreshold
	if threshold == 0 {
		threshold = s.cfg.Align.DefaultSimilarityThreshold
	}
	reports, err := align.Run(r.Context(), s.store, models.AlignmentStrategy(req.Strategy), req.PivotDocID, req.TargetDocIDs, align.Options{
		RunID:               runID,
		Debug:               req.Debug,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	totalLinks := 0
	for _, rep := range reports {
		totalLinks += rep.LinksCreated
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"links_created": totalLinks})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": reports})
}

func (s *Server) handleAlignAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PivotDocID  int64 `json:"pivot_doc_id"`
		TargetDocID int64 `json:"target_doc_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	entries, err := align.Audit(r.Context(), s.store, req.PivotDocID, req.TargetDocID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": entries})
}

func (s *Server) handleAlignQuality(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PivotDocID  int64 `json:"pivot_doc_id"`
		TargetDocID int64 `json:"target_doc_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	quality, err := align.Quality(r.Context(), s.store, req.PivotDocID, req.TargetDocID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": quality})
}

func (s *Server) handleAlignLinkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LinkID int64  `json:"link_id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	status := models.ReviewStatus(req.Status)
	if status != models.ReviewAccepted && status != models.ReviewRejected && status != models.ReviewUnreviewed {
		s.respondErr(w, apierr.Validation("status must be accepted, rejected, or unreviewed, got %q", req.Status))
		return
	}
	if err := s.store.UpdateLinkReviewStatus(r.Context(), req.LinkID, status); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"link_id": req.LinkID, "status": status})
}

func (s *Server) handleAlignLinkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LinkID int64 `json:"link_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.store.DeleteLink(r.Context(), req.LinkID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"link_id": req.LinkID, "deleted": true})
}

func (s *Server) handleAlignLinkRetarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LinkID          int64 `json:"link_id"`
		NewTargetUnitID int64 `json:"new_target_unit_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	link, err := s.store.RetargetLink(r.Context(), req.LinkID, req.NewTargetUnitID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": link})
}

// --- documents -------------------------------------------------------------------

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var upd models.DocumentUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.respondErr(w, err)
		return
	}
	doc, err := s.store.UpdateDocument(r.Context(), &upd)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": doc})
}

func (s *Server) handleBulkUpdateDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []models.DocumentUpdate `json:"updates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	updated := make([]*models.Document, 0, len(req.Updates))
	for i := range req.Updates {
		doc, err := s.store.UpdateDocument(r.Context(), &req.Updates[i])
		if err != nil {
			s.respondErr(w, err)
			return
		}
		updated = append(updated, doc)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": updated})
}

// --- doc_relations -----------------------------------------------------------------

func (s *Server) handleListDocRelations(w http.ResponseWriter, r *http.Request) {
	docIDStr := r.URL.Query().Get("doc_id")
	docID, err := strconv.ParseInt(docIDStr, 10, 64)
	if err != nil {
		s.respondErr(w, apierr.BadRequest("doc_id query parameter is required and must be an integer"))
		return
	}
	relations, err := s.store.ListDocRelations(r.Context(), docID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"relations": relations})
}

func (s *Server) handleSetDocRelation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID        int64  `json:"doc_id"`
		RelationType string `json:"relation_type"`
		TargetDocID  int64  `json:"target_doc_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := align.AddDocRelation(r.Context(), s.store, req.DocID, req.RelationType, req.TargetDocID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"doc_id": req.DocID, "relation_type": req.RelationType, "target_doc_id": req.TargetDocID})
}

func (s *Server) handleDeleteDocRelation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.store.DeleteDocRelation(r.Context(), req.ID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": req.ID, "deleted": true})
}

// --- export ----------------------------------------------------------------------

func (s *Server) handleExportTEI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID      int64  `json:"doc_id"`
		OutputPath string `json:"output_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunExport, map[string]interface{}{"kind": "tei", "doc_id": req.DocID})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	stats, err := export.TEI(r.Context(), s.store, req.DocID, req.OutputPath)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"row_count": stats.RowCount})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": stats})
}

func (s *Server) handleExportAlignCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PivotDocID  int64  `json:"pivot_doc_id"`
		TargetDocID int64  `json:"target_doc_id"`
		OutputPath  string `json:"output_path"`
		Delimiter   string `json:"delimiter,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	delim := ','
	if req.Delimiter == "\t" {
		delim = '\t'
	}
	runID, err := runs.Start(r.Context(), s.store, models.RunExport, map[string]interface{}{"kind": "align_csv", "pivot_doc_id": req.PivotDocID, "target_doc_id": req.TargetDocID})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	stats, err := export.AlignCSV(r.Context(), s.store, req.PivotDocID, req.TargetDocID, req.OutputPath, delim)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = runs.Finish(r.Context(), s.store, runID, map[string]interface{}{"row_count": stats.RowCount})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "result": stats})
}

func (s *Server) handleExportRunReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID      string `json:"run_id"`
		OutputPath string `json:"output_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	stats, err := export.RunReport(r.Context(), s.store, req.RunID, req.OutputPath)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": stats})
}

// --- jobs ------------------------------------------------------------------------

type enqueueRequest struct {
	Kind   string                 `json:"kind"`
	Params map[string]interface{} `json:"params"`
}

func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	fn, err := s.jobFuncFor(models.JobKind(req.Kind), req.Params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	job := s.jobs.Submit(models.JobKind(req.Kind), req.Params, fn)
	s.respondJSONStatus(w, http.StatusAccepted, "accepted", map[string]interface{}{"job": job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": s.jobs.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.jobs.Get(id)
	if !ok {
		s.respondErr(w, apierr.NotFound("job %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Cancel(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

func openSourceFile(path string) (*os.File, error) {
	return os.Open(path)
}
