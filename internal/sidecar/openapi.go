package sidecar

// openAPIDocument returns a minimal OpenAPI 3.0 description of the sidecar's
// route surface (spec.md §6). It is generated in-process from the literal
// path table below, not derived from router(); the table lists
// GET /documents/{id}, which router() does not register.
func openAPIDocument() map[string]interface{} {
	op := func(summary string, authed bool) map[string]interface{} {
		o := map[string]interface{}{"summary": summary}
		if authed {
			o["security"] = []map[string]interface{}{{"agrafesToken": []string{}}}
		}
		return o
	}

	paths := map[string]interface{}{
		"/health":              map[string]interface{}{"get": op("Liveness and portfile identity check", false)},
		"/openapi.json":        map[string]interface{}{"get": op("This document", false)},
		"/diagnostics":         map[string]interface{}{"get": op("Report database health: orphaned or missing FTS rows", false)},
		"/query":               map[string]interface{}{"post": op("Run a query against the unit index", false)},
		"/validate-meta":       map[string]interface{}{"post": op("Validate document metadata, advisory only", false)},
		"/curate/preview":      map[string]interface{}{"post": op("Dry-run curation rules against a document", false)},
		"/align/audit":         map[string]interface{}{"post": op("Audit alignment links for a document pair", false)},
		"/align/quality":       map[string]interface{}{"post": op("Score alignment quality for a document pair", false)},
		"/documents":           map[string]interface{}{"get": op("List documents", false)},
		"/documents/{id}":      map[string]interface{}{"get": op("Fetch one document", false)},
		"/doc_relations":       map[string]interface{}{"get": op("List declared relations for a document", false)},
		"/jobs":                map[string]interface{}{"get": op("List jobs, newest first", false)},
		"/jobs/{id}":           map[string]interface{}{"get": op("Fetch one job", false)},

		"/index":                      map[string]interface{}{"post": op("Rebuild the FTS index synchronously", true)},
		"/import":                     map[string]interface{}{"post": op("Import a plain-text source as a new document", true)},
		"/curate":                     map[string]interface{}{"post": op("Apply curation rules and persist changes", true)},
		"/segment":                    map[string]interface{}{"post": op("Resegment a document into sentence units", true)},
		"/align":                      map[string]interface{}{"post": op("Run the alignment engine for a pivot/target set", true)},
		"/align/link/update_status":   map[string]interface{}{"post": op("Update one alignment link's status", true)},
		"/align/link/delete":          map[string]interface{}{"post": op("Delete one alignment link", true)},
		"/align/link/retarget":        map[string]interface{}{"post": op("Repoint one alignment link to a different target unit", true)},
		"/documents/update":           map[string]interface{}{"post": op("Partially update a document", true)},
		"/documents/bulk_update":      map[string]interface{}{"post": op("Partially update many documents", true)},
		"/doc_relations/set":          map[string]interface{}{"post": op("Declare a doc relation", true)},
		"/doc_relations/delete":       map[string]interface{}{"post": op("Remove a declared doc relation", true)},
		"/export/tei":                 map[string]interface{}{"post": op("Export a document as TEI XML", true)},
		"/export/align_csv":           map[string]interface{}{"post": op("Export an alignment link set as CSV", true)},
		"/export/run_report":          map[string]interface{}{"post": op("Export one run's record as JSON", true)},
		"/jobs/enqueue":               map[string]interface{}{"post": op("Enqueue an asynchronous job", true)},
		"/jobs/{id}/cancel":           map[string]interface{}{"post": op("Cancel a queued or running job", true)},
		"/shutdown":                   map[string]interface{}{"post": op("Shut down the sidecar gracefully", true)},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   "agrafes sidecar",
			"version": "v1",
		},
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"agrafesToken": map[string]interface{}{
					"type": "apiKey",
					"in":   "header",
					"name": tokenHeader,
				},
			},
		},
		"paths": paths,
	}
}
