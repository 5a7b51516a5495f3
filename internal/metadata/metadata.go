// Package metadata implements advisory document metadata validation
// (spec.md §6's /validate-meta): missing-field warnings that never block
// an operation. Grounded on original_source's metadata.py.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

var docRoleValues = map[models.DocRole]bool{
	models.RoleOriginal:    true,
	models.RoleTranslation: true,
	models.RoleExcerpt:     true,
	models.RoleStandalone:  true,
	models.RoleUnknown:     true,
}

// Result is one document's advisory metadata report.
type Result struct {
	DocID    int64    `json:"doc_id"`
	Title    string   `json:"title"`
	IsValid  bool     `json:"is_valid"`
	Warnings []string `json:"warnings"`
}

// ValidateDocument inspects a single document's metadata. It never returns
// an error for a missing document; IsValid is false only when a required
// field (title, language) is empty.
func ValidateDocument(ctx context.Context, store *storage.Store, docID int64) (*Result, error) {
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		return &Result{
			DocID:    docID,
			Title:    "<not found>",
			IsValid:  false,
			Warnings: []string{fmt.Sprintf("document doc_id=%d does not exist", docID)},
		}, nil
	}

	var warnings []string
	isValid := true

	if strings.TrimSpace(doc.Title) == "" {
		warnings = append(warnings, "required field 'title' is empty")
		isValid = false
	}
	if strings.TrimSpace(doc.Language) == "" {
		warnings = append(warnings, "required field 'language' is empty")
		isValid = false
	}

	if strings.TrimSpace(doc.SourcePath) == "" {
		warnings = append(warnings, "recommended field 'source_path' is empty")
	}
	if strings.TrimSpace(doc.SourceHash) == "" {
		warnings = append(warnings, "recommended field 'source_hash' is empty")
	}
	if doc.Role == "" {
		warnings = append(warnings, "recommended field 'doc_role' is empty")
	}
	if strings.TrimSpace(doc.ResourceType) == "" {
		warnings = append(warnings, "recommended field 'resource_type' is empty")
	}

	if doc.Role != "" && !docRoleValues[doc.Role] {
		roles := make([]string, 0, len(docRoleValues))
		for r := range docRoleValues {
			roles = append(roles, string(r))
		}
		sort.Strings(roles)
		warnings = append(warnings, fmt.Sprintf("doc_role=%q is not a recognised value (expected one of %v)", doc.Role, roles))
	}

	lineCount, err := store.CountLineUnits(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("validate metadata: %w", err)
	}
	if lineCount == 0 {
		warnings = append(warnings, "document has no line units (nothing indexed in FTS)")
	}

	return &Result{DocID: docID, Title: doc.Title, IsValid: isValid, Warnings: warnings}, nil
}

// ValidateAllDocuments validates every document in the store, ordered by id.
func ValidateAllDocuments(ctx context.Context, store *storage.Store) ([]*Result, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate all metadata: %w", err)
	}
	results := make([]*Result, 0, len(docs))
	for _, d := range docs {
		r, err := ValidateDocument(ctx, store, d.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
