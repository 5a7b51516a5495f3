package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
)

// CreateDocument inserts a new document and returns it with its assigned ID
// and created_at timestamp filled in.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return nil, apierr.BadRequest("encode document metadata: %v", err)
	}

	var created models.Document
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (title, language, doc_role, resource_type, meta_json, source_hash, source_path)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			doc.Title, doc.Language, string(doc.Role), doc.ResourceType, metaJSON, doc.SourceHash, doc.SourcePath,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, documentSelectCols+` WHERE doc_id = ?`, id).Scan(scanDocumentTargets(&created)...)
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &created, nil
}

const documentSelectCols = `
	SELECT doc_id, title, language, doc_role, resource_type, meta_json, source_hash, source_path, created_at
	FROM documents`

func scanDocumentTargets(d *models.Document) []interface{} {
	return []interface{}{&d.ID, &d.Title, &d.Language, &d.Role, &d.ResourceType, &docMetaScanner{d}, &d.SourceHash, &d.SourcePath, &d.CreatedAt}
}

// docMetaScanner adapts a nullable meta_json column into Document.Metadata.
type docMetaScanner struct{ doc *models.Document }

func (s *docMetaScanner) Scan(src interface{}) error {
	return scanMetaJSON(src, &s.doc.Metadata)
}

func scanMetaJSON(src interface{}, out *map[string]interface{}) error {
	if src == nil {
		*out = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unexpected meta_json column type %T", src)
	}
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	return json.Unmarshal(raw, out)
}

func marshalMeta(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetDocument fetches one document by ID, or a NOT_FOUND apierr.Error.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, documentSelectCols+` WHERE doc_id = ?`, id).Scan(scanDocumentTargets(&doc)...)
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("document %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns every document ordered by doc_id.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	var docs []*models.Document
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, documentSelectCols+` ORDER BY doc_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d models.Document
			if err := rows.Scan(scanDocumentTargets(&d)...); err != nil {
				return err
			}
			docs = append(docs, &d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateDocument applies a partial update (nil fields left unchanged) and
// returns the document as it stands afterward.
func (s *Store) UpdateDocument(ctx context.Context, upd *models.DocumentUpdate) (*models.Document, error) {
	var doc models.Document
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, documentSelectCols+` WHERE doc_id = ?`, upd.ID).Scan(scanDocumentTargets(&doc)...); err != nil {
			return err
		}
		if upd.Title != nil {
			doc.Title = *upd.Title
		}
		if upd.Language != nil {
			doc.Language = *upd.Language
		}
		if upd.Role != nil {
			doc.Role = *upd.Role
		}
		if upd.ResourceType != nil {
			doc.ResourceType = *upd.ResourceType
		}
		if upd.Metadata != nil {
			doc.Metadata = *upd.Metadata
		}
		metaJSON, err := marshalMeta(doc.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET title = ?, language = ?, doc_role = ?, resource_type = ?, meta_json = ?
			WHERE doc_id = ?`,
			doc.Title, doc.Language, string(doc.Role), doc.ResourceType, metaJSON, doc.ID,
		)
		return err
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("document %d not found", upd.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return &doc, nil
}

// DeleteDocument removes a document and all units, alignment links, and
// relations that reference it.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_units WHERE rowid IN (SELECT unit_id FROM units WHERE doc_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE doc_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM alignment_links WHERE pivot_doc_id = ? OR target_doc_id = ?`, id, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM doc_relations WHERE doc_id = ? OR target_doc_id = ?`, id, id)
		return err
	})
	if err == sql.ErrNoRows {
		return apierr.NotFound("document %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// CountDocuments returns the total number of documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// CreateDocRelation declares a pivot<->target relation, idempotently (a
// duplicate (doc_id, relation_type, target_doc_id) triple is a no-op).
func (s *Store) CreateDocRelation(ctx context.Context, rel *models.DocRelation) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO doc_relations (doc_id, relation_type, target_doc_id)
			VALUES (?, ?, ?)`, rel.DocID, rel.RelationType, rel.TargetDocID)
		return err
	})
}

// ListDocRelations returns the relations declared for a document.
func (s *Store) ListDocRelations(ctx context.Context, docID int64) ([]*models.DocRelation, error) {
	var rels []*models.DocRelation
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT relation_id, doc_id, relation_type, target_doc_id, created_at
			FROM doc_relations WHERE doc_id = ? ORDER BY relation_id`, docID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r models.DocRelation
			if err := rows.Scan(&r.ID, &r.DocID, &r.RelationType, &r.TargetDocID, &r.CreatedAt); err != nil {
				return err
			}
			rels = append(rels, &r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list doc relations: %w", err)
	}
	return rels, nil
}

// DeleteDocRelation removes one declared relation by id.
func (s *Store) DeleteDocRelation(ctx context.Context, id int64) error {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM doc_relations WHERE relation_id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err == sql.ErrNoRows {
		return apierr.NotFound("doc relation %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("delete doc relation: %w", err)
	}
	return nil
}
