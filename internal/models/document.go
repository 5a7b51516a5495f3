// Package models defines the core data structures shared across the storage,
// query, alignment, and sidecar packages.
package models

import "time"

// DocRole enumerates the role a document plays in a corpus.
type DocRole string

const (
	RoleOriginal    DocRole = "original"
	RoleTranslation DocRole = "translation"
	RoleExcerpt     DocRole = "excerpt"
	RoleStandalone  DocRole = "standalone"
	RoleUnknown     DocRole = "unknown"
)

// Document represents one imported source artifact.
type Document struct {
	ID           int64                  `json:"id"`
	Title        string                 `json:"title"`
	Language     string                 `json:"language"`
	Role         DocRole                `json:"role"`
	ResourceType string                 `json:"resource_type,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	SourceHash   string                 `json:"source_hash,omitempty"`
	SourcePath   string                 `json:"source_path,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// DocumentUpdate carries the mutable subset of a document's fields for
// metadata-edit endpoints; nil pointers mean "leave unchanged".
type DocumentUpdate struct {
	ID           int64                   `json:"id"`
	Title        *string                 `json:"title,omitempty"`
	Language     *string                 `json:"language,omitempty"`
	Role         *DocRole                `json:"role,omitempty"`
	ResourceType *string                 `json:"resource_type,omitempty"`
	Metadata     *map[string]interface{} `json:"metadata,omitempty"`
}

// DocRelation is a declarative pivot<->target document relationship.
type DocRelation struct {
	ID             int64     `json:"id"`
	DocID          int64     `json:"doc_id"`
	RelationType   string    `json:"relation_type"`
	TargetDocID    int64     `json:"target_doc_id"`
	CreatedAt      time.Time `json:"created_at"`
}
