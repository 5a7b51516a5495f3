package models

// DiagnosticsReport is the DB-wide operational health report (spec.md §4.8).
// Grounded on original_source's collect_diagnostics.
type DiagnosticsReport struct {
	Status string   `json:"status"`
	Issues []string `json:"issues"`

	Integrity struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	} `json:"integrity"`

	Schema struct {
		VersionsApplied []int `json:"versions_applied"`
		CurrentVersion  *int  `json:"current_version"`
	} `json:"schema"`

	Counts struct {
		Documents      int `json:"documents"`
		UnitsTotal     int `json:"units_total"`
		LineUnits      int `json:"line_units"`
		StructureUnits int `json:"structure_units"`
		Runs           int `json:"runs"`
		AlignmentLinks int `json:"alignment_links"`
		FTSRows        int `json:"fts_rows"`
	} `json:"counts"`

	FTS struct {
		RowDeltaVsLineUnits int  `json:"row_delta_vs_line_units"`
		MissingLineUnits    int  `json:"missing_line_units"`
		OrphanRows          int  `json:"orphan_rows"`
		Stale               bool `json:"stale"`
	} `json:"fts"`

	Runs struct {
		ByKind       map[string]int `json:"by_kind"`
		WithoutStats int            `json:"without_stats"`
	} `json:"runs"`

	Alignment struct {
		DanglingPivotUnits  int `json:"dangling_pivot_units"`
		DanglingTargetUnits int `json:"dangling_target_units"`
		PivotDocMismatch    int `json:"pivot_doc_mismatch"`
		TargetDocMismatch   int `json:"target_doc_mismatch"`
		SelfLinks           int `json:"self_links"`
	} `json:"alignment"`

	Metadata struct {
		MissingRequiredFields int `json:"missing_required_fields"`
		DocsWithoutLineUnits  int `json:"docs_without_line_units"`
	} `json:"metadata"`
}
