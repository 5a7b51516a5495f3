package models

import "time"

// RunKind enumerates the operations that persist a run record.
type RunKind string

const (
	RunInit          RunKind = "init"
	RunImport        RunKind = "import"
	RunIndex         RunKind = "index"
	RunQuery         RunKind = "query"
	RunAlign         RunKind = "align"
	RunExport        RunKind = "export"
	RunCurate        RunKind = "curate"
	RunValidateMeta  RunKind = "validate-meta"
	RunSegment       RunKind = "segment"
	RunServe         RunKind = "serve"
)

// Run is the persisted audit-trail record of one externally triggered operation.
type Run struct {
	ID        string                 `json:"id"`
	Kind      RunKind                `json:"kind"`
	Params    map[string]interface{} `json:"params"`
	Stats     map[string]interface{} `json:"stats,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// JobStatus enumerates the lifecycle states of an in-memory async job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobError    JobStatus = "error"
	JobCanceled JobStatus = "canceled"
)

// JobKind enumerates the async job kinds the sidecar job manager supports.
type JobKind string

const (
	JobKindIndex            JobKind = "index"
	JobKindCurate           JobKind = "curate"
	JobKindValidateMeta     JobKind = "validate-meta"
	JobKindSegment          JobKind = "segment"
	JobKindImport           JobKind = "import"
	JobKindAlign            JobKind = "align"
	JobKindExportTEI        JobKind = "export_tei"
	JobKindExportAlignCSV   JobKind = "export_align_csv"
	JobKindExportRunReport  JobKind = "export_run_report"
)

// Job is the in-memory, process-scoped record of one async operation.
type Job struct {
	ID         string                 `json:"id"`
	Kind       JobKind                `json:"kind"`
	Params     map[string]interface{} `json:"params"`
	Status     JobStatus              `json:"status"`
	Progress   int                    `json:"progress_pct"`
	Message    string                 `json:"message,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}
