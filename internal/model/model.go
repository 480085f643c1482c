package model

import "time"

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal returns true if no further status transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCanceled
}

// Provenance indicates whether a report came from the semantic cache or was
// freshly generated by the LLM
type Provenance string

const (
	ProvenanceCache     Provenance = "cache"
	ProvenanceGenerated Provenance = "generated"
)

// Finding represents a single line-level pattern match against the registry
type Finding struct {
	LineNumber int    `json:"line_number"`
	ThreatName string `json:"threat_name"`
	RawLine    string `json:"raw_line"`
}

// Report is the final analysis artifact returned to callers
type Report struct {
	MarkdownBody string     `json:"markdown_body"`
	Findings     []Finding  `json:"findings"`
	Provenance   Provenance `json:"provenance"`
}

// AnalysisJob tracks one asynchronous log analysis request
type AnalysisJob struct {
	ID           string    `json:"job_id"`
	LogType      string    `json:"log_type"`
	Status       JobStatus `json:"status"`
	ProgressNote string    `json:"progress_note,omitempty"`
	Result       *Report   `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HeaderFinding records presence or absence of one recommended security header
type HeaderFinding struct {
	Name      string `json:"name"`
	Finding   string `json:"finding"`
	IsPresent bool   `json:"is_present"`
}

// HeaderScanReport is the result of a passive website header scan plus the
// LLM remediation analysis
type HeaderScanReport struct {
	TargetURL    string          `json:"target_url"`
	ScanFindings []HeaderFinding `json:"scan_findings"`
	Explanation  string          `json:"ai_explanation"`
}
