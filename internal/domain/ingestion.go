package domain

import "time"

// RawRecord is one record exactly as a source API returned it. Field names
// and nesting vary per dataset; only the normalizer looks inside.
type RawRecord map[string]any

// Status is the normalized outcome of a single ingestion event.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailure Status = "failure"
)

// IngestionEvent is the uniform shape every record is reduced to before
// classification. Immutable once built.
type IngestionEvent struct {
	DatasetID    string
	Timestamp    time.Time
	Status       Status
	ErrorCode    string
	ErrorMessage string
	RecordCount  int
}

// Health labels a dataset's aggregate condition over the reporting window.
type Health string

const (
	HealthUnreachable Health = "unreachable"
	HealthCritical    Health = "critical"
	HealthDegraded    Health = "degraded"
	HealthHealthy     Health = "healthy"
)

// ErrorStat counts one distinct error code within a dataset's window, with
// the first error message seen for that code.
type ErrorStat struct {
	Code   string
	Count  int
	Sample string
}

// DatasetSummary aggregates all of a dataset's events inside the window.
// Invariant: SuccessCount + FailureCount + WarningCount == TotalEvents.
type DatasetSummary struct {
	DatasetID        string
	WindowStart      time.Time
	WindowEnd        time.Time
	TotalEvents      int
	SuccessCount     int
	FailureCount     int
	WarningCount     int
	DroppedRecords   int
	UnmappedStatuses int
	TopErrors        []ErrorStat
	Status           Health
	FetchError       string
}

// Report is the unit handed to the sinks: one per run, immutable.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Summaries   []DatasetSummary
	Overall     Health
}

// RunRecord is what the run repository persists per invocation.
type RunRecord struct {
	RunID       string
	WindowStart time.Time
	WindowEnd   time.Time
	Overall     Health
	Fingerprint string
	Datasets    []string
	Delivered   bool
	CreatedAt   time.Time
}

// SinkResult reports one sink's delivery outcome; Err is nil on success.
type SinkResult struct {
	Sink string
	Err  error
}
