package ports

import (
	"context"
	"time"

	"IngestionAlerter/internal/domain"
)

// ReportSink delivers a completed report to one external destination.
// Implementations must be independently swappable; a failure in one sink
// never blocks delivery to another.
type ReportSink interface {
	Name() string
	Deliver(ctx context.Context, report domain.Report) error
}

// RunRepository persists run history for audit, idempotent re-delivery
// dedup, and the optional last-run watermark.
type RunRepository interface {
	AlreadyDelivered(ctx context.Context, fingerprint string) (bool, error)
	SaveRun(ctx context.Context, run domain.RunRecord) error
	LastWindowEnd(ctx context.Context) (time.Time, bool, error)
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
