package storage

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/ports"
)

// PostgresRepository persists run history into Postgres: one row per run
// with the report fingerprint, used for idempotent re-delivery dedup and
// as the last-run watermark.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.RunRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// AlreadyDelivered reports whether a run with this report fingerprint was
// delivered before.
func (r *PostgresRepository) AlreadyDelivered(ctx context.Context, fingerprint string) (bool, error) {
	if r.db == nil || fingerprint == "" {
		return false, nil
	}

	query, args, err := r.builder.
		Select("1").
		From("ingestion_runs").
		Where(sq.Eq{"fingerprint": fingerprint, "delivered": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build dedup query")
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query dedup")
	}

	return true, nil
}

// SaveRun inserts the run record.
func (r *PostgresRepository) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.builder.
		Insert("ingestion_runs").
		Columns("run_id", "window_start", "window_end", "overall", "fingerprint", "datasets", "delivered", "created_at").
		Values(run.RunID, run.WindowStart, run.WindowEnd, string(run.Overall), run.Fingerprint, pq.Array(run.Datasets), run.Delivered, run.CreatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "insert run")
	}

	return nil
}

// LastWindowEnd returns the newest persisted window end, if any run exists.
func (r *PostgresRepository) LastWindowEnd(ctx context.Context) (time.Time, bool, error) {
	if r.db == nil {
		return time.Time{}, false, nil
	}

	query, args, err := r.builder.
		Select("window_end").
		From("ingestion_runs").
		OrderBy("window_end DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "build watermark query")
	}

	var end time.Time
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&end)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "query watermark")
	}

	return end, true, nil
}
