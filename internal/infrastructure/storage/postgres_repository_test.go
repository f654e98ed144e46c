package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IngestionAlerter/internal/domain"
)

func TestAlreadyDelivered(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM ingestion_runs WHERE delivered = $1 AND fingerprint = $2 LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	delivered, err := repo.AlreadyDelivered(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, delivered)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM ingestion_runs WHERE delivered = $1 AND fingerprint = $2 LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	delivered, err = repo.AlreadyDelivered(context.Background(), "def456")
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlreadyDeliveredEmptyFingerprint(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	delivered, err := repo.AlreadyDelivered(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ingestion_runs (run_id,window_start,window_end,overall,fingerprint,datasets,delivered,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.SaveRun(context.Background(), domain.RunRecord{
		RunID:       "run-1",
		WindowStart: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		Overall:     domain.HealthCritical,
		Fingerprint: "abc123",
		Datasets:    []string{"sales", "web"},
		Delivered:   true,
		CreatedAt:   time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastWindowEnd(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	end := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT window_end FROM ingestion_runs ORDER BY window_end DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"window_end"}).AddRow(end))

	got, ok, err := repo.LastWindowEnd(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, end, got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT window_end FROM ingestion_runs ORDER BY window_end DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"window_end"}))

	_, ok, err = repo.LastWindowEnd(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
