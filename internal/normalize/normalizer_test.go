package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
)

func salesDataset() config.DatasetConfig {
	return config.DatasetConfig{
		ID: "sales",
		FieldMapping: config.FieldMapping{
			Timestamp:    "created",
			Status:       "status",
			ErrorCode:    "errors.code",
			ErrorMessage: "errors.description",
			Count:        "recordCount",
		},
		StatusMap: map[string]string{
			"success":  "success",
			"failed":   "failure",
			"retrying": "warning",
		},
	}
}

func TestNormalizeMapsFields(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{
			"created": "2026-08-28T10:00:00Z",
			"status":  "failed",
			"errors": []any{
				map[string]any{"code": "E1", "description": "schema mismatch"},
			},
			"recordCount": float64(40),
		},
	})

	require.Len(t, res.Events, 1)
	assert.Zero(t, res.Dropped)
	assert.Zero(t, res.UnmappedStatuses)

	event := res.Events[0]
	assert.Equal(t, "sales", event.DatasetID)
	assert.Equal(t, domain.StatusFailure, event.Status)
	assert.Equal(t, "E1", event.ErrorCode)
	assert.Equal(t, "schema mismatch", event.ErrorMessage)
	assert.Equal(t, 40, event.RecordCount)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC), event.Timestamp)
}

func TestNormalizeEpochMillisTimestamp(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": float64(1756375200000), "status": "success"},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, time.UnixMilli(1756375200000).UTC(), res.Events[0].Timestamp)
}

func TestNormalizeDropsRecordMissingStatus(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": "2026-08-28T10:00:00Z"},
		{"created": "2026-08-28T10:01:00Z", "status": "success"},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, domain.StatusSuccess, res.Events[0].Status)
}

func TestNormalizeDropsUnparseableTimestampOnly(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": "not-a-time", "status": "success"},
		{"created": "2026-08-28T10:01:00Z", "status": "success"},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Dropped)
}

func TestNormalizeUnmappedStatusFailsClosedToWarning(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": "2026-08-28T10:00:00Z", "status": "inflight"},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.StatusWarning, res.Events[0].Status)
	assert.Equal(t, 1, res.UnmappedStatuses)
}

func TestNormalizeCountDefaultsToOne(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": "2026-08-28T10:00:00Z", "status": "success"},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Events[0].RecordCount)
}

func TestNormalizeUnparseableCountIsMalformed(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{"created": "2026-08-28T10:00:00Z", "status": "success", "recordCount": "many"},
	})

	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Dropped)
}

func TestNormalizeAppendsSampleEvent(t *testing.T) {
	t.Parallel()

	n := New(nil)
	res := n.Normalize(salesDataset(), []domain.RawRecord{
		{
			"created": "2026-08-28T10:00:00Z",
			"status":  "failed",
			"errors": []any{
				map[string]any{"code": "E1", "description": "schema mismatch"},
			},
			"sampleEvent": "pageView (https://shop.example/checkout)",
		},
		{
			"created":     "2026-08-28T11:00:00Z",
			"status":      "failed",
			"sampleEvent": "pageView",
		},
	})

	require.Len(t, res.Events, 2)
	assert.Equal(t, "schema mismatch (sample: pageView (https://shop.example/checkout))", res.Events[0].ErrorMessage)
	assert.Equal(t, "sample: pageView", res.Events[1].ErrorMessage)
}

func TestLookupPathArrayDescent(t *testing.T) {
	t.Parallel()

	rec := map[string]any{
		"tags": map[string]any{
			"flowId": []any{"flow-7"},
		},
	}

	v, ok := lookupPath(rec, "tags.flowId")
	require.True(t, ok)
	assert.Equal(t, "flow-7", v)

	_, ok = lookupPath(rec, "tags.missing")
	assert.False(t, ok)
}
