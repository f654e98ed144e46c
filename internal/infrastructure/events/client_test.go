package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/fetch"
)

func TestFetchDecodesArray(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "orders", r.URL.Query().Get("dataset"))
		assert.Equal(t, "ingest", r.URL.Query().Get("channel"))
		_, _ = w.Write([]byte(`[
			{"status": "ok", "ts": "2026-08-28T10:00:00Z"},
			{"status": "error", "ts": "2026-08-28T11:00:00Z", "code": "E9"}
		]`))
	}))
	defer server.Close()

	client := New(config.SourceConfig{
		BaseURL:     server.URL,
		QueryParams: map[string]string{"channel": "ingest"},
	})

	records, err := client.Fetch(context.Background(), fetch.Request{DatasetID: "orders"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "error", records[1]["status"])
}

func TestFetchErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(config.SourceConfig{BaseURL: server.URL})

	_, err := client.Fetch(context.Background(), fetch.Request{DatasetID: "orders"})
	require.Error(t, err)
}
