package aep

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/fetch"

	"github.com/cockroachdb/errors"
)

func TestFetchBuildsWindowQuery(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(config.SourceConfig{BaseURL: server.URL}, nil)

	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := client.Fetch(context.Background(), fetch.Request{
		DatasetID:   "sales",
		WindowStart: start,
		WindowEnd:   end,
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if gotQuery["dataSet"] != "sales" {
		t.Fatalf("expected dataSet=sales, got %s", gotQuery["dataSet"])
	}
	if gotQuery["status"] != "failed" {
		t.Fatalf("expected status=failed, got %s", gotQuery["status"])
	}
	if gotQuery["createdAfter"] != "1787875200000" {
		t.Fatalf("unexpected createdAfter: %s", gotQuery["createdAfter"])
	}
	if gotQuery["createdBefore"] != "1787961600000" {
		t.Fatalf("unexpected createdBefore: %s", gotQuery["createdBefore"])
	}
}

func TestFetchFlattensBatches(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"batch-2": {
				"status": "failed",
				"created": 1787800000000,
				"errors": [{"code": "E1", "description": "schema mismatch"}],
				"tags": {"flowId": ["flow-7"]}
			},
			"batch-1": {
				"status": "failed",
				"created": 1787790000000,
				"errors": [{"code": "E2", "description": "bad payload"}]
			}
		}`))
	}))
	defer server.Close()

	client := New(config.SourceConfig{BaseURL: server.URL}, nil)

	records, err := client.Fetch(context.Background(), fetch.Request{DatasetID: "sales"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["batchId"] != "batch-1" || records[1]["batchId"] != "batch-2" {
		t.Fatalf("records not ordered by batch ID: %v, %v", records[0]["batchId"], records[1]["batchId"])
	}
	if records[0]["status"] != "failed" {
		t.Fatalf("expected status carried through, got %v", records[0]["status"])
	}
}

func TestFetchDrillsIntoFailedBatchLocation(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/batches", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"batch-1": {
				"status": "failed",
				"failedBatchLocation": "` + server.URL + `/failed/batch-1"
			}
		}`))
	})
	mux.HandleFunc("/failed/batch-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"_links": {"self": {"href": "` + server.URL + `/files/f1"}}}]}`))
	})
	mux.HandleFunc("/files/f1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"body": {"xdmEntity": {"eventType": "web.formFilledOut", "web": {"webPageDetails": {"URL": "https://shop.example/checkout"}}}}}` + "\n"))
	})

	client := New(config.SourceConfig{BaseURL: server.URL + "/batches", FetchFailedRecords: true}, nil)

	records, err := client.Fetch(context.Background(), fetch.Request{DatasetID: "sales"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := "web.formFilledOut (https://shop.example/checkout)"
	if records[0]["sampleEvent"] != want {
		t.Fatalf("expected sample event %q, got %v", want, records[0]["sampleEvent"])
	}
}

func TestFetchAuthFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(config.SourceConfig{BaseURL: server.URL}, nil)

	_, err := client.Fetch(context.Background(), fetch.Request{DatasetID: "sales"})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
