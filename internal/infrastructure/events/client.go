// Package events fetches records from a generic JSON events API: a GET
// over the window returning an array of objects, passed through untouched
// for the normalizer to interpret.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/fetch"
)

const defaultTimeout = 15 * time.Second

// Client is a thin window-scoped reader over one events endpoint.
type Client struct {
	baseURL     string
	headers     map[string]string
	queryParams map[string]string
	rc          *resty.Client
}

var _ fetch.Fetcher = (*Client)(nil)

// New builds a client from source configuration.
func New(cfg config.SourceConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		headers:     cfg.Headers,
		queryParams: cfg.QueryParams,
		rc:          resty.New().SetTimeout(timeout).SetRetryCount(cfg.Retries),
	}
}

// Name identifies the strategy inside the registry.
func (c *Client) Name() string {
	return "events"
}

// Fetch requests the dataset's events for the window. Static query params
// from config come first, then per-dataset options, then the window bounds
// as epoch milliseconds.
func (c *Client) Fetch(ctx context.Context, req fetch.Request) ([]domain.RawRecord, error) {
	if c.baseURL == "" {
		return nil, errors.New("events client misconfigured: empty base URL")
	}

	params := map[string]string{}
	for k, v := range c.queryParams {
		params[k] = v
	}
	for k, v := range req.Options {
		params[k] = v
	}
	params["dataset"] = req.DatasetID
	params["createdAfter"] = strconv.FormatInt(req.WindowStart.UnixMilli(), 10)
	params["createdBefore"] = strconv.FormatInt(req.WindowEnd.UnixMilli(), 10)

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		SetQueryParams(params).
		Get(c.baseURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "request events"), domain.ErrNetwork)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, errors.Mark(errors.Newf("events api returned %s", resp.Status()), domain.ErrAuth)
	}
	if resp.IsError() {
		return nil, errors.Mark(errors.Newf("events api returned %s", resp.Status()), domain.ErrNetwork)
	}

	var records []domain.RawRecord
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, errors.Wrap(err, "decode events")
	}

	return records, nil
}
