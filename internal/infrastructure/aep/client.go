// Package aep fetches ingestion batches from the Adobe Experience Platform
// catalog API and flattens them into raw records for normalization.
package aep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/fetch"
)

const defaultTimeout = 20 * time.Second

// Client queries the batches endpoint for one window and dataset. Retries
// are resty's, configured once at construction; exhausting them surfaces as
// a dataset-level fetch failure upstream.
type Client struct {
	baseURL            string
	headers            map[string]string
	rc                 *resty.Client
	fetchFailedRecords bool
	sampleLimit        int
	logger             *slog.Logger
}

var _ fetch.Fetcher = (*Client)(nil)

// New builds a client from source configuration.
func New(cfg config.SourceConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries)

	return &Client{
		baseURL:            cfg.BaseURL,
		headers:            cfg.Headers,
		rc:                 rc,
		fetchFailedRecords: cfg.FetchFailedRecords,
		sampleLimit:        3,
		logger:             logger,
	}
}

// Name identifies the strategy inside the registry.
func (c *Client) Name() string {
	return "aep"
}

// Fetch pulls failed batches for the dataset over the window. The window
// bounds go out as epoch milliseconds. The response is an object keyed by
// batch ID; each batch becomes one raw record carrying its ID.
func (c *Client) Fetch(ctx context.Context, req fetch.Request) ([]domain.RawRecord, error) {
	if c.baseURL == "" {
		return nil, errors.New("aep client misconfigured: empty base URL")
	}

	params := map[string]string{
		"dataSet":       req.DatasetID,
		"createdAfter":  strconv.FormatInt(req.WindowStart.UnixMilli(), 10),
		"createdBefore": strconv.FormatInt(req.WindowEnd.UnixMilli(), 10),
		"status":        "failed",
		"orderBy":       "asc:created",
	}
	for k, v := range req.Options {
		params[k] = v
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		SetQueryParams(params).
		Get(c.baseURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "request batches"), domain.ErrNetwork)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, errors.Mark(errors.Newf("aep returned %s", resp.Status()), domain.ErrAuth)
	}
	if resp.IsError() {
		return nil, errors.Mark(errors.Newf("aep returned %s", resp.Status()), domain.ErrNetwork)
	}

	var batches map[string]map[string]any
	if err := json.Unmarshal(resp.Body(), &batches); err != nil {
		return nil, errors.Wrap(err, "decode batches")
	}

	// Stable record order by batch ID; the response object has no order of
	// its own.
	ids := make([]string, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]domain.RawRecord, 0, len(batches))
	for _, id := range ids {
		info := batches[id]
		rec := domain.RawRecord{"batchId": id}
		for k, v := range info {
			rec[k] = v
		}

		if c.fetchFailedRecords {
			if loc, ok := info["failedBatchLocation"].(string); ok && loc != "" {
				if sample := c.sampleFailedEvent(ctx, loc); sample != "" {
					rec["sampleEvent"] = sample
				}
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

// sampleFailedEvent drills from the failed-batch location to the first
// failed event and describes it. Any failure along the way degrades to an
// empty sample; the batch record itself is never lost.
func (c *Client) sampleFailedEvent(ctx context.Context, location string) string {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		Get(location)
	if err != nil || resp.IsError() {
		c.debug("failed batch location unavailable", "location", location, "error", err)
		return ""
	}

	var listing struct {
		Data []struct {
			Links struct {
				Self struct {
					Href string `json:"href"`
				} `json:"self"`
			} `json:"_links"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		c.debug("failed batch listing undecodable", "location", location, "error", err)
		return ""
	}

	for i, item := range listing.Data {
		if i >= c.sampleLimit {
			break
		}
		href := item.Links.Self.Href
		if href == "" {
			continue
		}
		if sample := c.describeFailedEvent(ctx, href); sample != "" {
			return sample
		}
	}

	return ""
}

func (c *Client) describeFailedEvent(ctx context.Context, href string) string {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		Get(href)
	if err != nil || resp.IsError() {
		return ""
	}

	// The file is newline-delimited JSON; the first decodable event wins.
	for _, line := range strings.Split(string(resp.Body()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var event struct {
			Body struct {
				XDMEntity struct {
					EventType string `json:"eventType"`
					Web       struct {
						WebPageDetails struct {
							URL string `json:"URL"`
						} `json:"webPageDetails"`
					} `json:"web"`
				} `json:"xdmEntity"`
			} `json:"body"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		entity := event.Body.XDMEntity
		if entity.EventType == "" && entity.Web.WebPageDetails.URL == "" {
			continue
		}
		if entity.Web.WebPageDetails.URL == "" {
			return entity.EventType
		}
		return fmt.Sprintf("%s (%s)", entity.EventType, entity.Web.WebPageDetails.URL)
	}

	return ""
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
