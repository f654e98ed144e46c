// Package sheets appends one row per dataset summary to a Google
// Spreadsheet, keeping a queryable history of run outcomes.
package sheets

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/ports"
)

// Sink appends report rows to a fixed spreadsheet range.
type Sink struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetRange    string
}

var _ ports.ReportSink = (*Sink)(nil)

// New wires a service-account client and the append target.
func New(ctx context.Context, cfg config.SheetsSinkConfig) (*Sink, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read sheets credentials")
	}

	serviceConfig, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse sheets credentials")
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(serviceConfig.Client(ctx)))
	if err != nil {
		return nil, errors.Wrap(err, "build sheets service")
	}

	sheetRange := cfg.SheetRange
	if sheetRange == "" {
		sheetRange = "Runs!A1"
	}

	return &Sink{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetRange: sheetRange}, nil
}

// Name identifies the sink in delivery results.
func (s *Sink) Name() string {
	return "sheets"
}

// Deliver appends one row per summary plus a leading run row.
func (s *Sink) Deliver(ctx context.Context, report domain.Report) error {
	vr := &sheetsapi.ValueRange{Values: reportRows(report)}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "append report rows"), domain.ErrDelivery)
	}

	return nil
}

func reportRows(report domain.Report) [][]interface{} {
	generated := report.GeneratedAt.UTC().Format(time.RFC3339)

	rows := [][]interface{}{
		{generated, report.RunID, "run", string(report.Overall), len(report.Summaries), "", ""},
	}

	for _, s := range report.Summaries {
		top := ""
		if len(s.TopErrors) > 0 {
			top = s.TopErrors[0].Code
		}
		if s.Status == domain.HealthUnreachable {
			top = s.FetchError
		}
		rows = append(rows, []interface{}{
			generated, report.RunID, s.DatasetID, string(s.Status), s.TotalEvents, s.FailureCount, top,
		})
	}

	return rows
}
