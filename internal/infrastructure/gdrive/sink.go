// Package gdrive uploads the rendered report text into a Drive folder, one
// file per run.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2/google"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/ports"
	"IngestionAlerter/internal/report"
)

// Sink writes one plain-text report file per run.
type Sink struct {
	svc      *driveapi.Service
	folderID string
}

var _ ports.ReportSink = (*Sink)(nil)

// New wires a service-account client and the target folder.
func New(ctx context.Context, cfg config.DriveSinkConfig) (*Sink, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read drive credentials")
	}

	serviceConfig, err := google.JWTConfigFromJSON(data, driveapi.DriveFileScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse drive credentials")
	}

	svc, err := driveapi.NewService(ctx, option.WithHTTPClient(serviceConfig.Client(ctx)))
	if err != nil {
		return nil, errors.Wrap(err, "build drive service")
	}

	return &Sink{svc: svc, folderID: cfg.FolderID}, nil
}

// Name identifies the sink in delivery results.
func (s *Sink) Name() string {
	return "gdrive"
}

// Deliver uploads the rendered report.
func (s *Sink) Deliver(ctx context.Context, r domain.Report) error {
	name := fmt.Sprintf("ingestion-report-%s.txt", r.GeneratedAt.UTC().Format("2006-01-02T15-04-05"))

	_, err := s.svc.Files.Create(&driveapi.File{
		Name:     name,
		MimeType: "text/plain",
		Parents:  []string{s.folderID},
	}).
		Media(strings.NewReader(report.Render(r))).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "upload report file"), domain.ErrDelivery)
	}

	return nil
}
