// Package googlechat posts run reports to a Google Chat space through an
// incoming webhook, using the card message layout.
package googlechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/ports"
)

type cardMessage struct {
	Cards []card `json:"cards"`
}

type card struct {
	Header   cardHeader    `json:"header"`
	Sections []cardSection `json:"sections"`
}

type cardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

type cardSection struct {
	Widgets []cardWidget `json:"widgets"`
}

type cardWidget struct {
	TextParagraph *textParagraph `json:"textParagraph,omitempty"`
	KeyValue      *keyValue      `json:"keyValue,omitempty"`
}

type textParagraph struct {
	Text string `json:"text"`
}

type keyValue struct {
	TopLabel         string `json:"topLabel"`
	Content          string `json:"content"`
	ContentMultiline bool   `json:"contentMultiline"`
}

// Notifier delivers reports to one webhook URL.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.ReportSink = (*Notifier)(nil)

// New registers the webhook target.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the sink in delivery results.
func (n *Notifier) Name() string {
	return "googlechat"
}

// Deliver posts the report as a card message. An all-clear card goes out
// when every dataset is healthy; otherwise one section per problem dataset.
func (n *Notifier) Deliver(ctx context.Context, report domain.Report) error {
	return n.post(ctx, buildCard(report))
}

// DeliverRunFailure posts an error card for a run that produced no report,
// so a broken pipeline is as loud as a broken dataset.
func (n *Notifier) DeliverRunFailure(ctx context.Context, runErr error) error {
	msg := cardMessage{Cards: []card{{
		Header: cardHeader{
			Title:    "Ingestion alert run failed",
			Subtitle: fmt.Sprintf("Sent: %s", time.Now().UTC().Format("2006-01-02 15:04:05")),
		},
		Sections: []cardSection{{
			Widgets: []cardWidget{{
				TextParagraph: &textParagraph{Text: runErr.Error()},
			}},
		}},
	}}}
	return n.post(ctx, msg)
}

func (n *Notifier) post(ctx context.Context, msg cardMessage) error {
	if n.webhookURL == "" || n.client == nil {
		return errors.Mark(errors.New("chat notifier misconfigured"), domain.ErrDelivery)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "marshal card message"), domain.ErrDelivery)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "new request"), domain.ErrDelivery)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "post card message"), domain.ErrDelivery)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Mark(
			errors.Newf("chat webhook returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
			domain.ErrDelivery)
	}

	return nil
}

func buildCard(report domain.Report) cardMessage {
	subtitle := fmt.Sprintf("Sent: %s | Window: %s .. %s",
		report.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
		report.WindowStart.UTC().Format("2006-01-02 15:04"),
		report.WindowEnd.UTC().Format("2006-01-02 15:04"))

	if report.Overall == domain.HealthHealthy {
		return cardMessage{Cards: []card{{
			Header: cardHeader{Title: "Ingestion report: all clear", Subtitle: subtitle},
			Sections: []cardSection{{
				Widgets: []cardWidget{{
					TextParagraph: &textParagraph{
						Text: fmt.Sprintf("No ingestion errors across %d datasets.", len(report.Summaries)),
					},
				}},
			}},
		}}}
	}

	alert := card{
		Header: cardHeader{
			Title:    fmt.Sprintf("Ingestion report: %s", strings.ToUpper(string(report.Overall))),
			Subtitle: subtitle,
		},
	}

	for _, s := range report.Summaries {
		if s.Status == domain.HealthHealthy {
			continue
		}
		alert.Sections = append(alert.Sections, summarySection(s))
	}

	return cardMessage{Cards: []card{alert}}
}

func summarySection(s domain.DatasetSummary) cardSection {
	section := cardSection{}

	if s.Status == domain.HealthUnreachable {
		section.Widgets = append(section.Widgets, cardWidget{
			TextParagraph: &textParagraph{
				Text: fmt.Sprintf("<b>Dataset:</b> %s<br><b>Status:</b> %s<br><b>Fetch failed:</b> %s",
					s.DatasetID, s.Status, s.FetchError),
			},
		})
		return section
	}

	section.Widgets = append(section.Widgets, cardWidget{
		TextParagraph: &textParagraph{
			Text: fmt.Sprintf("<b>Dataset:</b> %s<br><b>Status:</b> %s<br><b>Events:</b> %d, <b>failed:</b> %d, <b>warnings:</b> %d",
				s.DatasetID, s.Status, s.TotalEvents, s.FailureCount, s.WarningCount),
		},
	})

	for _, e := range s.TopErrors {
		content := fmt.Sprintf("%d occurrences", e.Count)
		if e.Sample != "" {
			content = fmt.Sprintf("%d occurrences: %s", e.Count, e.Sample)
		}
		section.Widgets = append(section.Widgets, cardWidget{
			KeyValue: &keyValue{
				TopLabel:         e.Code,
				Content:          content,
				ContentMultiline: true,
			},
		})
	}

	return section
}
