// Package report assembles and renders the deterministic run report. The
// same classified input always renders to byte-identical text apart from
// the generated-at header line, which is why sinks can dedup on the body
// fingerprint.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"IngestionAlerter/internal/domain"
)

var statusRank = map[domain.Health]int{
	domain.HealthUnreachable: 0,
	domain.HealthCritical:    1,
	domain.HealthDegraded:    2,
	domain.HealthHealthy:     3,
}

// Build assembles the report from classified summaries: stable ordering
// (worst status first, dataset ID ascending within a status) and the
// overall verdict.
func Build(runID string, generatedAt time.Time, windowStart, windowEnd time.Time, summaries []domain.DatasetSummary) domain.Report {
	ordered := make([]domain.DatasetSummary, len(summaries))
	copy(ordered, summaries)

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := statusRank[ordered[i].Status], statusRank[ordered[j].Status]
		if ri != rj {
			return ri < rj
		}
		return ordered[i].DatasetID < ordered[j].DatasetID
	})

	return domain.Report{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Summaries:   ordered,
		Overall:     overall(ordered),
	}
}

// Render produces the full text artifact including the generated-at header.
func Render(r domain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingestion report %s (run %s)\n", r.GeneratedAt.UTC().Format(time.RFC3339), r.RunID)
	b.WriteString(renderBody(r))
	return b.String()
}

// Fingerprint hashes the body only, so identical classified input produces
// the same fingerprint regardless of when it was rendered.
func Fingerprint(r domain.Report) string {
	sum := sha256.Sum256([]byte(renderBody(r)))
	return hex.EncodeToString(sum[:])
}

func renderBody(r domain.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Window: %s .. %s\n", r.WindowStart.UTC().Format(time.RFC3339), r.WindowEnd.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall: %s\n\n", strings.ToUpper(string(r.Overall)))

	for _, s := range r.Summaries {
		if s.Status == domain.HealthUnreachable {
			fmt.Fprintf(&b, "[%s] %s: fetch failed: %s\n", strings.ToUpper(string(s.Status)), s.DatasetID, s.FetchError)
			continue
		}

		fmt.Fprintf(&b, "[%s] %s: %d events, %d failed, %d warnings\n",
			strings.ToUpper(string(s.Status)), s.DatasetID, s.TotalEvents, s.FailureCount, s.WarningCount)

		if s.DroppedRecords > 0 || s.UnmappedStatuses > 0 {
			fmt.Fprintf(&b, "  anomalies: %d malformed dropped, %d unmapped statuses\n", s.DroppedRecords, s.UnmappedStatuses)
		}

		if len(s.TopErrors) > 0 {
			b.WriteString("  top errors:\n")
			for _, e := range s.TopErrors {
				if e.Sample != "" {
					fmt.Fprintf(&b, "    %s x%d: %s\n", e.Code, e.Count, e.Sample)
				} else {
					fmt.Fprintf(&b, "    %s x%d\n", e.Code, e.Count)
				}
			}
		}
	}

	return b.String()
}

// overall is the worst dataset condition; an unreachable dataset makes the
// whole run critical.
func overall(summaries []domain.DatasetSummary) domain.Health {
	result := domain.HealthHealthy
	for _, s := range summaries {
		status := s.Status
		if status == domain.HealthUnreachable {
			status = domain.HealthCritical
		}
		if statusRank[status] < statusRank[result] {
			result = status
		}
	}
	return result
}
