package classify

import (
	"sort"
	"time"

	"IngestionAlerter/internal/domain"
)

// Thresholds are failure-ratio cutoffs. A dataset is critical when its
// failure ratio strictly exceeds Critical, so 0 means any failure is
// critical and 1 means no ratio ever qualifies.
type Thresholds struct {
	Degraded float64
	Critical float64
}

// DatasetPolicy declares a dataset the run expects to see. ExpectContinuous
// datasets with zero events in the window are reported degraded; silence is
// normal for expect-sparse datasets.
type DatasetPolicy struct {
	ID               string
	ExpectContinuous bool
}

// Anomalies carries the normalizer's per-dataset counters into summaries.
type Anomalies struct {
	Dropped          int
	UnmappedStatuses int
}

// Input bundles everything one classification pass consumes.
type Input struct {
	Events      []domain.IngestionEvent
	WindowStart time.Time
	WindowEnd   time.Time
	Expected    []DatasetPolicy
	Anomalies   map[string]Anomalies
	// FetchFailures maps dataset IDs whose fetch failed to the error text;
	// they surface as unreachable summaries, never silently omitted.
	FetchFailures map[string]string
}

// Classifier aggregates normalized events into per-dataset summaries.
type Classifier struct {
	thresholds   Thresholds
	maxTopErrors int
}

// New builds a classifier. maxTopErrors truncates the ranked error list.
func New(thresholds Thresholds, maxTopErrors int) *Classifier {
	if maxTopErrors <= 0 {
		maxTopErrors = 5
	}
	return &Classifier{thresholds: thresholds, maxTopErrors: maxTopErrors}
}

type errorTally struct {
	code      string
	count     int
	firstSeen int
	sample    string
}

type datasetTally struct {
	success  int
	failure  int
	warning  int
	total    int
	errors   map[string]*errorTally
	errOrder int
}

// Summarize groups in-window events by dataset and emits one summary per
// expected dataset plus one per extra dataset present in the events.
// Events outside the closed window [start, end] are discarded.
func (c *Classifier) Summarize(in Input) []domain.DatasetSummary {
	tallies := map[string]*datasetTally{}
	var seenOrder []string

	for _, ev := range in.Events {
		if ev.Timestamp.Before(in.WindowStart) || ev.Timestamp.After(in.WindowEnd) {
			continue
		}

		tally, ok := tallies[ev.DatasetID]
		if !ok {
			tally = &datasetTally{errors: map[string]*errorTally{}}
			tallies[ev.DatasetID] = tally
			seenOrder = append(seenOrder, ev.DatasetID)
		}

		tally.total++
		switch ev.Status {
		case domain.StatusFailure:
			tally.failure++
		case domain.StatusWarning:
			tally.warning++
		default:
			tally.success++
		}

		if ev.ErrorCode != "" {
			et, ok := tally.errors[ev.ErrorCode]
			if !ok {
				et = &errorTally{code: ev.ErrorCode, firstSeen: tally.errOrder, sample: ev.ErrorMessage}
				tally.errors[ev.ErrorCode] = et
				tally.errOrder++
			}
			et.count++
		}
	}

	var summaries []domain.DatasetSummary
	emitted := map[string]bool{}

	for _, policy := range in.Expected {
		if emitted[policy.ID] {
			continue
		}
		emitted[policy.ID] = true
		summaries = append(summaries, c.summaryFor(policy.ID, tallies[policy.ID], policy.ExpectContinuous, in))
	}

	for _, id := range seenOrder {
		if emitted[id] {
			continue
		}
		emitted[id] = true
		summaries = append(summaries, c.summaryFor(id, tallies[id], false, in))
	}

	for id, msg := range in.FetchFailures {
		if emitted[id] {
			continue
		}
		summaries = append(summaries, domain.DatasetSummary{
			DatasetID:   id,
			WindowStart: in.WindowStart,
			WindowEnd:   in.WindowEnd,
			Status:      domain.HealthUnreachable,
			FetchError:  msg,
		})
	}

	return summaries
}

func (c *Classifier) summaryFor(id string, tally *datasetTally, expectContinuous bool, in Input) domain.DatasetSummary {
	summary := domain.DatasetSummary{
		DatasetID:   id,
		WindowStart: in.WindowStart,
		WindowEnd:   in.WindowEnd,
	}

	if msg, failed := in.FetchFailures[id]; failed {
		summary.Status = domain.HealthUnreachable
		summary.FetchError = msg
		return summary
	}

	if a, ok := in.Anomalies[id]; ok {
		summary.DroppedRecords = a.Dropped
		summary.UnmappedStatuses = a.UnmappedStatuses
	}

	if tally == nil || tally.total == 0 {
		if expectContinuous {
			summary.Status = domain.HealthDegraded
		} else {
			summary.Status = domain.HealthHealthy
		}
		return summary
	}

	summary.TotalEvents = tally.total
	summary.SuccessCount = tally.success
	summary.FailureCount = tally.failure
	summary.WarningCount = tally.warning
	summary.TopErrors = c.rankErrors(tally)
	summary.Status = c.health(tally)

	return summary
}

// rankErrors orders distinct codes by count descending, ties broken by
// first-seen order so the result never depends on map iteration.
func (c *Classifier) rankErrors(tally *datasetTally) []domain.ErrorStat {
	ranked := make([]*errorTally, 0, len(tally.errors))
	for _, et := range tally.errors {
		ranked = append(ranked, et)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].firstSeen < ranked[j].firstSeen
	})

	if len(ranked) > c.maxTopErrors {
		ranked = ranked[:c.maxTopErrors]
	}

	stats := make([]domain.ErrorStat, 0, len(ranked))
	for _, et := range ranked {
		stats = append(stats, domain.ErrorStat{Code: et.code, Count: et.count, Sample: et.sample})
	}
	return stats
}

func (c *Classifier) health(tally *datasetTally) domain.Health {
	ratio := float64(tally.failure) / float64(tally.total)
	if ratio > c.thresholds.Critical {
		return domain.HealthCritical
	}
	if tally.failure > 0 && ratio > c.thresholds.Degraded {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}
