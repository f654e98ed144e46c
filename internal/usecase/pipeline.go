package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"IngestionAlerter/internal/classify"
	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
	"IngestionAlerter/internal/fetch"
	"IngestionAlerter/internal/normalize"
	"IngestionAlerter/internal/ports"
	"IngestionAlerter/internal/report"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Registry   *fetch.Registry
	Datasets   []config.DatasetConfig
	Normalizer *normalize.Normalizer
	Classifier *classify.Classifier
	Sinks      []ports.ReportSink
	Runs       ports.RunRepository
	WindowSize time.Duration
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// Pipeline implements one fetch, normalize, classify, build, deliver pass.
type Pipeline struct {
	registry   *fetch.Registry
	datasets   []config.DatasetConfig
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	sinks      []ports.ReportSink
	runs       ports.RunRepository
	windowSize time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		registry:   deps.Registry,
		datasets:   deps.Datasets,
		normalizer: deps.Normalizer,
		classifier: deps.Classifier,
		sinks:      deps.Sinks,
		runs:       deps.Runs,
		windowSize: deps.WindowSize,
		runTimeout: deps.RunTimeout,
		logger:     deps.Logger,
	}
}

type fetchResult struct {
	dataset config.DatasetConfig
	records []domain.RawRecord
	err     error
}

// Run executes one pipeline invocation ending at now. A run that cannot
// fetch any dataset fails loud and delivers nothing; a run that fetches
// some datasets reports them plus explicit unreachable entries for the
// rest.
func (p *Pipeline) Run(ctx context.Context, now time.Time) error {
	if len(p.datasets) == 0 {
		return errors.New("no datasets configured")
	}

	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	windowEnd := now.UTC()
	windowStart := windowEnd.Add(-p.windowSize)

	p.info("run started", "run", runID, "window_start", windowStart, "window_end", windowEnd, "datasets", len(p.datasets))

	if p.runs != nil {
		if last, ok, err := p.runs.LastWindowEnd(ctx); err != nil {
			p.warn("watermark lookup failed", "run", runID, "error", err)
		} else if ok && windowStart.After(last) {
			p.warn("coverage gap since previous run", "run", runID, "previous_window_end", last, "window_start", windowStart)
		}
	}

	results := p.fetchAll(ctx, windowStart, windowEnd)

	if err := p.ctxErr(ctx); err != nil {
		return err
	}

	fetched := 0
	fetchFailures := map[string]string{}
	for _, res := range results {
		if res.err != nil {
			p.warn("dataset fetch failed", "run", runID, "dataset", res.dataset.ID, "error", res.err)
			fetchFailures[res.dataset.ID] = res.err.Error()
			continue
		}
		fetched++
	}

	if fetched == 0 {
		combined := &multierror.Error{}
		for _, res := range results {
			combined = multierror.Append(combined, errors.Wrapf(res.err, "dataset %s", res.dataset.ID))
		}
		return errors.Mark(errors.Wrap(combined.ErrorOrNil(), "all dataset fetches failed"), domain.ErrFetchFailed)
	}

	var events []domain.IngestionEvent
	anomalies := map[string]classify.Anomalies{}
	for _, res := range results {
		if res.err != nil {
			continue
		}
		normalized := p.normalizer.Normalize(res.dataset, res.records)
		events = append(events, normalized.Events...)
		anomalies[res.dataset.ID] = classify.Anomalies{
			Dropped:          normalized.Dropped,
			UnmappedStatuses: normalized.UnmappedStatuses,
		}
	}

	expected := make([]classify.DatasetPolicy, 0, len(p.datasets))
	for _, ds := range p.datasets {
		expected = append(expected, classify.DatasetPolicy{ID: ds.ID, ExpectContinuous: ds.ExpectContinuous})
	}

	summaries := p.classifier.Summarize(classify.Input{
		Events:        events,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		Expected:      expected,
		Anomalies:     anomalies,
		FetchFailures: fetchFailures,
	})

	built := report.Build(runID, time.Now().UTC(), windowStart, windowEnd, summaries)
	fingerprint := report.Fingerprint(built)

	if p.runs != nil {
		delivered, err := p.runs.AlreadyDelivered(ctx, fingerprint)
		if err != nil {
			p.warn("dedup lookup failed", "run", runID, "error", err)
		} else if delivered {
			p.info("identical report already delivered, skipping", "run", runID, "fingerprint", fingerprint)
			return nil
		}
	}

	if err := p.ctxErr(ctx); err != nil {
		return err
	}

	sinkResults := p.deliverAll(ctx, built)

	deliveryErr := &multierror.Error{}
	for _, res := range sinkResults {
		if res.Err != nil {
			p.warn("sink delivery failed", "run", runID, "sink", res.Sink, "error", res.Err)
			deliveryErr = multierror.Append(deliveryErr, errors.Wrapf(res.Err, "sink %s", res.Sink))
			continue
		}
		p.info("sink delivery ok", "run", runID, "sink", res.Sink)
	}

	p.saveRun(ctx, built, fingerprint, deliveryErr.ErrorOrNil() == nil && len(p.sinks) > 0)

	if err := deliveryErr.ErrorOrNil(); err != nil {
		return errors.Mark(err, domain.ErrDelivery)
	}

	p.info("run finished", "run", runID, "overall", built.Overall)
	return nil
}

// fetchAll fans out one goroutine per dataset; each owns its result slot,
// and the WaitGroup is the join barrier before classification.
func (p *Pipeline) fetchAll(ctx context.Context, windowStart, windowEnd time.Time) []fetchResult {
	results := make([]fetchResult, len(p.datasets))

	var wg sync.WaitGroup
	for i, ds := range p.datasets {
		results[i].dataset = ds

		fetcher, err := p.registry.Resolve(ds.Source)
		if err != nil {
			results[i].err = errors.Mark(err, domain.ErrFetchFailed)
			continue
		}

		wg.Add(1)
		go func(i int, ds config.DatasetConfig, fetcher fetch.Fetcher) {
			defer wg.Done()
			records, err := fetcher.Fetch(ctx, fetch.Request{
				DatasetID:   ds.ID,
				WindowStart: windowStart,
				WindowEnd:   windowEnd,
				Options:     ds.Options,
			})
			if err != nil {
				results[i].err = errors.Mark(err, domain.ErrFetchFailed)
				return
			}
			results[i].records = records
		}(i, ds, fetcher)
	}
	wg.Wait()

	return results
}

// deliverAll fans out across sinks. Every sink is attempted; one sink's
// failure never blocks another.
func (p *Pipeline) deliverAll(ctx context.Context, built domain.Report) []domain.SinkResult {
	results := make([]domain.SinkResult, len(p.sinks))

	var g errgroup.Group
	for i, sink := range p.sinks {
		i, sink := i, sink
		g.Go(func() error {
			results[i] = domain.SinkResult{Sink: sink.Name(), Err: sink.Deliver(ctx, built)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) saveRun(ctx context.Context, built domain.Report, fingerprint string, delivered bool) {
	if p.runs == nil {
		return
	}

	datasets := make([]string, 0, len(built.Summaries))
	for _, s := range built.Summaries {
		datasets = append(datasets, s.DatasetID)
	}

	err := p.runs.SaveRun(ctx, domain.RunRecord{
		RunID:       built.RunID,
		WindowStart: built.WindowStart,
		WindowEnd:   built.WindowEnd,
		Overall:     built.Overall,
		Fingerprint: fingerprint,
		Datasets:    datasets,
		Delivered:   delivered,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		p.warn("save run record failed", "run", built.RunID, "error", err)
	}
}

// ctxErr separates the run's own deadline from an operator abort. Only the
// deadline becomes a pipeline timeout; a parent cancellation surfaces as
// itself instead of being blamed on the sources.
func (p *Pipeline) ctxErr(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Mark(ctx.Err(), domain.ErrPipelineTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	default:
		return nil
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
