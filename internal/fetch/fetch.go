package fetch

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"IngestionAlerter/internal/domain"
)

// Request carries all parameters required to fetch one dataset's records.
type Request struct {
	DatasetID   string
	WindowStart time.Time
	WindowEnd   time.Time
	Options     map[string]string
}

// Fetcher captures a single source strategy (AEP batches, events API, etc.).
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.RawRecord, error)
}

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: map[string]Fetcher{}}
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[string]Fetcher{}
	}
	r.fetchers[f.Name()] = f
}

// Resolve returns a fetcher by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Fetcher, error) {
	if f, ok := r.fetchers[name]; ok {
		return f, nil
	}
	return nil, errors.Newf("source %s is not registered", name)
}
