package domain

import "github.com/cockroachdb/errors"

// Sentinel errors for the pipeline taxonomy. Wrap with errors.Wrap or mark
// with errors.Mark to add context while keeping errors.Is checks working.
var (
	// ErrMalformedRecord marks a record the normalizer could not map; the
	// record is dropped and counted, never promoted to success.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrFetchFailed marks a dataset-level fetch failure after the source
	// client exhausted its own retries.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNetwork marks transport-level failures talking to a source API.
	ErrNetwork = errors.New("network error")

	// ErrAuth marks a source API rejecting our credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrPipelineTimeout marks a run killed by its overall deadline; no
	// report is delivered for such a run.
	ErrPipelineTimeout = errors.New("pipeline timed out")

	// ErrDelivery marks per-sink delivery failures.
	ErrDelivery = errors.New("delivery failed")
)

// IsMalformedRecord reports whether err is or wraps ErrMalformedRecord.
func IsMalformedRecord(err error) bool {
	return err != nil && errors.Is(err, ErrMalformedRecord)
}

// IsPipelineTimeout reports whether err is or wraps ErrPipelineTimeout.
func IsPipelineTimeout(err error) bool {
	return err != nil && errors.Is(err, ErrPipelineTimeout)
}
