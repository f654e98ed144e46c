package normalize

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/domain"
)

// Result is one dataset's normalization outcome. Dropped counts records
// excluded as malformed; UnmappedStatuses counts records whose source
// status had no vocabulary entry and failed closed to warning.
type Result struct {
	Events           []domain.IngestionEvent
	Dropped          int
	UnmappedStatuses int
}

// Normalizer reduces heterogeneous raw records to IngestionEvents using the
// per-dataset field mapping. Records it cannot map are dropped and counted,
// never fabricated and never counted as success.
type Normalizer struct {
	logger *slog.Logger
}

// New builds a normalizer; a nil logger disables per-record logging.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts records for one dataset. Malformed records fail
// locally: they are logged, counted, and excluded without aborting the
// batch.
func (n *Normalizer) Normalize(ds config.DatasetConfig, records []domain.RawRecord) Result {
	res := Result{Events: make([]domain.IngestionEvent, 0, len(records))}

	for _, rec := range records {
		event, unmapped, err := n.normalizeOne(ds, rec)
		if err != nil {
			res.Dropped++
			if n.logger != nil {
				n.logger.Warn("record dropped", "dataset", ds.ID, "error", err)
			}
			continue
		}
		if unmapped {
			res.UnmappedStatuses++
		}
		res.Events = append(res.Events, event)
	}

	return res
}

func (n *Normalizer) normalizeOne(ds config.DatasetConfig, rec domain.RawRecord) (domain.IngestionEvent, bool, error) {
	mapping := ds.FieldMapping

	if mapping.Status == "" {
		return domain.IngestionEvent{}, false, errors.Wrap(domain.ErrMalformedRecord, "no status field configured")
	}

	rawStatus, ok := lookupPath(rec, mapping.Status)
	if !ok {
		return domain.IngestionEvent{}, false, errors.Wrapf(domain.ErrMalformedRecord, "status field %q missing", mapping.Status)
	}

	status, unmapped := mapStatus(asString(rawStatus), ds.StatusMap)

	ts := time.Time{}
	if mapping.Timestamp != "" {
		rawTS, ok := lookupPath(rec, mapping.Timestamp)
		if !ok {
			return domain.IngestionEvent{}, false, errors.Wrapf(domain.ErrMalformedRecord, "timestamp field %q missing", mapping.Timestamp)
		}
		parsed, err := parseTimestamp(rawTS, mapping.TimeLayout)
		if err != nil {
			return domain.IngestionEvent{}, false, errors.Wrapf(domain.ErrMalformedRecord, "timestamp field %q: %v", mapping.Timestamp, err)
		}
		ts = parsed
	}

	count := 1
	if mapping.Count != "" {
		if rawCount, ok := lookupPath(rec, mapping.Count); ok {
			parsed, err := parseCount(rawCount)
			if err != nil {
				return domain.IngestionEvent{}, false, errors.Wrapf(domain.ErrMalformedRecord, "count field %q: %v", mapping.Count, err)
			}
			count = parsed
		}
	}

	event := domain.IngestionEvent{
		DatasetID:   ds.ID,
		Timestamp:   ts,
		Status:      status,
		RecordCount: count,
	}

	if mapping.ErrorCode != "" {
		if v, ok := lookupPath(rec, mapping.ErrorCode); ok {
			event.ErrorCode = asString(v)
		}
	}
	if mapping.ErrorMessage != "" {
		if v, ok := lookupPath(rec, mapping.ErrorMessage); ok {
			event.ErrorMessage = asString(v)
		}
	}

	// Fetchers that drill into failed records leave a sample description
	// alongside the mapped fields; it augments the error message.
	if sample, ok := rec["sampleEvent"].(string); ok && sample != "" {
		if event.ErrorMessage == "" {
			event.ErrorMessage = "sample: " + sample
		} else {
			event.ErrorMessage += " (sample: " + sample + ")"
		}
	}

	return event, unmapped, nil
}

// mapStatus translates a source status through the configured vocabulary.
// Unmapped values fail closed to warning.
func mapStatus(raw string, vocab map[string]string) (domain.Status, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := vocab[key]; ok {
		switch domain.Status(mapped) {
		case domain.StatusSuccess, domain.StatusWarning, domain.StatusFailure:
			return domain.Status(mapped), false
		}
	}
	return domain.StatusWarning, true
}

// lookupPath walks a dot-separated path through nested maps. A segment
// applied to an array descends into its first element, which covers source
// shapes like errors[0].code.
func lookupPath(rec map[string]any, path string) (any, bool) {
	var current any = rec
	for _, seg := range strings.Split(path, ".") {
		if arr, ok := current.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			current = arr[0]
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if arr, ok := current.([]any); ok {
		if len(arr) == 0 {
			return nil, false
		}
		current = arr[0]
	}
	return current, true
}

// parseTimestamp accepts RFC3339 strings, an optional configured layout,
// and epoch milliseconds as a number or numeric string. Results are UTC.
func parseTimestamp(v any, layout string) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if layout != "" {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed.UTC(), nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, errors.Newf("unparseable timestamp %q", s)
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, errors.Newf("unparseable timestamp %q", t.String())
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, errors.Newf("unsupported timestamp type %T", v)
	}
}

func parseCount(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.Newf("unparseable count %q", t.String())
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, errors.Newf("unparseable count %q", t)
		}
		return n, nil
	default:
		return 0, errors.Newf("unsupported count type %T", v)
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
