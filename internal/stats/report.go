// Package stats reconstructs, normalizes and aggregates WebRTC
// getStats telemetry. It reconciles the three vendor dialects
// (Chrome/Safari standard, Firefox, Chrome legacy goog-stats) into one
// canonical model and folds per-sample series into per-connection and
// per-track summaries.
package stats

import "strconv"

// Report is a single stats report inside a snapshot: named fields plus
// a "type" discriminator. Legacy dialects encode numbers and booleans
// as strings, the accessors below absorb that.
type Report map[string]any

func (r Report) Type() string {
	return r.Str("type")
}

func (r Report) Str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Num returns the field as a float64. Legacy goog fields arrive as
// strings, standard ones as JSON numbers.
func (r Report) Num(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (r Report) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func (r Report) has(key string) bool {
	_, ok := r[key]
	return ok
}

func (r Report) clone() Report {
	out := make(Report, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MediaType returns the media kind of the report, accepting both the
// legacy mediaType and the standard kind field names.
func (r Report) MediaType() string {
	if mt := r.Str("mediaType"); mt != "" {
		return mt
	}
	return r.Str("kind")
}

// Snapshot is the full set of stats reports for one peer connection at
// one point in time, keyed by report id.
type Snapshot map[string]Report

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, r := range s {
		out[id] = r.clone()
	}
	return out
}
