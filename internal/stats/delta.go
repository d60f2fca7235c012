package stats

// The telemetry client delta-compresses successive snapshots: a report
// id mapped to null marks removal, a report carrying its "type" field
// is complete and replaces the prior entry, a report without "type" is
// a partial update holding only the fields that changed ("type" never
// changes, so the compressor strips it from partial diffs). Report ids
// not mentioned in the delta carry over unchanged.

// Decompress reconstructs a full snapshot from the previous full
// snapshot and a delta. It is pure: neither argument is mutated, and
// applying an empty delta returns an equal snapshot. When prev is nil
// the delta is the first snapshot for the connection and is already
// full.
func Decompress(prev, delta Snapshot) Snapshot {
	if prev == nil {
		return delta.Clone()
	}

	out := make(Snapshot, len(prev))
	for id, report := range prev {
		if d, mentioned := delta[id]; mentioned && d == nil {
			continue // removed
		}
		out[id] = report.clone()
	}

	for id, report := range delta {
		if report == nil {
			continue
		}
		base, exists := out[id]
		if !exists || report.has("type") {
			out[id] = report.clone()
			continue
		}
		for field, value := range report {
			base[field] = value
		}
	}

	return out
}
