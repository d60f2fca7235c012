package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullSnapshot() Snapshot {
	return Snapshot{
		"T1": Report{
			"type":                    "transport",
			"selectedCandidatePairId": "CP1",
		},
		"CP1": Report{
			"type":                 "candidate-pair",
			"currentRoundTripTime": 0.19,
			"bytesSent":            float64(1000),
		},
		"RTP1": Report{
			"type":        "inbound-rtp",
			"kind":        "video",
			"ssrc":        float64(1234),
			"frameHeight": float64(720),
		},
	}
}

func TestDecompressFirstSnapshotIsFull(t *testing.T) {
	delta := fullSnapshot()

	got := Decompress(nil, delta)

	assert.Equal(t, delta, got)
	// The result must be a copy, not an alias of the delta.
	got["RTP1"]["frameHeight"] = float64(1080)
	assert.Equal(t, float64(720), delta["RTP1"]["frameHeight"])
}

func TestDecompressEmptyDeltaIsIdentity(t *testing.T) {
	prev := fullSnapshot()

	got := Decompress(prev, Snapshot{})

	assert.Equal(t, prev, got)
}

func TestDecompressPartialUpdateMergesFields(t *testing.T) {
	prev := fullSnapshot()

	// Partial report: no "type" field, only the changed counters.
	got := Decompress(prev, Snapshot{
		"CP1": Report{"bytesSent": float64(2000)},
	})

	require.Contains(t, got, "CP1")
	assert.Equal(t, float64(2000), got["CP1"]["bytesSent"])
	// Absent fields are retained from the prior report.
	assert.Equal(t, 0.19, got["CP1"]["currentRoundTripTime"])
	assert.Equal(t, "candidate-pair", got["CP1"].Type())
	// Untouched reports carry over unchanged.
	assert.Equal(t, prev["RTP1"], got["RTP1"])
	// Inputs are not mutated.
	assert.Equal(t, float64(1000), prev["CP1"]["bytesSent"])
}

func TestDecompressFullReportReplaces(t *testing.T) {
	prev := fullSnapshot()

	got := Decompress(prev, Snapshot{
		"RTP1": Report{
			"type": "inbound-rtp",
			"kind": "video",
			"ssrc": float64(1234),
		},
	})

	// A report carrying its type discriminator replaces the prior
	// entry wholesale, including dropping stale fields.
	assert.NotContains(t, got["RTP1"], "frameHeight")
}

func TestDecompressRemovalMarker(t *testing.T) {
	prev := fullSnapshot()

	got := Decompress(prev, Snapshot{"RTP1": nil})

	assert.NotContains(t, got, "RTP1")
	assert.Contains(t, got, "CP1")
	assert.Contains(t, prev, "RTP1")
}

func TestDecompressRoundTrip(t *testing.T) {
	base := fullSnapshot()

	// Target state: CP1 mutated, RTP1 removed, RTP2 added.
	target := Snapshot{
		"T1":  base["T1"].clone(),
		"CP1": base["CP1"].clone(),
		"RTP2": Report{
			"type": "inbound-rtp",
			"kind": "audio",
			"ssrc": float64(5678),
		},
	}
	target["CP1"]["bytesSent"] = float64(4242)

	delta := Snapshot{
		"CP1":  Report{"bytesSent": float64(4242)},
		"RTP1": nil,
		"RTP2": target["RTP2"].clone(),
	}

	assert.Equal(t, target, Decompress(base, delta))
}
