package stats

import "math"

// TrackAggregate is the read-only per-track summary computed once at
// extraction end. Percentages are nil when the corresponding total is
// zero: "not applicable", never a division error.
type TrackAggregate struct {
	SSRC            uint64   `json:"ssrc"`
	MediaType       string   `json:"mediaType"`
	Direction       string   `json:"direction"`
	PacketsSent     int64    `json:"packetsSent,omitempty"`
	PacketsReceived int64    `json:"packetsReceived,omitempty"`
	PacketsLost     int64    `json:"packetsLost"`
	PacketsLostPct  *float64 `json:"packetsLostPct,omitempty"`
	ConcealedPct    *float64 `json:"concealedPct,omitempty"`
}

// PeerConnAggregate is the read-only per-connection summary.
type PeerConnAggregate struct {
	IsP2P                         bool             `json:"isP2P"`
	UsingRelay                    bool             `json:"usingRelay"`
	CandidatePair                 *CandidatePair   `json:"candidatePairData,omitempty"`
	MeanRTT                       *float64         `json:"meanRtt,omitempty"`
	TotalPacketsSent              int64            `json:"totalPacketsSent"`
	TotalPacketsReceived          int64            `json:"totalPacketsReceived"`
	SendPacketsLost               int64            `json:"sendPacketsLost"`
	RecvPacketsLost               int64            `json:"recvPacketsLost"`
	SendPacketsLostPct            *float64         `json:"sendPacketsLostPct,omitempty"`
	RecvPacketsLostPct            *float64         `json:"recvPacketsLostPct,omitempty"`
	MeanUpperBoundFrameHeight     *float64         `json:"meanUpperBoundFrameHeight,omitempty"`
	MeanLowerBoundFrameHeight     *float64         `json:"meanLowerBoundFrameHeight,omitempty"`
	MeanUpperBoundFramesPerSecond *float64         `json:"meanUpperBoundFramesPerSecond,omitempty"`
	MeanLowerBoundFramesPerSecond *float64         `json:"meanLowerBoundFramesPerSecond,omitempty"`
	ConnectionSucceeded           bool             `json:"connectionSucceeded"`
	ConnectionFailed              bool             `json:"connectionFailed"`
	IceDisconnects                int              `json:"iceDisconnects"`
	IceFailures                   int              `json:"iceFailures"`
	DtlsErrors                    int              `json:"dtlsErrors"`
	DtlsFailures                  int              `json:"dtlsFailures"`
	SdpFailures                   int              `json:"sdpFailures"`
	Tracks                        []TrackAggregate `json:"tracks,omitempty"`
}

// Aggregates maps peer connection id to its summary.
type Aggregates map[string]PeerConnAggregate

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PercentOf returns part/whole as a percentage rounded to two
// decimals, or nil when the whole is zero.
func PercentOf(part, whole int64) *float64 {
	if whole == 0 {
		return nil
	}
	pct := round2(float64(part) / float64(whole) * 100)
	return &pct
}

func mean2(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	m := round2(sum / float64(len(series)))
	return &m
}

func last(series []int64) int64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// Aggregate reduces the collector's raw series into per-connection and
// per-track summaries. Runs once, after replay completes; the
// accumulators are not mutated afterwards.
func Aggregate(processed map[string]*PeerConnStats) Aggregates {
	out := make(Aggregates, len(processed))

	for id, pc := range processed {
		agg := PeerConnAggregate{
			IsP2P:               pc.P2P,
			MeanRTT:             mean2(pc.RTTs),
			ConnectionSucceeded: pc.ConnectionSucceeded,
			ConnectionFailed:    pc.ConnectionFailed,
			IceDisconnects:      pc.IceDisconnects,
			IceFailures:         pc.IceFailures,
			DtlsErrors:          pc.DtlsErrors,
			DtlsFailures:        pc.DtlsFailures,
			SdpFailures:         pc.SdpFailures,
			MeanUpperBoundFrameHeight:     mean2(pc.UpperBoundHeights),
			MeanLowerBoundFrameHeight:     mean2(pc.LowerBoundHeights),
			MeanUpperBoundFramesPerSecond: mean2(pc.UpperBoundRates),
			MeanLowerBoundFramesPerSecond: mean2(pc.LowerBoundRates),
		}

		if pc.HasCandidatePair {
			pair := pc.CandidatePair
			agg.CandidatePair = &pair
			agg.UsingRelay = pair.UsingRelay
		}

		for _, track := range pc.Tracks {
			t := TrackAggregate{
				SSRC:            track.SSRC,
				MediaType:       track.MediaType,
				Direction:       track.Direction,
				PacketsSent:     last(track.PacketsSent),
				PacketsReceived: last(track.PacketsReceived),
				PacketsLost:     last(track.PacketsLost),
			}
			switch track.Direction {
			case DirectionSend:
				t.PacketsLostPct = PercentOf(t.PacketsLost, t.PacketsSent)
				agg.TotalPacketsSent += t.PacketsSent
				agg.SendPacketsLost += t.PacketsLost
			case DirectionRecv:
				t.PacketsLostPct = PercentOf(t.PacketsLost, t.PacketsReceived)
				agg.TotalPacketsReceived += t.PacketsReceived
				agg.RecvPacketsLost += t.PacketsLost
			}
			t.ConcealedPct = PercentOf(last(track.ConcealedSamples), last(track.TotalSamples))
			agg.Tracks = append(agg.Tracks, t)
		}

		agg.SendPacketsLostPct = PercentOf(agg.SendPacketsLost, agg.TotalPacketsSent)
		agg.RecvPacketsLostPct = PercentOf(agg.RecvPacketsLost, agg.TotalPacketsReceived)

		out[id] = agg
	}

	return out
}
