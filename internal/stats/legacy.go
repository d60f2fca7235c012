package stats

import "strings"

// LegacyExtractor handles pre-standard Chromium goog-stats: per-track
// "ssrc" reports with _send/_recv id suffixes, string-encoded numbers
// and booleans, RTT in milliseconds on the selected candidate pair.
type LegacyExtractor struct{}

func isLegacySendReport(r Report) bool {
	return r.Type() == "ssrc" && strings.HasSuffix(r.Str("id"), "_send")
}

func (LegacyExtractor) RTT(snap Snapshot, report Report) (float64, bool) {
	if isSelectedPairReport(report) {
		rtt, ok := report.Num("roundTripTime")
		if !ok {
			return 0, false
		}
		return rtt / 1000, true
	}
	if report.Type() == "googCandidatePair" && report.Bool("googActiveConnection") {
		rtt, ok := report.Num("googRtt")
		if !ok {
			return 0, false
		}
		return rtt / 1000, true
	}
	return 0, false
}

func (LegacyExtractor) CandidatePair(snap Snapshot, report Report) (CandidatePair, bool) {
	if !isSelectedPairReport(report) {
		return CandidatePair{}, false
	}
	return extractCandidatePair(snap, report), true
}

func (LegacyExtractor) OutboundPackets(snap Snapshot, report Report) (OutboundPackets, bool) {
	if !isLegacySendReport(report) {
		return OutboundPackets{}, false
	}
	ssrc, ok := reportSSRC(report)
	if !ok {
		return OutboundPackets{}, false
	}
	sent, _ := report.Num("packetsSent")
	lost, _ := report.Num("packetsLost")
	return OutboundPackets{
		SSRC:      ssrc,
		MediaType: report.MediaType(),
		Sent:      int64(sent),
		Lost:      int64(lost),
	}, true
}

func (LegacyExtractor) InboundPackets(snap Snapshot, report Report) (InboundPackets, bool) {
	return inboundPacketsByFieldPresence(report)
}

func (LegacyExtractor) ConcealedSamples(snap Snapshot, report Report) (ConcealedSamples, bool) {
	// Legacy ssrc reports never carry sample counters; the presence
	// check below yields not-applicable for them.
	return concealedSamplesByFieldPresence(report)
}

func (LegacyExtractor) InboundVideo(snap Snapshot, report Report) (VideoSummary, bool) {
	if report.Type() != "ssrc" || !report.has("googFrameHeightReceived") {
		return VideoSummary{}, false
	}
	height, _ := report.Num("googFrameHeightReceived")
	fps, _ := report.Num("googFrameRateOutput")
	return VideoSummary{
		FrameHeight:     height,
		FramesPerSecond: fps,
		HasFrameHeight:  true,
	}, true
}
