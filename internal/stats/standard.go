package stats

// StandardExtractor handles standard-compliant stats as produced by recent
// Chromium and Safari: transport reports point at the selected
// candidate pair, send loss lives in the remote-inbound-rtp report
// referenced by outbound-rtp.
type StandardExtractor struct{}

func isTransportReport(r Report) bool {
	return r.Type() == "transport" && r.Str("selectedCandidatePairId") != ""
}

func (StandardExtractor) RTT(snap Snapshot, report Report) (float64, bool) {
	if !isTransportReport(report) {
		return 0, false
	}
	pair, ok := snap[report.Str("selectedCandidatePairId")]
	if !ok {
		return 0, false
	}
	return pair.Num("currentRoundTripTime")
}

func (StandardExtractor) CandidatePair(snap Snapshot, report Report) (CandidatePair, bool) {
	if !isTransportReport(report) {
		return CandidatePair{}, false
	}
	pair, ok := snap[report.Str("selectedCandidatePairId")]
	if !ok {
		return CandidatePair{}, false
	}
	return extractCandidatePair(snap, pair), true
}

func (StandardExtractor) OutboundPackets(snap Snapshot, report Report) (OutboundPackets, bool) {
	ssrc, hasSSRC := reportSSRC(report)

	if report.Type() == "outbound-rtp" {
		remote, ok := snap[report.Str("remoteId")]
		if ok && hasSSRC {
			sent, _ := report.Num("packetsSent")
			lost, _ := remote.Num("packetsLost")
			return OutboundPackets{
				SSRC:      ssrc,
				MediaType: report.MediaType(),
				Sent:      int64(sent),
				Lost:      int64(lost),
			}, true
		}
	}

	// Some shapes carry loss next to the sent count in one report.
	sent, hasSent := report.Num("packetsSent")
	if hasSent && !report.has("packetsReceived") && hasSSRC {
		lost, _ := report.Num("packetsLost")
		return OutboundPackets{
			SSRC:      ssrc,
			MediaType: report.MediaType(),
			Sent:      int64(sent),
			Lost:      int64(lost),
		}, true
	}

	return OutboundPackets{}, false
}

func (StandardExtractor) InboundPackets(snap Snapshot, report Report) (InboundPackets, bool) {
	return inboundPacketsByFieldPresence(report)
}

// inboundPacketsByFieldPresence matches any dialect's receive report:
// a report with packetsReceived, no packetsSent, and an ssrc.
func inboundPacketsByFieldPresence(report Report) (InboundPackets, bool) {
	received, hasReceived := report.Num("packetsReceived")
	ssrc, hasSSRC := reportSSRC(report)
	if !hasReceived || report.has("packetsSent") || !hasSSRC {
		return InboundPackets{}, false
	}
	lost, _ := report.Num("packetsLost")
	return InboundPackets{
		SSRC:      ssrc,
		MediaType: report.MediaType(),
		Received:  int64(received),
		Lost:      int64(lost),
	}, true
}

func (StandardExtractor) ConcealedSamples(snap Snapshot, report Report) (ConcealedSamples, bool) {
	return concealedSamplesByFieldPresence(report)
}

func concealedSamplesByFieldPresence(report Report) (ConcealedSamples, bool) {
	total, hasTotal := report.Num("totalSamplesReceived")
	concealed, hasConcealed := report.Num("concealedSamples")
	ssrc, hasSSRC := reportSSRC(report)
	if !hasTotal || !hasConcealed || !hasSSRC {
		return ConcealedSamples{}, false
	}
	return ConcealedSamples{
		SSRC:      ssrc,
		Total:     int64(total),
		Concealed: int64(concealed),
	}, true
}

func (StandardExtractor) InboundVideo(snap Snapshot, report Report) (VideoSummary, bool) {
	if report.Type() != "inbound-rtp" || report.MediaType() != "video" {
		return VideoSummary{}, false
	}
	height, _ := report.Num("frameHeight")
	fps, _ := report.Num("framesPerSecond")
	return VideoSummary{
		FrameHeight:     height,
		FramesPerSecond: fps,
		HasFrameHeight:  true,
	}, true
}
