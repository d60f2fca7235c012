package stats

// FirefoxExtractor handles the Firefox dialect. Firefox has no
// dedicated transport report: the selected candidate pair is flagged on
// the candidate-pair report itself, and RTT is approximated from
// remote-inbound-rtp since no report carries it directly. Assumes RTT
// is roughly the same across the remote-inbound-rtp entries (usually
// one for audio and one for video).
type FirefoxExtractor struct{}

func isSelectedPairReport(r Report) bool {
	return r.Type() == "candidate-pair" && r.Bool("selected")
}

func (FirefoxExtractor) RTT(snap Snapshot, report Report) (float64, bool) {
	if report.Type() != "remote-inbound-rtp" {
		return 0, false
	}
	return report.Num("roundTripTime")
}

func (FirefoxExtractor) CandidatePair(snap Snapshot, report Report) (CandidatePair, bool) {
	if !isSelectedPairReport(report) {
		return CandidatePair{}, false
	}
	return extractCandidatePair(snap, report), true
}

// OutboundPackets reads both counters from remote-inbound-rtp, where
// Firefox keeps packetsSent alongside packetsLost.
func (FirefoxExtractor) OutboundPackets(snap Snapshot, report Report) (OutboundPackets, bool) {
	if report.Type() != "remote-inbound-rtp" {
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

func (FirefoxExtractor) InboundPackets(snap Snapshot, report Report) (InboundPackets, bool) {
	return inboundPacketsByFieldPresence(report)
}

// ConcealedSamples is not available in the Firefox dialect; always not
// applicable, never zero.
func (FirefoxExtractor) ConcealedSamples(snap Snapshot, report Report) (ConcealedSamples, bool) {
	return ConcealedSamples{}, false
}

// InboundVideo returns frame rate only: Firefox does not report the
// received frame height.
func (FirefoxExtractor) InboundVideo(snap Snapshot, report Report) (VideoSummary, bool) {
	if report.Type() != "inbound-rtp" || report.MediaType() != "video" {
		return VideoSummary{}, false
	}
	fps, _ := report.Num("framerateMean")
	return VideoSummary{
		FramesPerSecond: fps,
		HasFrameHeight:  false,
	}, true
}
