package stats

// Extractor answers a fixed set of semantic questions against one
// report within a full snapshot. Every method returns ok=false when the
// report does not match the shape it expects, which is distinct from a
// measured zero: callers skip non-matching reports instead of recording
// defaults.
type Extractor interface {
	RTT(snap Snapshot, report Report) (float64, bool)
	CandidatePair(snap Snapshot, report Report) (CandidatePair, bool)
	OutboundPackets(snap Snapshot, report Report) (OutboundPackets, bool)
	InboundPackets(snap Snapshot, report Report) (InboundPackets, bool)
	ConcealedSamples(snap Snapshot, report Report) (ConcealedSamples, bool)
	InboundVideo(snap Snapshot, report Report) (VideoSummary, bool)
}

// CandidatePair describes the selected ICE candidate pair of a peer
// connection. UsingRelay is true iff either endpoint is a relay
// candidate.
type CandidatePair struct {
	ID                  string `json:"id"`
	UsingRelay          bool   `json:"isUsingRelay"`
	LocalCandidateType  string `json:"localCandidateType"`
	LocalAddress        string `json:"localAddress"`
	LocalPort           int    `json:"localPort"`
	LocalProtocol       string `json:"localProtocol"`
	RemoteCandidateType string `json:"remoteCandidateType"`
	RemoteAddress       string `json:"remoteAddress"`
	RemotePort          int    `json:"remotePort"`
	RemoteProtocol      string `json:"remoteProtocol"`
}

// OutboundPackets is a point-in-time cumulative packet summary for one
// outgoing track.
type OutboundPackets struct {
	SSRC      uint64
	MediaType string
	Sent      int64
	Lost      int64
}

// InboundPackets is the receive-side counterpart of OutboundPackets.
type InboundPackets struct {
	SSRC      uint64
	MediaType string
	Received  int64
	Lost      int64
}

// ConcealedSamples summarizes audio concealment for one inbound track.
type ConcealedSamples struct {
	SSRC      uint64
	Total     int64
	Concealed int64
}

// VideoSummary is a point-in-time inbound video quality sample.
// Firefox never reports frame height, so HasFrameHeight distinguishes
// the missing capability from a measured zero.
type VideoSummary struct {
	FrameHeight     float64
	FramesPerSecond float64
	HasFrameHeight  bool
}

// extractCandidatePair resolves both endpoints of a candidate-pair
// report. Shared by all dialects once the pair report is located.
func extractCandidatePair(snap Snapshot, pair Report) CandidatePair {
	local := snap[pair.Str("localCandidateId")]
	remote := snap[pair.Str("remoteCandidateId")]

	localPort, _ := local.Num("port")
	remotePort, _ := remote.Num("port")

	cp := CandidatePair{
		ID:                  pair.Str("id"),
		LocalCandidateType:  local.Str("candidateType"),
		LocalAddress:        local.Str("address"),
		LocalPort:           int(localPort),
		LocalProtocol:       local.Str("protocol"),
		RemoteCandidateType: remote.Str("candidateType"),
		RemoteAddress:       remote.Str("address"),
		RemotePort:          int(remotePort),
		RemoteProtocol:      remote.Str("protocol"),
	}
	cp.UsingRelay = cp.LocalCandidateType == "relay" || cp.RemoteCandidateType == "relay"

	return cp
}

func reportSSRC(r Report) (uint64, bool) {
	v, ok := r.Num("ssrc")
	if !ok {
		return 0, false
	}
	return uint64(v), true
}
