package stats

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/domain"
)

// Direction of a track relative to the session's participant.
const (
	DirectionSend = "send"
	DirectionRecv = "recv"
)

// TrackStats is the raw per-SSRC series accumulated during replay.
// Packet counters are cumulative wire values; aggregation takes the
// last sample of each series.
type TrackStats struct {
	SSRC             uint64  `json:"ssrc"`
	MediaType        string  `json:"mediaType"`
	Direction        string  `json:"direction"`
	PacketsSent      []int64 `json:"-"`
	PacketsReceived  []int64 `json:"-"`
	PacketsLost      []int64 `json:"-"`
	TotalSamples     []int64 `json:"-"`
	ConcealedSamples []int64 `json:"-"`
}

// PeerConnStats is the accumulator for one peer connection: created on
// the first snapshot referencing its id, mutated by every later entry
// of the same session, finalized by aggregation.
type PeerConnStats struct {
	ID   string
	P2P  bool
	RTTs []float64

	CandidatePair    CandidatePair
	HasCandidatePair bool

	Tracks map[trackKey]*TrackStats

	// Per-snapshot simulcast bounds: highest and lowest inbound video
	// frame height / frame rate seen in each snapshot.
	UpperBoundHeights []float64
	LowerBoundHeights []float64
	UpperBoundRates   []float64
	LowerBoundRates   []float64

	ConnectionSucceeded bool
	ConnectionFailed    bool
	IceDisconnects      int
	IceFailures         int
	DtlsErrors          int
	DtlsFailures        int
	SdpFailures         int
}

type trackKey struct {
	direction string
	ssrc      uint64
}

// Collector classifies and stores normalized facts for every report of
// every snapshot it is fed, per peer connection. Instances are local to
// one extraction task and are not safe for concurrent use.
type Collector struct {
	format    domain.StatsFormat
	extractor Extractor
	pcs       map[string]*PeerConnStats
}

func NewCollector(format domain.StatsFormat) *Collector {
	extractor, ok := ExtractorFor(format)
	if !ok {
		log.Warn().Str("module", "stats.collector").Str("format", string(format)).Msg("no extractor for stats format")
	}
	return &Collector{
		format:    format,
		extractor: extractor,
		pcs:       make(map[string]*PeerConnStats),
	}
}

func (c *Collector) pc(id string) *PeerConnStats {
	pc, ok := c.pcs[id]
	if !ok {
		pc = &PeerConnStats{
			ID:     id,
			Tracks: make(map[trackKey]*TrackStats),
		}
		c.pcs[id] = pc
	}
	return pc
}

func (c *Collector) track(pc *PeerConnStats, direction, mediaType string, ssrc uint64) *TrackStats {
	key := trackKey{direction: direction, ssrc: ssrc}
	t, ok := pc.Tracks[key]
	if !ok {
		t = &TrackStats{
			SSRC:      ssrc,
			MediaType: mediaType,
			Direction: direction,
		}
		pc.Tracks[key] = t
	}
	return t
}

// ProcessStatsEntry feeds one decompressed snapshot into the peer
// connection's accumulator, iterating every report through the active
// dialect's normalizers. Reports that match no query are skipped, not
// recorded as zeros.
func (c *Collector) ProcessStatsEntry(pcID string, snap Snapshot) {
	if c.extractor == nil {
		return
	}
	pc := c.pc(pcID)

	var (
		upperHeight, lowerHeight float64
		upperRate, lowerRate     float64
		sawHeight, sawRate       bool
	)

	for _, report := range snap {
		if rtt, ok := c.extractor.RTT(snap, report); ok {
			pc.RTTs = append(pc.RTTs, rtt)
		}

		// The selected pair can change mid-session; keep the latest.
		if pair, ok := c.extractor.CandidatePair(snap, report); ok {
			pc.CandidatePair = pair
			pc.HasCandidatePair = true
		}

		if out, ok := c.extractor.OutboundPackets(snap, report); ok {
			t := c.track(pc, DirectionSend, out.MediaType, out.SSRC)
			t.PacketsSent = append(t.PacketsSent, out.Sent)
			t.PacketsLost = append(t.PacketsLost, out.Lost)
		}

		if in, ok := c.extractor.InboundPackets(snap, report); ok {
			t := c.track(pc, DirectionRecv, in.MediaType, in.SSRC)
			t.PacketsReceived = append(t.PacketsReceived, in.Received)
			t.PacketsLost = append(t.PacketsLost, in.Lost)
		}

		if cs, ok := c.extractor.ConcealedSamples(snap, report); ok {
			t := c.track(pc, DirectionRecv, "audio", cs.SSRC)
			t.TotalSamples = append(t.TotalSamples, cs.Total)
			t.ConcealedSamples = append(t.ConcealedSamples, cs.Concealed)
		}

		if video, ok := c.extractor.InboundVideo(snap, report); ok {
			if video.HasFrameHeight {
				if !sawHeight || video.FrameHeight > upperHeight {
					upperHeight = video.FrameHeight
				}
				if !sawHeight || video.FrameHeight < lowerHeight {
					lowerHeight = video.FrameHeight
				}
				sawHeight = true
			}
			if !sawRate || video.FramesPerSecond > upperRate {
				upperRate = video.FramesPerSecond
			}
			if !sawRate || video.FramesPerSecond < lowerRate {
				lowerRate = video.FramesPerSecond
			}
			sawRate = true
		}
	}

	if sawHeight {
		pc.UpperBoundHeights = append(pc.UpperBoundHeights, upperHeight)
		pc.LowerBoundHeights = append(pc.LowerBoundHeights, lowerHeight)
	}
	if sawRate {
		pc.UpperBoundRates = append(pc.UpperBoundRates, upperRate)
		pc.LowerBoundRates = append(pc.LowerBoundRates, lowerRate)
	}
}

// ProcessCreate records connection setup facts. The p2p flag is a
// session-level classification, not derived from stats.
func (c *Collector) ProcessCreate(pcID string, p2p bool) {
	c.pc(pcID).P2P = p2p
}

func (c *Collector) ProcessConnectionState(pcID, state string) {
	pc := c.pc(pcID)
	switch state {
	case "connected", "completed":
		pc.ConnectionSucceeded = true
	case "failed":
		pc.ConnectionFailed = true
	}
}

func (c *Collector) ProcessIceConnectionState(pcID, state string) {
	pc := c.pc(pcID)
	switch state {
	case "connected", "completed":
		pc.ConnectionSucceeded = true
	case "disconnected":
		pc.IceDisconnects++
	case "failed":
		pc.IceFailures++
	}
}

func (c *Collector) ProcessDtlsError(pcID string) {
	c.pc(pcID).DtlsErrors++
}

func (c *Collector) ProcessDtlsState(pcID, state string) {
	if state == "failed" {
		c.pc(pcID).DtlsFailures++
	}
}

func (c *Collector) ProcessSdpFailure(pcID string) {
	c.pc(pcID).SdpFailures++
}

// Processed exposes the raw accumulators for aggregation.
func (c *Collector) Processed() map[string]*PeerConnStats {
	return c.pcs
}
