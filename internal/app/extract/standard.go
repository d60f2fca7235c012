package extract

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/domain"
	"github.com/dkeye/rtcpulse/internal/stats"
)

type speakerTally struct {
	speakerTime int64
	changes     int64
}

type speakerState struct {
	current string
	startTS int64
	tallies map[string]*speakerTally
}

// StandardExtractor runs the full pipeline for browser telemetry
// clients: delta decoding, quality stats collection and aggregation,
// dominant-speaker and sentiment accounting.
type StandardExtractor struct {
	info       DumpInfo
	connInfo   domain.ConnectionInfo
	collector  *stats.Collector
	baseStats  map[string]stats.Snapshot
	identity   map[string]any
	endpointID string
	speaker    speakerState
	features   Features
	browser    *stats.BrowserDetails
}

func NewStandardExtractor(info DumpInfo, connInfo domain.ConnectionInfo) *StandardExtractor {
	e := &StandardExtractor{
		info:      info,
		connInfo:  connInfo,
		baseStats: make(map[string]stats.Snapshot),
		identity:  make(map[string]any),
		speaker:   speakerState{tallies: make(map[string]*speakerTally)},
	}
	if connInfo.StatsFormat != "" && connInfo.StatsFormat != domain.FormatUnsupported {
		e.collector = stats.NewCollector(connInfo.StatsFormat)
	}
	return e
}

// HandleEntry dispatches one record line. The switch is exhaustive
// over the closed entry kind set.
func (e *StandardExtractor) HandleEntry(entry *domain.Entry, size int) error {
	switch entry.Kind {
	case domain.EntryIdentity:
		e.handleIdentity(entry)
	case domain.EntryConnectionInfo:
		if err := e.handleConnectionInfo(entry); err != nil {
			return err
		}
	case domain.EntryConferenceStart:
		e.handleConferenceStart(entry)
	case domain.EntryDominantSpeaker:
		if err := e.handleDominantSpeaker(entry, size); err != nil {
			return err
		}
	case domain.EntryFaceLandmarks:
		e.handleFaceLandmarks(entry, size)
	case domain.EntryGetStats:
		if err := e.handleStats(entry, size); err != nil {
			return err
		}
	case domain.EntryConnectionStateChange:
		e.withCollector(func(c *stats.Collector) {
			c.ProcessConnectionState(entry.PC, payloadString(entry.Payload))
		})
	case domain.EntryIceConnectionStateChange:
		e.withCollector(func(c *stats.Collector) {
			c.ProcessIceConnectionState(entry.PC, payloadString(entry.Payload))
		})
	case domain.EntryDtlsError:
		e.withCollector(func(c *stats.Collector) { c.ProcessDtlsError(entry.PC) })
	case domain.EntryDtlsStateChange:
		e.withCollector(func(c *stats.Collector) {
			c.ProcessDtlsState(entry.PC, payloadString(entry.Payload))
		})
	case domain.EntryCreate:
		e.handleCreate(entry)
	case domain.EntrySDPRequest:
		e.features.Metrics.SDPRequestBytes += int64(size)
		e.features.Metrics.SDPRequestCount++
	case domain.EntrySDPFailure:
		e.features.Metrics.SDPRequestBytes += int64(size)
		e.features.Metrics.SDPRequestCount++
		e.withCollector(func(c *stats.Collector) { c.ProcessSdpFailure(entry.PC) })
	case domain.EntryE2ERtt:
		e.handleE2ERtt(entry)
	case domain.EntryConstraints, domain.EntryOther:
		e.features.Metrics.OtherRequestBytes += int64(size)
		e.features.Metrics.OtherRequestCount++
	}

	e.recordSessionTime(entry)
	return nil
}

func (e *StandardExtractor) withCollector(fn func(*stats.Collector)) {
	if e.collector != nil {
		fn(e.collector)
	}
}

func (e *StandardExtractor) handleIdentity(entry *domain.Entry) {
	var fields map[string]any
	if err := json.Unmarshal(entry.Payload, &fields); err != nil {
		log.Warn().Str("module", "extract").Str("clientId", e.info.ClientID).Err(err).Msg("unparseable identity entry")
		return
	}
	for k, v := range fields {
		e.identity[k] = v
	}
	if e.endpointID == "" {
		if id, ok := fields["endpointId"].(string); ok {
			e.endpointID = id
		}
	}
}

func (e *StandardExtractor) handleConnectionInfo(entry *domain.Entry) error {
	var ci domain.ConnectionInfo
	if err := json.Unmarshal(entry.Payload, &ci); err != nil {
		return fmt.Errorf("connection info entry: %w", err)
	}

	if e.collector == nil {
		format := stats.DetectFormat(ci.UserAgent, ci.ClientProtocol)
		e.connInfo.StatsFormat = format
		if format != domain.FormatUnsupported {
			e.collector = stats.NewCollector(format)
		}
	}
	if details, ok := stats.ParseBrowserDetails(ci.UserAgent); ok {
		e.browser = &details
	}
	return nil
}

func (e *StandardExtractor) handleConferenceStart(entry *domain.Entry) {
	var ts float64
	if err := json.Unmarshal(entry.Payload, &ts); err != nil {
		var s string
		if err := json.Unmarshal(entry.Payload, &s); err != nil {
			return
		}
		fmt.Sscanf(s, "%f", &ts)
	}
	// The client resends the conference start with 0 at session end;
	// zero is a "not applicable" sentinel, not a timestamp.
	if ts == 0 {
		return
	}
	e.features.ConferenceStartTime = int64(ts)
}

func (e *StandardExtractor) handleDominantSpeaker(entry *domain.Entry, size int) error {
	if entry.Timestamp == 0 {
		return fmt.Errorf("dominant speaker entry without timestamp")
	}

	e.features.Metrics.DSRequestBytes += int64(size)
	e.features.Metrics.DSRequestCount++

	var payload struct {
		DominantSpeakerEndpoint string `json:"dominantSpeakerEndpoint"`
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("dominant speaker entry: %w", err)
	}

	// Credit the outgoing speaker before transitioning.
	if e.speaker.current != "" {
		e.tally(e.speaker.current).speakerTime += entry.Timestamp - e.speaker.startTS
	}
	if payload.DominantSpeakerEndpoint != "" {
		e.tally(payload.DominantSpeakerEndpoint).changes++
	}
	e.speaker.current = payload.DominantSpeakerEndpoint
	e.speaker.startTS = entry.Timestamp
	return nil
}

func (e *StandardExtractor) tally(speaker string) *speakerTally {
	t, ok := e.speaker.tallies[speaker]
	if !ok {
		t = &speakerTally{}
		e.speaker.tallies[speaker] = t
	}
	return t
}

func (e *StandardExtractor) handleFaceLandmarks(entry *domain.Entry, size int) {
	e.features.Metrics.SentimentRequestBytes += int64(size)
	e.features.Metrics.SentimentRequestCount++

	var payload struct {
		Duration      float64 `json:"duration"`
		FaceLandmarks string  `json:"faceLandmarks"`
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		log.Warn().Str("module", "extract").Str("clientId", e.info.ClientID).Err(err).Msg("unparseable face landmarks entry")
		return
	}
	e.features.Sentiment.Add(payload.FaceLandmarks, payload.Duration)
}

func (e *StandardExtractor) handleStats(entry *domain.Entry, size int) error {
	e.features.Metrics.StatsRequestBytes += int64(size)
	e.features.Metrics.StatsRequestCount++

	if e.collector == nil {
		return nil
	}

	var delta stats.Snapshot
	if err := json.Unmarshal(entry.Payload, &delta); err != nil {
		return fmt.Errorf("stats entry for %s: %w", entry.PC, err)
	}

	// The client delta-compresses against the prior snapshot of the
	// same peer connection.
	full := stats.Decompress(e.baseStats[entry.PC], delta)
	e.baseStats[entry.PC] = full
	e.collector.ProcessStatsEntry(entry.PC, full)
	return nil
}

func (e *StandardExtractor) handleCreate(entry *domain.Entry) {
	var payload struct {
		P2P bool `json:"p2p"`
	}
	_ = json.Unmarshal(entry.Payload, &payload)
	e.withCollector(func(c *stats.Collector) { c.ProcessCreate(entry.PC, payload.P2P) })
}

func (e *StandardExtractor) handleE2ERtt(entry *domain.Entry) {
	var payload struct {
		RemoteEndpointID string  `json:"remoteEndpointId"`
		RemoteRegion     string  `json:"remoteRegion"`
		RTT              float64 `json:"rtt"`
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil || payload.RemoteEndpointID == "" {
		return
	}
	if e.features.E2EPings == nil {
		e.features.E2EPings = make(map[string]E2EPing)
	}
	e.features.E2EPings[payload.RemoteEndpointID] = E2EPing{
		RemoteRegion: payload.RemoteRegion,
		RTT:          payload.RTT,
	}
}

// recordSessionTime tracks the first and last activity timestamps,
// excluding pure-metadata entries.
func (e *StandardExtractor) recordSessionTime(entry *domain.Entry) {
	if entry.Kind.MetadataOnly() || entry.Timestamp == 0 {
		return
	}
	if e.features.SessionStartTime == 0 {
		e.features.SessionStartTime = entry.Timestamp
	}
	if entry.Timestamp > e.features.SessionEndTime {
		e.features.SessionEndTime = entry.Timestamp
	}
}

// finalizeDominantSpeaker credits the final speaker up to session end
// and surfaces this participant's own tallies. Other speakers' numbers
// are intermediate state only.
func (e *StandardExtractor) finalizeDominantSpeaker() {
	if e.speaker.current != "" {
		e.tally(e.speaker.current).speakerTime += e.features.SessionEndTime - e.speaker.startTS
	}
	if own, ok := e.speaker.tallies[e.endpointID]; ok {
		e.features.DominantSpeakerChanges = own.changes
		e.features.SpeakerTime = own.speakerTime
	}
}

func (e *StandardExtractor) metadata() Metadata {
	str := func(key string) string {
		v, _ := e.identity[key].(string)
		return v
	}
	app := str("applicationName")
	if app == "" {
		app = "Undefined"
	}
	return Metadata{
		App:           app,
		ClientID:      e.info.ClientID,
		ClientType:    e.connInfo.ClientType,
		ConferenceID:  str("confName"),
		ConferenceURL: str("confID"),
		DumpPath:      e.info.DumpPath,
		EndpointID:    e.endpointID,
		SessionID:     str("meetingUniqueId"),
		UserID:        str("displayName"),
		StatsFormat:   e.connInfo.StatsFormat,
		Browser:       e.browser,
	}
}

// Extract finalizes the replay: dominant speaker accounting, duration
// metrics and the per-connection aggregates, computed exactly once.
func (e *StandardExtractor) Extract() (*Output, error) {
	e.finalizeDominantSpeaker()

	m := &e.features.Metrics
	if e.features.ConferenceStartTime != 0 && e.features.SessionEndTime > e.features.ConferenceStartTime {
		// The client never observes conference end; measure up to the
		// moment this participant left.
		m.ConferenceDurationMs = e.features.SessionEndTime - e.features.ConferenceStartTime
	}
	if e.features.SessionEndTime > e.features.SessionStartTime {
		m.SessionDurationMs = e.features.SessionEndTime - e.features.SessionStartTime
	}
	m.TotalProcessedBytes = m.StatsRequestBytes + m.SDPRequestBytes + m.DSRequestBytes + m.OtherRequestBytes
	m.TotalProcessedCount = m.StatsRequestCount + m.SDPRequestCount + m.DSRequestCount + m.OtherRequestCount

	if e.collector != nil {
		e.features.Aggregates = stats.Aggregate(e.collector.Processed())
	}

	return &Output{
		Metadata: e.metadata(),
		Features: e.features,
	}, nil
}

func payloadString(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return ""
	}
	return s
}
