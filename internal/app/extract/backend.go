package extract

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/domain"
)

// BackendExtractor handles dumps from infrastructure clients (bridges,
// signaling components, recorders). Those emit no browser stats, so
// only identity and session timing survive.
type BackendExtractor struct {
	info     DumpInfo
	connInfo domain.ConnectionInfo
	identity map[string]any
	features Features
}

func NewBackendExtractor(info DumpInfo, connInfo domain.ConnectionInfo) *BackendExtractor {
	return &BackendExtractor{
		info:     info,
		connInfo: connInfo,
		identity: make(map[string]any),
	}
}

func (e *BackendExtractor) HandleEntry(entry *domain.Entry, size int) error {
	if entry.Kind == domain.EntryIdentity {
		var fields map[string]any
		if err := json.Unmarshal(entry.Payload, &fields); err != nil {
			log.Warn().Str("module", "extract").Str("clientId", e.info.ClientID).Err(err).Msg("unparseable identity entry")
			return nil
		}
		for k, v := range fields {
			e.identity[k] = v
		}
		return nil
	}

	if entry.Kind.MetadataOnly() || entry.Timestamp == 0 {
		return nil
	}
	if e.features.SessionStartTime == 0 {
		e.features.SessionStartTime = entry.Timestamp
	}
	if entry.Timestamp > e.features.SessionEndTime {
		e.features.SessionEndTime = entry.Timestamp
	}
	return nil
}

func (e *BackendExtractor) Extract() (*Output, error) {
	if e.features.SessionEndTime > e.features.SessionStartTime {
		e.features.Metrics.SessionDurationMs = e.features.SessionEndTime - e.features.SessionStartTime
	}

	str := func(key string) string {
		v, _ := e.identity[key].(string)
		return v
	}
	app := str("applicationName")
	if app == "" {
		app = "Undefined"
	}
	return &Output{
		Metadata: Metadata{
			App:           app,
			ClientID:      e.info.ClientID,
			ClientType:    e.connInfo.ClientType,
			ConferenceID:  str("confName"),
			ConferenceURL: str("confID"),
			DumpPath:      e.info.DumpPath,
			EndpointID:    str("endpointId"),
			SessionID:     str("meetingUniqueId"),
			StatsFormat:   e.connInfo.StatsFormat,
		},
		Features: e.features,
	}, nil
}
