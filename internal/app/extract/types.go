// Package extract replays closed session records and computes the
// per-session feature summary handed to downstream persistence and
// analytics.
package extract

import (
	"github.com/dkeye/rtcpulse/internal/domain"
	"github.com/dkeye/rtcpulse/internal/stats"
)

// DumpInfo references the durable record an extraction task operates
// on.
type DumpInfo struct {
	ClientID string `json:"clientId"`
	DumpPath string `json:"dumpPath"`
}

// Metadata identifies and routes one extracted session. Callers apply
// their own redaction before logging.
type Metadata struct {
	App           string                `json:"app"`
	ClientID      string                `json:"clientId"`
	ClientType    domain.ClientType     `json:"clientType"`
	ConferenceID  string                `json:"conferenceId,omitempty"`
	ConferenceURL string                `json:"conferenceUrl,omitempty"`
	DumpPath      string                `json:"dumpPath"`
	EndpointID    string                `json:"endpointId,omitempty"`
	SessionID     string                `json:"sessionId,omitempty"`
	UserID        string                `json:"userId,omitempty"`
	StatsFormat   domain.StatsFormat    `json:"statsFormat"`
	Browser       *stats.BrowserDetails `json:"browserInfo,omitempty"`
}

// Sentiment sums face-landmark sample durations per label. The label
// set is closed; samples with unknown labels are dropped.
type Sentiment struct {
	Angry     float64 `json:"angry"`
	Disgusted float64 `json:"disgusted"`
	Fearful   float64 `json:"fearful"`
	Happy     float64 `json:"happy"`
	Neutral   float64 `json:"neutral"`
	Sad       float64 `json:"sad"`
	Surprised float64 `json:"surprised"`
}

// Add accumulates a sample duration under its label, reporting whether
// the label belongs to the closed set.
func (s *Sentiment) Add(label string, duration float64) bool {
	switch label {
	case "angry":
		s.Angry += duration
	case "disgusted":
		s.Disgusted += duration
	case "fearful":
		s.Fearful += duration
	case "happy":
		s.Happy += duration
	case "neutral":
		s.Neutral += duration
	case "sad":
		s.Sad += duration
	case "surprised":
		s.Surprised += duration
	default:
		return false
	}
	return true
}

// Metrics is the byte/line accounting kept during replay.
type Metrics struct {
	StatsRequestBytes     int64 `json:"statsRequestBytes"`
	StatsRequestCount     int64 `json:"statsRequestCount"`
	SDPRequestBytes       int64 `json:"sdpRequestBytes"`
	SDPRequestCount       int64 `json:"sdpRequestCount"`
	DSRequestBytes        int64 `json:"dsRequestBytes"`
	DSRequestCount        int64 `json:"dsRequestCount"`
	SentimentRequestBytes int64 `json:"sentimentRequestBytes"`
	SentimentRequestCount int64 `json:"sentimentRequestCount"`
	OtherRequestBytes     int64 `json:"otherRequestBytes"`
	OtherRequestCount     int64 `json:"otherRequestCount"`
	TotalProcessedBytes   int64 `json:"totalProcessedBytes"`
	TotalProcessedCount   int64 `json:"totalProcessedCount"`
	SessionDurationMs     int64 `json:"sessionDurationMs"`
	ConferenceDurationMs  int64 `json:"conferenceDurationMs"`
}

// E2EPing is an end-to-end RTT observation to another endpoint.
type E2EPing struct {
	RemoteRegion string  `json:"remoteRegion,omitempty"`
	RTT          float64 `json:"rtt"`
}

// Features is the full computed feature set for one session.
type Features struct {
	ConferenceStartTime    int64              `json:"conferenceStartTime"`
	SessionStartTime       int64              `json:"sessionStartTime"`
	SessionEndTime         int64              `json:"sessionEndTime"`
	DominantSpeakerChanges int64              `json:"dominantSpeakerChanges"`
	SpeakerTime            int64              `json:"speakerTime"`
	Sentiment              Sentiment          `json:"sentiment"`
	E2EPings               map[string]E2EPing `json:"e2epings,omitempty"`
	Metrics                Metrics            `json:"metrics"`
	Aggregates             stats.Aggregates   `json:"aggregates,omitempty"`
}

// Output is the extraction result: identifying metadata plus the
// computed features.
type Output struct {
	Metadata Metadata `json:"metadata"`
	Features Features `json:"features"`
}

// Extractor replays one session record entry at a time. The backend
// variant shares the shape but skips all stats-dependent processing.
type Extractor interface {
	HandleEntry(entry *domain.Entry, size int) error
	Extract() (*Output, error)
}
