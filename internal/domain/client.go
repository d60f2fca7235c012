package domain

import "strings"

// StatsFormat identifies the vendor dialect of getStats reports a
// client produces. Feature extraction picks its normalizers by it.
type StatsFormat string

const (
	FormatChromeStandard StatsFormat = "chrome_standard"
	FormatChromeLegacy   StatsFormat = "chrome_legacy"
	FormatFirefox        StatsFormat = "firefox"
	FormatSafari         StatsFormat = "safari"
	FormatUnsupported    StatsFormat = "unsupported"
)

// ClientType classifies the connected telemetry source. Browser clients
// get the full extraction pipeline, backend components (bridge, focus,
// gateway, recorder) only identity and timing.
type ClientType string

const (
	ClientRTCStats    ClientType = "RTCSTATS_CLIENT"
	ClientJVB         ClientType = "JVB_CLIENT"
	ClientJicofo      ClientType = "JICOFO_CLIENT"
	ClientJigasi      ClientType = "JIGASI_CLIENT"
	ClientJibri       ClientType = "JIBRI_CLIENT"
	ClientUnsupported ClientType = "UNSUPPORTED_CLIENT"
)

// ClientTypeFromProtocol maps the negotiated websocket subprotocol to a
// client class. Backend components announce themselves with a suffix,
// browsers speak the versioned STANDARD protocol.
func ClientTypeFromProtocol(clientProtocol string) ClientType {
	switch {
	case strings.Contains(clientProtocol, "STANDARD"):
		return ClientRTCStats
	case strings.Contains(clientProtocol, "JIGASI"):
		return ClientJigasi
	case strings.Contains(clientProtocol, "JICOFO"):
		return ClientJicofo
	case strings.Contains(clientProtocol, "JIBRI"):
		return ClientJibri
	case strings.Contains(clientProtocol, "JVB"):
		return ClientJVB
	default:
		return ClientUnsupported
	}
}

// ConnectionInfo is captured once per connection at websocket accept
// time and written as the first line of every session record, so later
// extraction does not depend on live connection state.
type ConnectionInfo struct {
	Path           string      `json:"path"`
	Origin         string      `json:"origin"`
	URL            string      `json:"url"`
	UserAgent      string      `json:"userAgent"`
	ClientProtocol string      `json:"clientProtocol"`
	StatsFormat    StatsFormat `json:"statsFormat"`
	ClientType     ClientType  `json:"clientType"`
}

// SupportsFeatureExtraction reports whether the full stats pipeline
// applies to this client. React native builds are excluded until their
// stats shape settles.
func (ci ConnectionInfo) SupportsFeatureExtraction() bool {
	return ci.ClientType == ClientRTCStats && !strings.HasPrefix(ci.UserAgent, "react-native")
}
