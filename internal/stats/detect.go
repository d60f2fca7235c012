package stats

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/dkeye/rtcpulse/internal/domain"
)

// DetectFormat determines which stats dialect a client speaks from its
// user agent and the versioned protocol it negotiated. Chromium-based
// clients switched to standard stats with the STANDARD protocol suffix;
// older ones still send legacy goog reports.
func DetectFormat(userAgent, clientProtocol string) domain.StatsFormat {
	if userAgent == "" {
		return domain.FormatUnsupported
	}

	browser := browserName(userAgent)

	_, statsType, _ := strings.Cut(clientProtocol, "_")

	switch {
	case strings.HasPrefix(browser, "Chrom"):
		if statsType == "STANDARD" {
			return domain.FormatChromeStandard
		}
		return domain.FormatChromeLegacy
	case strings.HasPrefix(browser, "Firefox"):
		return domain.FormatFirefox
	case strings.HasPrefix(browser, "Safari"):
		return domain.FormatSafari
	case browser == "ReactNative" || strings.HasPrefix(browser, "Electron"):
		return domain.FormatChromeStandard
	default:
		return domain.FormatUnsupported
	}
}

// ExtractorFor returns the dialect normalizer for a stats format.
// Safari shares the standard-compliant report shapes with Chrome.
func ExtractorFor(format domain.StatsFormat) (Extractor, bool) {
	switch format {
	case domain.FormatChromeStandard, domain.FormatSafari:
		return StandardExtractor{}, true
	case domain.FormatFirefox:
		return FirefoxExtractor{}, true
	case domain.FormatChromeLegacy:
		return LegacyExtractor{}, true
	default:
		return nil, false
	}
}

// BrowserDetails is identifying client software info included in the
// extracted metadata.
type BrowserDetails struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	MajorVersion string `json:"majorVersion,omitempty"`
	OS           string `json:"os"`
	UserAgent    string `json:"userAgent"`
}

// ParseBrowserDetails extracts browser name, version and os from the
// user agent. React native apps report a bespoke ua of the form
// "react-native/<version> (<os>)".
func ParseBrowserDetails(ua string) (BrowserDetails, bool) {
	if ua == "" {
		return BrowserDetails{}, false
	}

	if strings.HasPrefix(ua, "react-native") {
		return parseReactNativeUA(ua), true
	}

	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if name == "" {
		name = "unknown"
	}
	if version == "" {
		version = "-1"
	}

	d := BrowserDetails{
		Name:      name,
		Version:   version,
		OS:        parsed.OS(),
		UserAgent: ua,
	}
	if major, _, found := strings.Cut(version, "."); found || major != "" {
		d.MajorVersion = major
	}

	return d, true
}

func parseReactNativeUA(ua string) BrowserDetails {
	d := BrowserDetails{
		Name:      "ReactNative",
		Version:   "-1",
		UserAgent: ua,
	}
	if _, rest, ok := strings.Cut(ua, "/"); ok {
		version, tail, _ := strings.Cut(rest, "(")
		d.Version = strings.TrimSpace(version)
		if osPart, _, closed := strings.Cut(tail, ")"); closed {
			d.OS = osPart
		}
	}
	if major, _, found := strings.Cut(d.Version, "."); found || major != "" {
		d.MajorVersion = major
	}
	return d
}

func browserName(ua string) string {
	if strings.HasPrefix(ua, "react-native") {
		return "ReactNative"
	}
	if strings.Contains(ua, "Electron") {
		return "Electron"
	}
	name, _ := useragent.New(ua).Browser()
	return name
}
