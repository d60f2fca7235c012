package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/rtcpulse/internal/domain"
)

const (
	chromeUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
	firefoxUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/118.0"
	safariUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/605.1.15"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name     string
		ua       string
		protocol string
		want     domain.StatsFormat
	}{
		{"chrome standard", chromeUA, "3.1_STANDARD", domain.FormatChromeStandard},
		{"chrome legacy", chromeUA, "2.0_LEGACY", domain.FormatChromeLegacy},
		{"firefox", firefoxUA, "3.1_STANDARD", domain.FormatFirefox},
		{"safari", safariUA, "3.1_STANDARD", domain.FormatSafari},
		{"react native", "react-native/0.72.1 (iOS 17.0)", "3.1_STANDARD", domain.FormatChromeStandard},
		{"backend node client", "Node v20.5.1", "1.0_JICOFO", domain.FormatUnsupported},
		{"empty ua", "", "3.1_STANDARD", domain.FormatUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.ua, tc.protocol))
		})
	}
}

func TestExtractorForCoversSupportedFormats(t *testing.T) {
	for _, format := range []domain.StatsFormat{
		domain.FormatChromeStandard,
		domain.FormatChromeLegacy,
		domain.FormatFirefox,
		domain.FormatSafari,
	} {
		_, ok := ExtractorFor(format)
		assert.True(t, ok, "format %s", format)
	}

	_, ok := ExtractorFor(domain.FormatUnsupported)
	assert.False(t, ok)
}

func TestParseBrowserDetails(t *testing.T) {
	d, ok := ParseBrowserDetails(firefoxUA)
	assert.True(t, ok)
	assert.Equal(t, "Firefox", d.Name)
	assert.Equal(t, "118", d.MajorVersion)

	d, ok = ParseBrowserDetails("react-native/0.72.1 (iOS 17.0)")
	assert.True(t, ok)
	assert.Equal(t, "ReactNative", d.Name)
	assert.Equal(t, "0.72.1", d.Version)
	assert.Equal(t, "iOS 17.0", d.OS)

	_, ok = ParseBrowserDetails("")
	assert.False(t, ok)
}
