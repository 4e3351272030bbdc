package capture_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/domcapture/internal/capture"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare host", raw: "example.com", want: "http://example.com"},
		{name: "explicit http", raw: "http://example.com", want: "http://example.com"},
		{name: "uppercase host", raw: "HTTP://Example.COM/Path", want: "http://example.com/Path"},
		{name: "default http port", raw: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "default https port", raw: "https://example.com:443/", want: "https://example.com/"},
		{name: "fragment dropped", raw: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "custom port kept", raw: "example.com:8080/x", want: "http://example.com:8080/x"},
		{name: "surrounding space", raw: "  example.com  ", want: "http://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := capture.NormalizeURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	t.Parallel()

	_, err := capture.NormalizeURL("   ")
	require.ErrorIs(t, err, capture.ErrEmptyURL)

	_, err = capture.NormalizeURL("ftp://example.com")
	require.ErrorIs(t, err, capture.ErrUnsupportedScheme)

	_, err = capture.NormalizeURL("http://")
	require.Error(t, err)
}

func TestDedupeURLs(t *testing.T) {
	t.Parallel()

	urls, rejected := capture.DedupeURLs([]string{
		"example.com",
		"bad.invalid",
		"http://example.com",
		"",
		"ftp://nope",
		"bad.invalid",
	})
	assert.Equal(t, []string{"http://example.com", "http://bad.invalid"}, urls)
	require.Len(t, rejected, 1)
	assert.Equal(t, "ftp://nope", rejected[0].Raw)
	assert.True(t, errors.Is(rejected[0].Err, capture.ErrUnsupportedScheme))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", capture.HostOf("https://Example.com:8443/a"))
	assert.Equal(t, "unknown", capture.HostOf("::bad"))
}
