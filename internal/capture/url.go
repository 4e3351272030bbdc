package capture

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyURL is returned for blank input lines.
	ErrEmptyURL = errors.New("empty url")
	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// NormalizeURL turns raw input into the identity used for deduplication.
// A missing scheme defaults to http. Scheme and host are lowercased, default
// ports and fragments are removed.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Hostname() == "" {
		return "", fmt.Errorf("parse url: missing host in %q", raw)
	}

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// Rejected is an input entry that could not be normalized.
type Rejected struct {
	Raw string
	Err error
}

// DedupeURLs normalizes raw entries and drops duplicates, keeping first-seen
// order. Blank entries are skipped silently; invalid ones are returned.
func DedupeURLs(raw []string) ([]string, []Rejected) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	var rejected []Rejected
	for _, entry := range raw {
		normalized, err := NormalizeURL(entry)
		if errors.Is(err, ErrEmptyURL) {
			continue
		}
		if err != nil {
			rejected = append(rejected, Rejected{Raw: entry, Err: err})
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, rejected
}

// HostOf returns the lowercase hostname of a URL, or "unknown".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
