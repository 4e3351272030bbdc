package capture

import (
	"fmt"
	"regexp"
)

// snapshotHashLen is the number of hex digest characters kept in filenames.
const snapshotHashLen = 12

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeName replaces characters that are unsafe in filenames with underscores.
func SafeName(s string) string {
	s = invalidFilenameChars.ReplaceAllString(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// SnapshotFilename derives a deterministic image name from the URL's host and a
// short digest of the full URL, so that distinct paths on one host never collide.
func SnapshotFilename(rawURL string, hasher Hasher) (string, error) {
	digest, err := hasher.Hash([]byte(rawURL))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	if len(digest) > snapshotHashLen {
		digest = digest[:snapshotHashLen]
	}
	return fmt.Sprintf("%s_%s.png", SafeName(HostOf(rawURL)), digest), nil
}
