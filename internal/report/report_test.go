package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/domcapture/internal/capture"
)

func sampleRecords(dir string) []capture.Record {
	ts := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	return []capture.Record{
		{URL: "http://example.com/", Outcome: capture.Success("Example <Domain>", filepath.Join(dir, "example.com_0123456789ab.png"), ts)},
		{URL: "http://bad.invalid/", Outcome: capture.LivenessFailed()},
		{URL: "http://slow.example/a", Outcome: capture.Timeout()},
		{URL: "http://slow.example/b", Outcome: capture.DriverError("net::ERR_CONNECTION_RESET\nstack")},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunDir(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, filepath.Join("screenshots", "20250102-030405"), RunDir("screenshots", ts))
}

func TestOpenCreatesFilesUpFront(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "run")
	b, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, b.Dir())

	assert.Equal(t, "URL,Status,Title,Timestamp,Screenshot\n", readFile(t, filepath.Join(dir, CSVName)))
	_, err = os.Stat(filepath.Join(dir, HTMLName))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, FailedDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestOpenNeverReusesRunDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "20250607-090000")
	first, err := Open(dir)
	require.NoError(t, err)
	defer first.Close()
	_, err = first.Write(sampleRecords(dir)[:1], time.Now(), false)
	require.NoError(t, err)

	second, err := Open(dir)
	require.NoError(t, err)
	defer second.Close()
	third, err := Open(dir)
	require.NoError(t, err)
	defer third.Close()

	assert.Equal(t, dir, first.Dir())
	assert.Equal(t, dir+"-2", second.Dir())
	assert.Equal(t, dir+"-3", third.Dir())
	assert.Contains(t, readFile(t, filepath.Join(dir, CSVName)), "http://example.com/")
	assert.Equal(t, "URL,Status,Title,Timestamp,Screenshot\n", readFile(t, filepath.Join(second.Dir(), CSVName)))
}

func TestOpenFailsOnUnwritableLocation(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err := Open(filepath.Join(file, "run"))
	require.Error(t, err)

	_, err = Open(" ")
	require.Error(t, err)
}

func TestWriteReports(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "run")
	b, err := Open(dir)
	require.NoError(t, err)

	records := sampleRecords(dir)
	summary, err := b.Write(records, time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 4, Successes: 1, Failures: 3, FailedHosts: 2}, summary)

	// #nosec G304 -- test reads from the controlled temp directory.
	f, err := os.Open(filepath.Join(dir, CSVName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"URL", "Status", "Title", "Timestamp", "Screenshot"}, rows[0])
	assert.Equal(t, []string{"http://example.com/", "SUCCESS", "Example <Domain>", "2025-06-07 08:09:10",
		filepath.Join(dir, "example.com_0123456789ab.png")}, rows[1])
	assert.Equal(t, []string{"http://bad.invalid/", "LIVENESS_FAILED", "N/A", "N/A", "N/A"}, rows[2])
	assert.Equal(t, []string{"http://slow.example/a", "TIMEOUT", "N/A", "N/A", "N/A"}, rows[3])
	assert.Equal(t, "DRIVER_ERROR", rows[4][1])

	html := readFile(t, filepath.Join(dir, HTMLName))
	assert.Contains(t, html, `<img src="example.com_0123456789ab.png" width="500"`)
	assert.Contains(t, html, `<a href="http://example.com/">http://example.com/</a>`)
	assert.Contains(t, html, "Example &lt;Domain&gt;")
	assert.NotContains(t, html, "bad.invalid")
	assert.NotContains(t, html, "slow.example")
	assert.NotContains(t, html, "partial")

	assert.Equal(t, "http://bad.invalid/ [LIVENESS_FAILED] Host did not respond or is down.\n",
		readFile(t, filepath.Join(dir, FailedDir, "bad.invalid.log")))
	slow := strings.Split(strings.TrimSpace(readFile(t, filepath.Join(dir, FailedDir, "slow.example.log"))), "\n")
	assert.Equal(t, []string{
		"http://slow.example/a [TIMEOUT] Timeout",
		"http://slow.example/b [DRIVER_ERROR] net::ERR_CONNECTION_RESET",
	}, slow)

	_, err = b.Write(records, time.Now(), false)
	require.ErrorIs(t, err, ErrAlreadyWritten)
}

func TestWritePartialReport(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "run")
	b, err := Open(dir)
	require.NoError(t, err)
	summary, err := b.Write(sampleRecords(dir)[:1], time.Now(), true)
	require.NoError(t, err)
	assert.True(t, summary.Partial)
	assert.Contains(t, readFile(t, filepath.Join(dir, HTMLName)), "results are partial")

	entries, err := os.ReadDir(filepath.Join(dir, FailedDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRelativeImage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.png", relativeImage("/out/run", "/out/run/a.png"))
	assert.Equal(t, "b.png", relativeImage("/out/run", "/elsewhere/b.png"))
	assert.Equal(t, "c.png", relativeImage("/out/run", "memory://c.png"))
}
