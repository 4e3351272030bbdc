package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JakeFAU/domcapture/internal/cancel"
	"github.com/JakeFAU/domcapture/internal/capture"
	"github.com/JakeFAU/domcapture/internal/capture/capturetest"
	"github.com/JakeFAU/domcapture/internal/config"
	"github.com/JakeFAU/domcapture/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T, input string, threads int) config.Config {
	t.Helper()
	return config.Config{
		Input:  input,
		Output: config.OutputConfig{Dir: filepath.Join(t.TempDir(), "screenshots")},
		Capture: config.CaptureConfig{
			Threads:     threads,
			PageTimeout: time.Second,
		},
		Browser: config.BrowserConfig{Viewport: "1366x768"},
		Probe:   config.ProbeConfig{Timeout: time.Second},
	}
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func readCSV(t *testing.T, dir string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, report.CSVName))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_CompletesAllURLs(t *testing.T) {
	t.Parallel()

	input := writeInput(t,
		"# targets",
		"https://example.com",
		"",
		"https://EXAMPLE.com",
		"https://example.org/a",
		"https://example.org/b",
		"https://down.invalid",
		"http://[::1",
	)
	cfg := testConfig(t, input, 3)
	prober := capturetest.NewProber("https://down.invalid")
	sessions := capturetest.NewSessions()
	var console bytes.Buffer

	a := New(cfg, nil,
		WithProber(prober),
		WithSessions(sessions),
		WithClock(&capturetest.Clock{}),
		WithConsole(&console),
		WithRegistry(prometheus.NewRegistry()),
	)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Summary.Rows)
	assert.Equal(t, 3, res.Summary.Successes)
	assert.Equal(t, 1, res.Summary.Failures)
	assert.False(t, res.Summary.Partial)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, cancel.Terminated, a.Controller().State())

	assert.NotContains(t, sessions.Captured(), "https://down.invalid")
	assert.Len(t, sessions.Captured(), 3)

	rows := readCSV(t, res.RunDir)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"URL", "Status", "Title", "Timestamp", "Screenshot"}, rows[0])

	note, err := os.ReadFile(filepath.Join(res.RunDir, report.FailedDir, "down.invalid.log"))
	require.NoError(t, err)
	assert.Contains(t, string(note), "https://down.invalid")
	assert.Contains(t, string(note), string(capture.StatusLivenessFailed))

	html, err := os.ReadFile(filepath.Join(res.RunDir, report.HTMLName))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Title https://example.com")
	assert.NotContains(t, string(html), "down.invalid")

	out := console.String()
	assert.Contains(t, out, "capturing https://example.com")
	assert.Contains(t, out, "failed https://down.invalid")
	assert.Contains(t, out, "run finished: 4 rows")
}

func TestRun_SameSecondRunsKeepSeparateReports(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "", 1)
	at := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
	run := func(url string) Result {
		cfg.Input = writeInput(t, url)
		a := New(cfg, nil,
			WithProber(capturetest.NewProber()),
			WithSessions(capturetest.NewSessions()),
			WithClock(&capturetest.Clock{At: at}),
			WithConsole(&bytes.Buffer{}),
			WithRegistry(prometheus.NewRegistry()),
		)
		res, err := a.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	first := run("https://first.example")
	second := run("https://second.example")

	want := report.RunDir(cfg.Output.Dir, at)
	assert.Equal(t, want, first.RunDir)
	assert.Equal(t, want+"-2", second.RunDir)

	firstRows := readCSV(t, first.RunDir)
	require.Len(t, firstRows, 2)
	assert.Contains(t, firstRows[1][0], "first.example")
	secondRows := readCSV(t, second.RunDir)
	require.Len(t, secondRows, 2)
	assert.Contains(t, secondRows[1][0], "second.example")
}

func TestRun_InterruptWritesPartialReport(t *testing.T) {
	t.Parallel()

	const recorded = 3
	input := writeInput(t,
		"https://a.example", "https://b.example", "https://c.example",
		"https://d.example", "https://e.example", "https://f.example",
	)
	cfg := testConfig(t, input, 1)

	var exitCode atomic.Int32
	exitCode.Store(-1)
	ctrl := cancel.New(cancel.WithExit(func(code int) { exitCode.Store(int32(code)) }))

	var captures atomic.Int32
	sessions := capturetest.NewSessions()
	sessions.Fn = func(_ context.Context, url string) capture.Outcome {
		if captures.Add(1) == recorded+1 {
			ctrl.Interrupt()
			// Hold the in-flight capture until the partial report is written.
			deadline := time.Now().Add(5 * time.Second)
			for ctrl.State() == cancel.CancelRequested && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
		}
		return capture.Success("t", "/shots/"+capture.HostOf(url)+".png", time.Now().UTC())
	}

	a := New(cfg, nil,
		WithProber(capturetest.NewProber()),
		WithSessions(sessions),
		WithClock(&capturetest.Clock{}),
		WithController(ctrl),
		WithConsole(&bytes.Buffer{}),
		WithRegistry(prometheus.NewRegistry()),
	)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Summary.Partial)
	assert.Equal(t, recorded, res.Summary.Rows)
	assert.Len(t, readCSV(t, res.RunDir), recorded+1)
	assert.Len(t, sessions.Captured(), recorded+1)
	assert.Equal(t, cancel.Terminated, ctrl.State())
	assert.Equal(t, int32(-1), exitCode.Load())
}

func TestRun_DrainGraceAbortsStuckCaptures(t *testing.T) {
	t.Parallel()

	input := writeInput(t, "https://slow.example")
	cfg := testConfig(t, input, 1)
	ctrl := cancel.New(cancel.WithExit(func(int) {}))

	sessions := capturetest.NewSessions()
	sessions.Fn = func(ctx context.Context, _ string) capture.Outcome {
		ctrl.Interrupt()
		<-ctx.Done()
		return capture.Timeout()
	}

	a := New(cfg, nil,
		WithProber(capturetest.NewProber()),
		WithSessions(sessions),
		WithClock(&capturetest.Clock{}),
		WithController(ctrl),
		WithConsole(&bytes.Buffer{}),
		WithRegistry(prometheus.NewRegistry()),
		WithDrainGrace(50*time.Millisecond),
	)
	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Summary.Partial)
	assert.Equal(t, 0, res.Summary.Rows)
	assert.Equal(t, cancel.Terminated, ctrl.State())
}

func TestRun_ContextCanceled(t *testing.T) {
	t.Parallel()

	input := writeInput(t, "https://a.example", "https://b.example")
	cfg := testConfig(t, input, 1)
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sessions := capturetest.NewSessions()
	sessions.Fn = func(ctx context.Context, url string) capture.Outcome {
		cancelRun()
		return capture.Success("t", "/shots/x.png", time.Now().UTC())
	}

	a := New(cfg, nil,
		WithProber(capturetest.NewProber()),
		WithSessions(sessions),
		WithClock(&capturetest.Clock{}),
		WithConsole(&bytes.Buffer{}),
		WithRegistry(prometheus.NewRegistry()),
	)
	res, err := a.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Summary.Partial)
	assert.LessOrEqual(t, res.Summary.Rows, 1)
	assert.Equal(t, cancel.Terminated, a.Controller().State())
}

func TestRun_NoValidURLs(t *testing.T) {
	t.Parallel()

	input := writeInput(t, "# nothing", "", "http://[::1")
	a := New(testConfig(t, input, 1), nil, WithRegistry(prometheus.NewRegistry()))
	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrNoURLs)
}

func TestRun_UnwritableOutputFailsBeforeCapture(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := testConfig(t, "https://example.com", 1)
	cfg.Output.Dir = blocker
	prober := capturetest.NewProber()
	sessions := capturetest.NewSessions()

	a := New(cfg, nil, WithProber(prober), WithSessions(sessions), WithRegistry(prometheus.NewRegistry()))
	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare output")
	assert.Zero(t, prober.Calls())
	assert.Zero(t, sessions.Launched())
}

func TestParseURLList(t *testing.T) {
	t.Parallel()

	urls, err := ParseURLList(strings.NewReader("# header\n\n  https://a.example  \n#skip\nb.example\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "b.example"}, urls)
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	urls, err := ReadInput("https://single.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://single.example"}, urls)

	path := writeInput(t, "https://a.example", "https://b.example")
	urls, err = ReadInput(path)
	require.NoError(t, err)
	assert.Len(t, urls, 2)

	_, err = ReadInput("  ")
	require.Error(t, err)
}
