// Package report writes the run directory outputs: the tabular report, the
// HTML gallery and per-host failure notes.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// Output names inside a run directory.
const (
	CSVName   = "report.csv"
	HTMLName  = "report.html"
	FailedDir = "failed"
	// RunDirLayout names run directories.
	RunDirLayout = "20060102-150405"
)

// ErrAlreadyWritten is returned when Write is called twice.
var ErrAlreadyWritten = errors.New("report already written")

// RunDir returns the run directory for a run started at ts.
func RunDir(base string, ts time.Time) string {
	return filepath.Join(base, ts.Format(RunDirLayout))
}

// Summary describes what a report contains.
type Summary struct {
	Rows        int
	Successes   int
	Failures    int
	FailedHosts int
	Partial     bool
}

// Builder owns the report files of one run. Open creates them up front so that
// an unwritable output location fails before any capture starts.
type Builder struct {
	mu      sync.Mutex
	dir     string
	csv     *CSVWriter
	html    *os.File
	written bool
}

// Open claims a fresh run directory, its failed/ subdirectory and both report
// files. When dir already exists the first free "dir-N" is used instead, so
// runs started within the same second never share files. Dir reports the
// directory actually created.
func Open(dir string) (*Builder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("report directory is required")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	dir, err := claimDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.Mkdir(filepath.Join(dir, FailedDir), 0o750); err != nil {
		return nil, fmt.Errorf("create failed directory: %w", err)
	}
	csvWriter, err := NewCSVWriter(filepath.Join(dir, CSVName))
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is built from the configured output directory.
	html, err := os.Create(filepath.Join(dir, HTMLName))
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("create html file: %w", err)
	}
	return &Builder{dir: dir, csv: csvWriter, html: html}, nil
}

// maxRunDirAttempts bounds the suffixes tried by claimDir.
const maxRunDirAttempts = 1000

func claimDir(dir string) (string, error) {
	for i := 1; i <= maxRunDirAttempts; i++ {
		candidate := dir
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", dir, i)
		}
		err := os.Mkdir(candidate, 0o750)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create run directory: %w", err)
		}
	}
	return "", fmt.Errorf("create run directory: %s and %d suffixed names already exist", dir, maxRunDirAttempts-1)
}

// Dir returns the run directory.
func (b *Builder) Dir() string {
	return b.dir
}

// Write emits every report from records (an aggregator snapshot) and closes the
// files. partial marks a run cut short by cancellation.
func (b *Builder) Write(records []capture.Record, generated time.Time, partial bool) (Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.written {
		return Summary{}, ErrAlreadyWritten
	}
	b.written = true

	summary := Summarize(records)
	summary.Partial = partial

	var errs []error
	if err := b.csv.Write(records); err != nil {
		errs = append(errs, err)
	}
	if err := writeHTML(b.html, b.dir, records, generated, partial); err != nil {
		errs = append(errs, err)
	}
	if err := writeFailureNotes(filepath.Join(b.dir, FailedDir), records); err != nil {
		errs = append(errs, err)
	}
	if err := b.closeFiles(); err != nil {
		errs = append(errs, err)
	}
	return summary, errors.Join(errs...)
}

// Close releases the files without writing rows. It is a no-op after Write.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.written {
		return nil
	}
	b.written = true
	return b.closeFiles()
}

func (b *Builder) closeFiles() error {
	var errs []error
	if err := b.csv.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.html.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close html file: %w", err))
	}
	return errors.Join(errs...)
}

// Summarize counts records by success and failure.
func Summarize(records []capture.Record) Summary {
	s := Summary{Rows: len(records)}
	hosts := make(map[string]struct{})
	for _, rec := range records {
		if rec.Outcome.Succeeded() {
			s.Successes++
			continue
		}
		s.Failures++
		hosts[capture.HostOf(rec.URL)] = struct{}{}
	}
	s.FailedHosts = len(hosts)
	return s
}

// writeFailureNotes writes failed/<host>.log with one line per failed URL.
func writeFailureNotes(dir string, records []capture.Record) error {
	byHost := make(map[string][]string)
	for _, rec := range records {
		if rec.Outcome.Succeeded() {
			continue
		}
		host := capture.HostOf(rec.URL)
		line := fmt.Sprintf("%s [%s] %s", rec.URL, rec.Outcome.Status, rec.Outcome.Note())
		byHost[host] = append(byHost[host], strings.TrimSpace(line))
	}
	hosts := make([]string, 0, len(byHost))
	for h := range byHost {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		path := filepath.Join(dir, capture.SafeName(host)+".log")
		body := strings.Join(byHost[host], "\n") + "\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			return fmt.Errorf("write failure note for %s: %w", host, err)
		}
	}
	return nil
}
