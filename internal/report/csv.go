package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// TimestampLayout formats capture timestamps in the tabular report.
const TimestampLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"URL", "Status", "Title", "Timestamp", "Screenshot"}

// CSVWriter writes one row per processed URL.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	// #nosec G304 -- filename is built from the configured output directory.
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends rows for records.
func (cw *CSVWriter) Write(records []capture.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	for _, rec := range records {
		if err := cw.writer.Write(row(rec)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		_ = cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if err := cw.file.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}
	return nil
}

func row(rec capture.Record) []string {
	out := rec.Outcome
	title, ts, shot := capture.NotAvailable, capture.NotAvailable, capture.NotAvailable
	if out.Succeeded() {
		title = out.Title
		shot = out.ScreenshotPath
	}
	if !out.Timestamp.IsZero() {
		ts = out.Timestamp.Format(TimestampLayout)
	}
	if title == "" {
		title = capture.NotAvailable
	}
	if shot == "" {
		shot = capture.NotAvailable
	}
	return []string{rec.URL, string(out.Status), title, ts, shot}
}
