package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status labels the variant held by an Outcome.
type Status string

// Outcome variants, as written to the Status column of the tabular report.
const (
	StatusSuccess        Status = "SUCCESS"
	StatusTimeout        Status = "TIMEOUT"
	StatusLivenessFailed Status = "LIVENESS_FAILED"
	StatusDriverError    Status = "DRIVER_ERROR"
)

// Placeholder values used when an outcome carries no title or artifact.
const (
	NoTitle      = "No Title"
	NotAvailable = "N/A"
)

// livenessNote is the diagnostic text kept for hosts that failed the pre-check.
const livenessNote = "Host did not respond or is down."

// Outcome is the tagged result of processing one URL. Only the fields relevant
// to Status are populated; use the constructors rather than building it by hand.
type Outcome struct {
	Status         Status    `json:"status"`
	Title          string    `json:"title,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Success builds a successful outcome. An empty title is replaced by NoTitle.
func Success(title, screenshotPath string, ts time.Time) Outcome {
	title = strings.TrimSpace(title)
	if title == "" {
		title = NoTitle
	}
	return Outcome{
		Status:         StatusSuccess,
		Title:          title,
		ScreenshotPath: screenshotPath,
		Timestamp:      ts,
	}
}

// Timeout marks a capture whose page load exceeded the navigation bound.
func Timeout() Outcome {
	return Outcome{Status: StatusTimeout, Message: "Timeout"}
}

// LivenessFailed marks a URL whose pre-check failed; no capture was attempted.
func LivenessFailed() Outcome {
	return Outcome{Status: StatusLivenessFailed, Message: livenessNote}
}

// DriverError records a browser failure, keeping only the first line of msg.
func DriverError(msg string) Outcome {
	line := FirstLine(msg)
	if line == "" {
		line = "unknown driver error"
	}
	return Outcome{Status: StatusDriverError, Message: line}
}

// DriverErrorFrom is DriverError for an error value.
func DriverErrorFrom(err error) Outcome {
	if err == nil {
		return DriverError("")
	}
	return DriverError(err.Error())
}

// Succeeded reports whether the outcome is a Success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Note returns the single-line diagnostic kept for failed outcomes.
func (o Outcome) Note() string {
	if o.Succeeded() {
		return ""
	}
	return o.Message
}

// Validate performs coarse validation on the variant payload.
func (o Outcome) Validate() error {
	switch o.Status {
	case StatusSuccess:
		if o.ScreenshotPath == "" {
			return errors.New("success requires screenshot path")
		}
		if o.Timestamp.IsZero() {
			return errors.New("success requires timestamp")
		}
	case StatusTimeout, StatusLivenessFailed:
	case StatusDriverError:
		if strings.ContainsAny(o.Message, "\r\n") {
			return errors.New("driver error message must be a single line")
		}
	default:
		return fmt.Errorf("unknown status %q", o.Status)
	}
	return nil
}

// Record pairs a URL with its outcome, as stored by the aggregator.
type Record struct {
	URL     string  `json:"url"`
	Outcome Outcome `json:"outcome"`
}

// FirstLine returns the first non-empty line of s, trimmed. Both \r and \n
// end a line.
func FirstLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' })
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
