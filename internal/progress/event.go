package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageCaptureStart Stage = "CAPTURE_START"
	StageCaptureDone  Stage = "CAPTURE_DONE"
	StageRunDone      Stage = "RUN_DONE"
)

// Event is a single progress milestone.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Worker is the 1-based worker number for capture stages.
	Worker int
	Host   string
	URL    string
	// Status is set on CAPTURE_DONE.
	Status capture.Status
	Title  string
	// Path is the saved snapshot for successful captures.
	Path string
	Dur  time.Duration
	// Note carries the failure reason or run summary.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCaptureStart:
		if e.URL == "" {
			return errors.New("capture start requires url")
		}
	case StageCaptureDone:
		if e.URL == "" {
			return errors.New("capture done requires url")
		}
		if e.Status == "" {
			return errors.New("capture done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// CaptureDone builds a CAPTURE_DONE event from an outcome.
func CaptureDone(runID [16]byte, worker int, url string, outcome capture.Outcome, ts time.Time, dur time.Duration) Event {
	if dur < 0 {
		dur = 0
	}
	return Event{
		RunID:  runID,
		TS:     ts,
		Stage:  StageCaptureDone,
		Worker: worker,
		Host:   capture.HostOf(url),
		URL:    url,
		Status: outcome.Status,
		Title:  outcome.Title,
		Path:   outcome.ScreenshotPath,
		Dur:    dur,
		Note:   outcome.Note(),
	}
}
