package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/JakeFAU/domcapture/internal/capture"
	"github.com/JakeFAU/domcapture/internal/progress"
)

// ConsoleSink prints one human-readable line per capture attempt.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink writes to out, or stdout when out is nil.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out}
}

// Consume writes a line for each capture event.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		line := formatLine(evt)
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(s.out, line); err != nil {
			return fmt.Errorf("write console line: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatLine(evt progress.Event) string {
	switch evt.Stage {
	case progress.StageCaptureStart:
		return fmt.Sprintf("[worker %d] capturing %s", evt.Worker, evt.URL)
	case progress.StageCaptureDone:
		if evt.Status == capture.StatusSuccess {
			return fmt.Sprintf("[worker %d] saved %s -> %s (%s)",
				evt.Worker, evt.URL, evt.Path, evt.Dur.Round(time.Millisecond))
		}
		return fmt.Sprintf("[worker %d] failed %s: %s: %s", evt.Worker, evt.URL, evt.Status, evt.Note)
	case progress.StageRunDone:
		return "run finished: " + evt.Note
	default:
		return ""
	}
}
