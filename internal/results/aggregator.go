// Package results collects per-URL capture outcomes shared by all workers.
package results

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// ErrAlreadyRecorded is returned when a URL already has an outcome.
var ErrAlreadyRecorded = errors.New("outcome already recorded")

// Aggregator is an append-only, completion-ordered list of records. It is safe
// for concurrent use.
type Aggregator struct {
	mu      sync.RWMutex
	records []capture.Record
	index   map[string]struct{}
	counts  map[capture.Status]int
}

// NewAggregator constructs an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		index:  make(map[string]struct{}),
		counts: make(map[capture.Status]int),
	}
}

// Record appends the outcome for url. A second record for the same URL is
// rejected and the first one is kept.
func (a *Aggregator) Record(url string, outcome capture.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("record %s: %w", url, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.index[url]; exists {
		return fmt.Errorf("record %s: %w", url, ErrAlreadyRecorded)
	}
	a.index[url] = struct{}{}
	a.records = append(a.records, capture.Record{URL: url, Outcome: outcome})
	a.counts[outcome.Status]++
	return nil
}

// Snapshot returns a copy of all records in completion order.
func (a *Aggregator) Snapshot() []capture.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]capture.Record, len(a.records))
	copy(out, a.records)
	return out
}

// Len returns the number of records so far.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Counts returns the number of records per status.
func (a *Aggregator) Counts() map[capture.Status]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[capture.Status]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
