package results_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/domcapture/internal/capture"
	"github.com/JakeFAU/domcapture/internal/results"
)

func TestAggregatorRecordAndSnapshot(t *testing.T) {
	t.Parallel()

	agg := results.NewAggregator()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, agg.Record("http://a.example", capture.Success("A", "/tmp/a.png", ts)))
	require.NoError(t, agg.Record("http://b.example", capture.LivenessFailed()))

	snap := agg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "http://a.example", snap[0].URL)
	assert.Equal(t, capture.StatusSuccess, snap[0].Outcome.Status)
	assert.Equal(t, "http://b.example", snap[1].URL)

	// The snapshot is a copy.
	snap[0].URL = "mutated"
	assert.Equal(t, "http://a.example", agg.Snapshot()[0].URL)

	counts := agg.Counts()
	assert.Equal(t, 1, counts[capture.StatusSuccess])
	assert.Equal(t, 1, counts[capture.StatusLivenessFailed])
	assert.Equal(t, 2, agg.Len())
}

func TestAggregatorRejectsDuplicate(t *testing.T) {
	t.Parallel()

	agg := results.NewAggregator()
	require.NoError(t, agg.Record("http://a.example", capture.Timeout()))
	err := agg.Record("http://a.example", capture.DriverError("boom"))
	require.ErrorIs(t, err, results.ErrAlreadyRecorded)

	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, capture.StatusTimeout, snap[0].Outcome.Status)
}

func TestAggregatorRejectsInvalidOutcome(t *testing.T) {
	t.Parallel()

	agg := results.NewAggregator()
	err := agg.Record("http://a.example", capture.Outcome{Status: "BOGUS"})
	require.Error(t, err)
	assert.Zero(t, agg.Len())
}

func TestAggregatorKeepsCarriageReturnDriverErrors(t *testing.T) {
	t.Parallel()

	agg := results.NewAggregator()
	outcome := capture.DriverErrorFrom(errors.New("net::ERR_FAILED\rat frame 1"))
	require.NoError(t, agg.Record("http://a.example/", outcome))

	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, capture.StatusDriverError, snap[0].Outcome.Status)
	assert.Equal(t, "net::ERR_FAILED", snap[0].Outcome.Message)
}

func TestAggregatorConcurrentWriters(t *testing.T) {
	t.Parallel()

	const writers, perWriter = 8, 50
	agg := results.NewAggregator()
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				url := fmt.Sprintf("http://host/%d/%d", w, i)
				if err := agg.Record(url, capture.Timeout()); err != nil {
					t.Errorf("Record(%s) error = %v", url, err)
				}
				_ = agg.Snapshot()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, writers*perWriter, agg.Len())
}
