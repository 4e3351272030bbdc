package capture

import (
	"context"
	"io"
	"time"
)

// Queue hands out pending URLs to workers.
type Queue interface {
	// TryDequeue returns the next URL, or false once the queue is drained.
	TryDequeue() (string, bool)
}

// Recorder stores exactly one outcome per URL.
type Recorder interface {
	Record(url string, outcome Outcome) error
}

// Prober checks whether a URL responds before a full render is attempted.
type Prober interface {
	Alive(ctx context.Context, url string) bool
}

// Session renders and snapshots one URL at a time. It is owned by a single
// worker and must not be shared.
type Session interface {
	Capture(ctx context.Context, url string) Outcome
	Close() error
}

// SessionFactory acquires a new Session (one browser instance).
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// BlobStore writes raw artifacts and returns their location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests used for collision-resistant filenames.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and pauses (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// CancelSignal is the read side of the cancellation controller.
type CancelSignal interface {
	Requested() bool
	Done() <-chan struct{}
}

// Limiter throttles captures per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}
