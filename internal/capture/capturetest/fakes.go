// Package capturetest provides in-memory fakes of the capture interfaces for
// session, worker and coordinator tests.
package capturetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// Prober reports every URL alive except those listed in Dead.
type Prober struct {
	mu    sync.Mutex
	dead  map[string]bool
	calls atomic.Int64
}

// NewProber returns a Prober that fails the given URLs.
func NewProber(dead ...string) *Prober {
	p := &Prober{dead: make(map[string]bool, len(dead))}
	for _, u := range dead {
		p.dead[u] = true
	}
	return p
}

// Alive implements capture.Prober.
func (p *Prober) Alive(_ context.Context, url string) bool {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead[url]
}

// Calls returns the number of probes issued.
func (p *Prober) Calls() int64 {
	return p.calls.Load()
}

// CaptureFunc decides the outcome of one capture.
type CaptureFunc func(ctx context.Context, url string) capture.Outcome

// Sessions is a capture.SessionFactory whose sessions delegate to Fn.
type Sessions struct {
	Fn        CaptureFunc
	LaunchErr error

	mu       sync.Mutex
	captured []string
	launched int
	closed   int
}

// NewSessions returns a factory whose captures all succeed.
func NewSessions() *Sessions {
	return &Sessions{}
}

// NewSession implements capture.SessionFactory.
func (s *Sessions) NewSession(context.Context) (capture.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LaunchErr != nil {
		return nil, s.LaunchErr
	}
	s.launched++
	return &session{parent: s}, nil
}

// Captured lists every URL handed to a session, in call order.
func (s *Sessions) Captured() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.captured...)
}

// Launched returns how many sessions were created.
func (s *Sessions) Launched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// Closed returns how many sessions were closed.
func (s *Sessions) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type session struct {
	parent *Sessions
}

func (s *session) Capture(ctx context.Context, url string) capture.Outcome {
	s.parent.mu.Lock()
	s.parent.captured = append(s.parent.captured, url)
	fn := s.parent.Fn
	s.parent.mu.Unlock()
	if fn != nil {
		return fn(ctx, url)
	}
	return capture.Success("Title "+url, "/shots/"+capture.HostOf(url)+".png", time.Now().UTC())
}

func (s *session) Close() error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.closed++
	return nil
}

// Clock is a capture.Clock whose Sleep returns immediately unless ctx is done.
// A non-zero At pins Now.
type Clock struct {
	At time.Time

	mu     sync.Mutex
	slept  time.Duration
	sleeps int
}

// Now implements capture.Clock.
func (c *Clock) Now() time.Time {
	if !c.At.IsZero() {
		return c.At
	}
	return time.Now().UTC()
}

// Sleep implements capture.Clock.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept += d
	c.sleeps++
	c.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns the number of Sleep calls.
func (c *Clock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
