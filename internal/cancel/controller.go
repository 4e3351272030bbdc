// Package cancel implements the process-wide cancellation state machine used to
// stop capture workers and produce a partial report on interrupt.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is a phase of the cancellation lifecycle.
type State int32

// Lifecycle phases. Transitions only move forward.
const (
	Running State = iota
	CancelRequested
	Draining
	Terminated
)

// String returns the label used in logs and the status API.
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case CancelRequested:
		return "CANCEL_REQUESTED"
	case Draining:
		return "DRAINING"
	case Terminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ForceExitCode is passed to the exit function on a second interrupt.
const ForceExitCode = 1

// ErrInvalidTransition is returned for out-of-order state changes.
var ErrInvalidTransition = errors.New("invalid cancellation transition")

// Option customizes a Controller.
type Option func(*Controller)

// WithExit overrides the function called on forced exit (os.Exit by default).
func WithExit(fn func(code int)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.exit = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns the cancellation flag. Signal delivery only flips state;
// report generation stays on the coordinating goroutine.
type Controller struct {
	mu     sync.Mutex
	state  atomic.Int32
	done   chan struct{}
	exit   func(int)
	logger *zap.Logger
}

// New constructs a Controller in the Running state.
func New(opts ...Option) *Controller {
	c := &Controller{
		done:   make(chan struct{}),
		exit:   os.Exit,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Requested reports whether cancellation has been requested.
func (c *Controller) Requested() bool {
	return c.State() == CancelRequested || c.State() == Draining
}

// Done is closed when cancellation is first requested.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Interrupt applies one external interrupt. The first moves Running to
// CancelRequested; another while CancelRequested or Draining force-exits with
// ForceExitCode. Interrupts after Terminated are ignored.
func (c *Controller) Interrupt() State {
	c.mu.Lock()
	current := c.State()
	switch current {
	case Running:
		c.state.Store(int32(CancelRequested))
		close(c.done)
		c.mu.Unlock()
		c.logger.Warn("interrupt received, finishing in-flight captures and writing partial report")
		return CancelRequested
	case CancelRequested, Draining:
		c.mu.Unlock()
		c.logger.Error("second interrupt received, forcing exit")
		_ = c.logger.Sync()
		c.exit(ForceExitCode)
		return current
	default:
		c.mu.Unlock()
		return current
	}
}

// BeginDrain moves CancelRequested to Draining while reports are written.
func (c *Controller) BeginDrain() error {
	return c.transition(CancelRequested, Draining)
}

// Terminate marks the run finished. It is valid from Running (normal
// completion) or Draining.
func (c *Controller) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case Running, Draining:
		c.state.Store(int32(Terminated))
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State(), Terminated)
	}
}

func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State(), to)
	}
	c.state.Store(int32(to))
	return nil
}

// Notify routes the given OS signals to Interrupt until ctx is done or the
// returned stop function is called.
func (c *Controller) Notify(ctx context.Context, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case sig := <-ch:
				c.logger.Info("signal received", zap.String("signal", sig.String()))
				c.Interrupt()
			case <-ctx.Done():
				return
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
			<-finished
		})
	}
}
