// Package worker implements the per-worker capture loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/domcapture/internal/capture"
	"github.com/JakeFAU/domcapture/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// ID is the 1-based worker number used in logs and progress lines.
	ID int
	// Politeness is the pause after each capture attempt.
	Politeness time.Duration
	// RunID tags emitted progress events.
	RunID [16]byte
}

// Deps are the collaborators a Worker drives. Limiter and Emitter are optional.
type Deps struct {
	Queue    capture.Queue
	Recorder capture.Recorder
	Prober   capture.Prober
	Sessions capture.SessionFactory
	Limiter  capture.Limiter
	Cancel   capture.CancelSignal
	Clock    capture.Clock
	Emitter  progress.Emitter
}

// Worker drains the queue one URL at a time. It owns at most one Session,
// acquired on the first URL that passes the liveness probe and released when
// Run returns.
type Worker struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	session capture.Session
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run loops until the queue is empty, cancellation is requested or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	defer w.releaseSession()
	for {
		if w.stopping(ctx) {
			w.logger.Debug("worker stopping on cancellation")
			return
		}
		url, ok := w.deps.Queue.TryDequeue()
		if !ok {
			w.logger.Debug("queue drained")
			return
		}
		w.process(ctx, url)
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || w.deps.Cancel.Requested()
}

func (w *Worker) process(ctx context.Context, url string) {
	start := w.deps.Clock.Now()
	w.deps.Emitter.Emit(progress.Event{
		RunID:  w.cfg.RunID,
		TS:     start,
		Stage:  progress.StageCaptureStart,
		Worker: w.cfg.ID,
		Host:   capture.HostOf(url),
		URL:    url,
	})

	if !w.deps.Prober.Alive(ctx, url) {
		w.finish(url, capture.LivenessFailed(), start)
		return
	}

	// Items abandoned here were dequeued after the interrupt and are left out
	// of the partial report.
	if w.stopping(ctx) {
		w.logger.Debug("cancellation requested before capture", zap.String("url", url))
		return
	}

	outcome := w.capture(ctx, url)
	w.finish(url, outcome, start)
	w.pause(ctx)
}

func (w *Worker) capture(ctx context.Context, url string) capture.Outcome {
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, url); err != nil {
			return capture.DriverErrorFrom(err)
		}
	}
	if w.session == nil {
		sess, err := w.deps.Sessions.NewSession(ctx)
		if err != nil {
			w.logger.Error("browser launch failed", zap.Error(err))
			return capture.DriverErrorFrom(err)
		}
		w.session = sess
	}
	return w.session.Capture(ctx, url)
}

func (w *Worker) finish(url string, outcome capture.Outcome, start time.Time) {
	if err := w.deps.Recorder.Record(url, outcome); err != nil {
		w.logger.Error("record outcome failed", zap.String("url", url), zap.Error(err))
	}
	end := w.deps.Clock.Now()
	w.deps.Emitter.Emit(progress.CaptureDone(w.cfg.RunID, w.cfg.ID, url, outcome, end, end.Sub(start)))
}

// pause sleeps for the politeness delay, waking early on cancellation.
func (w *Worker) pause(ctx context.Context) {
	if w.cfg.Politeness <= 0 {
		return
	}
	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.deps.Cancel.Done():
			cancel()
		case <-sleepCtx.Done():
		}
	}()
	_ = w.deps.Clock.Sleep(sleepCtx, w.cfg.Politeness)
}

func (w *Worker) releaseSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Warn("session close failed", zap.Error(err))
	}
	w.session = nil
}
