// Package app coordinates one capture run: it loads the input, wires the
// worker pool to its collaborators, waits for completion or cancellation and
// writes the reports.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	googleuuid "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/domcapture/internal/api"
	"github.com/JakeFAU/domcapture/internal/browser/chromedp"
	"github.com/JakeFAU/domcapture/internal/cancel"
	"github.com/JakeFAU/domcapture/internal/capture"
	"github.com/JakeFAU/domcapture/internal/clock/system"
	"github.com/JakeFAU/domcapture/internal/config"
	"github.com/JakeFAU/domcapture/internal/dispatcher"
	"github.com/JakeFAU/domcapture/internal/hash/sha256"
	"github.com/JakeFAU/domcapture/internal/id/uuid"
	"github.com/JakeFAU/domcapture/internal/policy/ratelimit"
	"github.com/JakeFAU/domcapture/internal/probe"
	"github.com/JakeFAU/domcapture/internal/progress"
	"github.com/JakeFAU/domcapture/internal/progress/sinks"
	"github.com/JakeFAU/domcapture/internal/queue/memory"
	"github.com/JakeFAU/domcapture/internal/report"
	"github.com/JakeFAU/domcapture/internal/results"
	"github.com/JakeFAU/domcapture/internal/session"
	"github.com/JakeFAU/domcapture/internal/storage/local"
	"github.com/JakeFAU/domcapture/internal/worker"
)

// ErrNoURLs is returned when the input holds no valid URL.
var ErrNoURLs = errors.New("no valid URLs in input")

const (
	drainSlack   = 5 * time.Second
	closeTimeout = 5 * time.Second
)

// Result describes a finished run.
type Result struct {
	RunID   string
	RunDir  string
	Total   int
	Summary report.Summary
}

// Option customizes an App. Tests use them to replace the browser and network.
type Option func(*App)

// WithProber replaces the HTTP liveness probe.
func WithProber(p capture.Prober) Option {
	return func(a *App) { a.prober = p }
}

// WithSessions replaces the browser-backed session factory.
func WithSessions(f capture.SessionFactory) Option {
	return func(a *App) { a.sessions = f }
}

// WithClock replaces the system clock.
func WithClock(c capture.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithController injects the cancellation controller.
func WithController(c *cancel.Controller) Option {
	return func(a *App) { a.ctrl = c }
}

// WithConsole sets where per-attempt progress lines are printed.
func WithConsole(w io.Writer) Option {
	return func(a *App) { a.console = w }
}

// WithRegistry sets the Prometheus registry for run metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithDrainGrace bounds how long in-flight captures may run after a partial
// report is written.
func WithDrainGrace(d time.Duration) Option {
	return func(a *App) { a.grace = d }
}

// App runs captures for one configuration.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	prober   capture.Prober
	sessions capture.SessionFactory
	clock    capture.Clock
	ctrl     *cancel.Controller
	console  io.Writer
	registry *prometheus.Registry
	grace    time.Duration
}

// New constructs an App. cfg must already be validated.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		console: os.Stdout,
		grace:   cfg.Capture.PageTimeout + cfg.Probe.Timeout + drainSlack,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.ctrl == nil {
		a.ctrl = cancel.New(cancel.WithLogger(logger.Named("cancel")))
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return a
}

// Controller returns the cancellation controller signals should be routed to.
func (a *App) Controller() *cancel.Controller {
	return a.ctrl
}

// Run executes the capture run. Failures that prevent capture from starting
// are returned as errors; per-URL failures only appear in the reports. A run
// cut short by cancellation returns a partial Summary and a nil error.
func (a *App) Run(ctx context.Context) (Result, error) {
	urls, err := a.loadURLs()
	if err != nil {
		return Result{}, err
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	parsedID, err := googleuuid.Parse(runID)
	if err != nil {
		return Result{}, fmt.Errorf("parse run id: %w", err)
	}
	runKey := progress.UUIDToBytes(parsedID)
	logger := a.logger.With(zap.String("run_id", runID))

	started := a.clock.Now()
	builder, err := report.Open(report.RunDir(a.cfg.Output.Dir, started))
	if err != nil {
		return Result{}, fmt.Errorf("prepare output: %w", err)
	}
	runDir := builder.Dir()
	store, err := local.New(local.Config{BaseDir: runDir})
	if err != nil {
		_ = builder.Close()
		return Result{}, fmt.Errorf("prepare snapshot store: %w", err)
	}

	queue := memory.NewQueue()
	total, err := queue.EnqueueAll(urls)
	if err != nil {
		_ = builder.Close()
		return Result{}, fmt.Errorf("load queue: %w", err)
	}
	agg := results.NewAggregator()

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		_ = builder.Close()
		return Result{}, fmt.Errorf("register metrics: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewConsoleSink(a.console),
		sinks.NewLogSink(logger.Named("capture")),
		promSink,
	)
	limiter := ratelimit.New(ratelimit.Config{HostQPS: a.cfg.Capture.HostQPS}, promSink.ObserveHostWait)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	serverDone := a.startServer(runCtx, api.Options{
		RunID:   runID,
		Queue:   queue,
		Hosts:   limiter,
		Records: agg,
	}, logger)

	pool := dispatcher.New(a.buildWorkers(runKey, queue, agg, limiter, hub, store, logger)...)
	logger.Info("capture run started",
		zap.Int("urls", total),
		zap.Int("workers", pool.Size()),
		zap.String("run_dir", runDir),
	)
	hub.Emit(progress.Event{
		RunID: runKey,
		TS:    a.clock.Now(),
		Stage: progress.StageRunStart,
		Note:  fmt.Sprintf("%d urls, %d workers", total, pool.Size()),
	})
	done := pool.Start(runCtx)

	var (
		summary  report.Summary
		writeErr error
	)
	select {
	case <-done:
		partial := ctx.Err() != nil || a.ctrl.Requested()
		summary, writeErr = builder.Write(agg.Snapshot(), a.clock.Now(), partial)
	case <-a.ctrl.Done():
		summary, writeErr = a.writePartial(builder, agg)
		a.drain(done, stopRun, logger)
	case <-ctx.Done():
		logger.Warn("run context canceled, writing partial report", zap.Error(ctx.Err()))
		summary, writeErr = a.writePartial(builder, agg)
		<-done
	}
	a.terminate(logger)

	hub.Emit(progress.Event{
		RunID: runKey,
		TS:    a.clock.Now(),
		Stage: progress.StageRunDone,
		Note:  summaryNote(summary, runDir),
	})
	closeCtx, cancelClose := context.WithTimeout(context.Background(), closeTimeout)
	defer cancelClose()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	stopRun()
	<-serverDone

	res := Result{RunID: runID, RunDir: runDir, Total: total, Summary: summary}
	if writeErr != nil {
		return res, fmt.Errorf("write reports: %w", writeErr)
	}
	logger.Info("capture run finished",
		zap.Int("rows", summary.Rows),
		zap.Int("successes", summary.Successes),
		zap.Int("failures", summary.Failures),
		zap.Int("failed_hosts", summary.FailedHosts),
		zap.Bool("partial", summary.Partial),
		zap.Any("counts", agg.Counts()),
		zap.Int64("dropped_events", hub.Dropped()),
		zap.String("run_dir", runDir),
	)
	return res, nil
}

func (a *App) loadURLs() ([]string, error) {
	raw, err := ReadInput(a.cfg.Input)
	if err != nil {
		return nil, err
	}
	urls, rejected := capture.DedupeURLs(raw)
	for _, r := range rejected {
		a.logger.Warn("skipping invalid url", zap.String("url", r.Raw), zap.Error(r.Err))
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

func (a *App) buildWorkers(
	runKey [16]byte,
	queue capture.Queue,
	recorder capture.Recorder,
	limiter capture.Limiter,
	emitter progress.Emitter,
	store capture.BlobStore,
	logger *zap.Logger,
) []dispatcher.Runner {
	prober := a.prober
	if prober == nil {
		prober = probe.New(probe.Config{
			Timeout:   a.cfg.Probe.Timeout,
			UserAgent: a.cfg.Browser.UserAgent,
		}, logger.Named("probe"))
	}
	sessions := a.sessions
	if sessions == nil {
		width, height := a.cfg.Browser.Size()
		launcher := chromedp.NewLauncher(chromedp.Config{
			ExecPath:  a.cfg.Browser.ChromePath,
			UserAgent: a.cfg.Browser.UserAgent,
			Width:     width,
			Height:    height,
		}, logger.Named("browser"))
		sessions = session.NewFactory(launcher, store, sha256.New(), a.clock, session.Config{
			PageTimeout: a.cfg.Capture.PageTimeout,
			SettleDelay: a.cfg.Capture.SettleDelay(),
		}, logger.Named("session"))
	}

	runners := make([]dispatcher.Runner, 0, a.cfg.Capture.Threads)
	for i := 1; i <= a.cfg.Capture.Threads; i++ {
		runners = append(runners, worker.New(worker.Deps{
			Queue:    queue,
			Recorder: recorder,
			Prober:   prober,
			Sessions: sessions,
			Limiter:  limiter,
			Cancel:   a.ctrl,
			Clock:    a.clock,
			Emitter:  emitter,
		}, worker.Config{
			ID:         i,
			Politeness: a.cfg.Capture.Politeness,
			RunID:      runKey,
		}, logger.Named("worker")))
	}
	return runners
}

// startServer serves opts over the status API when a listen address is set.
// The controller state, metrics registry and logger are filled in here.
func (a *App) startServer(ctx context.Context, opts api.Options, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if a.cfg.Server.Listen == "" {
		close(done)
		return done
	}
	opts.State = api.StateFunc(func() fmt.Stringer { return a.ctrl.State() })
	opts.Gatherer = a.registry
	opts.Logger = logger.Named("api")
	srv := api.NewServer(opts)
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx, a.cfg.Server.Listen); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return done
}

// writePartial reports exactly the outcomes recorded when cancellation was
// observed.
func (a *App) writePartial(builder *report.Builder, agg *results.Aggregator) (report.Summary, error) {
	records := agg.Snapshot()
	if a.ctrl.State() == cancel.CancelRequested {
		if err := a.ctrl.BeginDrain(); err != nil {
			a.logger.Warn("begin drain failed", zap.Error(err))
		}
	}
	return builder.Write(records, a.clock.Now(), true)
}

// drain waits for in-flight captures to finish, canceling them once the grace
// period elapses.
func (a *App) drain(done <-chan struct{}, stop context.CancelFunc, logger *zap.Logger) {
	timer := time.NewTimer(a.grace)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
		logger.Warn("in-flight captures exceeded drain grace, aborting", zap.Duration("grace", a.grace))
		stop()
	}
	<-done
}

func (a *App) terminate(logger *zap.Logger) {
	if a.ctrl.State() == cancel.CancelRequested {
		_ = a.ctrl.BeginDrain()
	}
	if err := a.ctrl.Terminate(); err != nil {
		logger.Warn("terminate failed", zap.Error(err), zap.Stringer("state", a.ctrl.State()))
	}
}

func summaryNote(s report.Summary, runDir string) string {
	note := fmt.Sprintf("%d rows, %d succeeded, %d failed, report in %s", s.Rows, s.Successes, s.Failures, runDir)
	if s.Partial {
		note += " (partial)"
	}
	return note
}
