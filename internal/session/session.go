// Package session drives one browser through navigate, wait-for-ready and
// snapshot for a single URL at a time, turning every failure into an Outcome.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/domcapture/internal/capture"
)

// Driver is the browser-automation surface a Session needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Ready reports whether document.readyState is "complete".
	Ready(ctx context.Context) (bool, error)
	Title(ctx context.Context) (string, error)
	// Screenshot returns the rendered viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts a browser and returns a Driver bound to it.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Config controls page timing.
type Config struct {
	// PageTimeout bounds navigation (default 25s).
	PageTimeout time.Duration
	// SettleDelay is the pause after navigation before readiness polling.
	SettleDelay time.Duration
	// PollInterval spaces readiness checks (default 500ms).
	PollInterval time.Duration
	// PollAttempts bounds readiness checks (default 20).
	PollAttempts int
}

const (
	defaultPageTimeout  = 25 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultPollAttempts = 20
)

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = defaultPageTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = defaultPollAttempts
	}
	return c
}

// Session is a capture.Session backed by a single Driver. It is not safe for
// concurrent use; each worker owns its own.
type Session struct {
	cfg    Config
	driver Driver
	store  capture.BlobStore
	hasher capture.Hasher
	clock  capture.Clock
	logger *zap.Logger
}

// New wraps driver in a Session.
func New(
	driver Driver,
	store capture.BlobStore,
	hasher capture.Hasher,
	clock capture.Clock,
	cfg Config,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:    cfg.withDefaults(),
		driver: driver,
		store:  store,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
}

// Capture renders url and saves its snapshot. It never returns an error: every
// failure is classified into the returned Outcome.
func (s *Session) Capture(ctx context.Context, url string) capture.Outcome {
	if err := s.navigate(ctx, url); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Debug("navigation timed out", zap.String("url", url), zap.Duration("timeout", s.cfg.PageTimeout))
			return capture.Timeout()
		}
		return capture.DriverErrorFrom(err)
	}

	if err := s.waitReady(ctx, url); err != nil {
		return capture.DriverErrorFrom(err)
	}

	title, err := s.driver.Title(ctx)
	if err != nil {
		return capture.DriverErrorFrom(fmt.Errorf("read title: %w", err))
	}

	path, err := s.snapshot(ctx, url)
	if err != nil {
		return capture.DriverErrorFrom(err)
	}
	return capture.Success(title, path, s.clock.Now())
}

// Close releases the browser.
func (s *Session) Close() error {
	if err := s.driver.Close(); err != nil {
		return fmt.Errorf("close driver: %w", err)
	}
	return nil
}

func (s *Session) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()
	err := s.driver.Navigate(navCtx, url)
	if err == nil {
		return nil
	}
	// Some drivers surface the expired deadline as a generic error.
	if ctx.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("navigate: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("navigate: %w", err)
}

// waitReady polls readiness after the settle delay and proceeds regardless once
// the attempt bound is reached.
func (s *Session) waitReady(ctx context.Context, url string) error {
	if err := s.clock.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	for attempt := 1; attempt <= s.cfg.PollAttempts; attempt++ {
		ready, err := s.driver.Ready(ctx)
		if err != nil {
			return fmt.Errorf("check ready state: %w", err)
		}
		if ready {
			return nil
		}
		if attempt == s.cfg.PollAttempts {
			break
		}
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return fmt.Errorf("wait ready state: %w", err)
		}
	}
	s.logger.Debug("page never reported complete, capturing anyway",
		zap.String("url", url), zap.Int("attempts", s.cfg.PollAttempts))
	return nil
}

func (s *Session) snapshot(ctx context.Context, url string) (string, error) {
	name, err := capture.SnapshotFilename(url, s.hasher)
	if err != nil {
		return "", err
	}
	png, err := s.driver.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	path, err := s.store.PutObject(ctx, name, "image/png", bytes.NewReader(png))
	if err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return path, nil
}

// Factory launches a fresh browser for each Session.
type Factory struct {
	launcher Launcher
	store    capture.BlobStore
	hasher   capture.Hasher
	clock    capture.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewFactory constructs a Factory.
func NewFactory(
	launcher Launcher,
	store capture.BlobStore,
	hasher capture.Hasher,
	clock capture.Clock,
	cfg Config,
	logger *zap.Logger,
) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		launcher: launcher,
		store:    store,
		hasher:   hasher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// NewSession launches a browser and wraps it.
func (f *Factory) NewSession(ctx context.Context) (capture.Session, error) {
	driver, err := f.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return New(driver, f.store, f.hasher, f.clock, f.cfg, f.logger), nil
}
