// Package probe implements the HTTP HEAD liveness pre-check run before a page is
// handed to a browser.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Config controls probe behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Option customizes a Prober.
type Option func(*Prober)

// WithTransport replaces the HTTP transport (used by tests).
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Prober) {
		if rt != nil {
			p.transport = rt
		}
	}
}

// Prober issues HEAD requests through a colly collector. Redirects are followed
// and any response below 400 counts as alive.
type Prober struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
	logger    *zap.Logger
}

// New builds a Prober.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{cfg: cfg, transport: newHTTPTransport(), logger: logger}
	for _, opt := range opts {
		opt(p)
	}

	// Redirect checks run against the base collector, so revisits are allowed there too.
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(p.transport)
	c.SetRequestTimeout(cfg.Timeout)
	p.base = c
	return p
}

// Alive reports whether url answered the probe with a status below 400. Any
// network error counts as not alive.
func (p *Prober) Alive(ctx context.Context, url string) bool {
	status, err := p.Status(ctx, url)
	if err != nil {
		p.logger.Debug("liveness probe failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return status > 0 && status < http.StatusBadRequest
}

// Status performs the HEAD request and returns the final status code after
// redirects.
func (p *Prober) Status(ctx context.Context, url string) (int, error) {
	collector := p.base.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}

	var (
		status   int
		probeErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		probeErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- collector.Head(url)
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return status, fmt.Errorf("probe head: %w", err)
		}
		if probeErr != nil {
			return status, fmt.Errorf("probe response: %w", probeErr)
		}
		if status == 0 {
			return 0, errors.New("probe returned no response")
		}
		return status, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
