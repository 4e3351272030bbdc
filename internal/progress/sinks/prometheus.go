package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/domcapture/internal/progress"
)

// PrometheusSink exports capture progress metrics via Prometheus.
type PrometheusSink struct {
	runsStarted     prometheus.Counter
	capturesStarted prometheus.Counter
	capturesDone    *prometheus.CounterVec
	inFlight        prometheus.Gauge
	captureDuration *prometheus.HistogramVec
	hostWait        prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "domcapture_runs_started_total",
			Help: "Total capture runs started.",
		}),
		capturesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "domcapture_captures_started_total",
			Help: "Capture attempts started.",
		}),
		capturesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domcapture_captures_total",
			Help: "Capture attempts completed partitioned by outcome status.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "domcapture_captures_in_flight",
			Help: "Capture attempts currently in progress.",
		}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "domcapture_capture_duration_seconds",
			Help:    "Capture duration partitioned by outcome status.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 25, 40, 60},
		}, []string{"status"}),
		hostWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "domcapture_host_wait_seconds",
			Help:    "Time spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.capturesStarted,
		s.capturesDone,
		s.inFlight,
		s.captureDuration,
		s.hostWait,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageCaptureStart:
			s.capturesStarted.Inc()
			s.inFlight.Inc()
		case progress.StageCaptureDone:
			status := string(evt.Status)
			s.capturesDone.WithLabelValues(status).Inc()
			s.inFlight.Dec()
			if evt.Dur > 0 {
				s.captureDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// ObserveHostWait records a per-host limiter wait. Its signature matches
// ratelimit.DelayObserver.
func (s *PrometheusSink) ObserveHostWait(_ string, d time.Duration) {
	s.hostWait.Observe(d.Seconds())
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
