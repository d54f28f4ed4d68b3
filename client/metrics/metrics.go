// Package metrics exposes Prometheus collectors describing the calls
// made through a client.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "httpplus"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// Metrics holds the collectors for one client. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Calls         *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	InFlight      prometheus.Gauge
	UploadBytes   prometheus.Counter
	DownloadBytes prometheus.Counter
}

// New creates the collectors and registers them with reg. Collectors
// already registered with reg are reused, so several clients may share
// one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Call duration from admission to terminal event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_in_flight",
				Help:      "Number of calls submitted and not yet finished",
			},
		),
		UploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Request body bytes handed to the transport",
			},
		),
		DownloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Response body bytes read by calls, including drained and downloaded bodies",
			},
		),
	}

	var err error
	if m.Calls, err = register(reg, m.Calls); err != nil {
		return nil, err
	}
	if m.CallDuration, err = register(reg, m.CallDuration); err != nil {
		return nil, err
	}
	if m.InFlight, err = register(reg, m.InFlight); err != nil {
		return nil, err
	}
	if m.UploadBytes, err = register(reg, m.UploadBytes); err != nil {
		return nil, err
	}
	if m.DownloadBytes, err = register(reg, m.DownloadBytes); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}

	return c, nil
}

// Started records a call entering the dispatcher.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// Finished records the terminal outcome of a call started at start.
func (m *Metrics) Finished(method, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Calls.WithLabelValues(method, outcome).Inc()
	m.CallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Uploaded adds n request body bytes.
func (m *Metrics) Uploaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.UploadBytes.Add(float64(n))
}

// Downloaded adds n response body bytes, whoever read them.
func (m *Metrics) Downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadBytes.Add(float64(n))
}
