// Print session metrics
//
// Instruments for the print menu controller: session phase, job counts by
// outcome, deferred actions, browser cache efficiency and the live
// temperature/queue/estimate gauges taken from every rendered view.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"bytes"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"

	"lcdprint-go/pkg/header"
	"lcdprint-go/pkg/session"
)

const namespace = "lcdprint"

var (
	_ session.Observer = (*Metrics)(nil)
	_ session.Sink     = (*Metrics)(nil)
)

// Metrics holds every session instrument on its own registry.
type Metrics struct {
	// Session
	Phase            *prometheus.GaugeVec
	PhaseTransitions *prometheus.CounterVec

	// Jobs
	JobsStarted     *prometheus.CounterVec
	JobsFinished    *prometheus.CounterVec
	AbortSequences  prometheus.Counter
	DeferredActions *prometheus.CounterVec

	// Browser caches
	CacheLookups *prometheus.CounterVec

	// Live view
	QueueFill         prometheus.Gauge
	QueuePending      prometheus.Gauge
	Temperature       *prometheus.GaugeVec
	TargetTemperature *prometheus.GaugeVec
	Remaining         prometheus.Gauge
	Lamp              prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
	phase    session.Phase
}

// NewMetrics creates and registers all instruments.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Phase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "phase",
		Help:      "Current session phase (1 for the active phase, 0 otherwise)",
	}, []string{"phase"})
	m.PhaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phase_transitions_total",
		Help:      "Session phase transitions",
	}, []string{"from", "to"})

	m.JobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_started_total",
		Help:      "Print jobs started by file flavor",
	}, []string{"flavor"})
	m.JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Print jobs finished by outcome",
	}, []string{"outcome"})
	m.AbortSequences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "abort_sequences_total",
		Help:      "Jobs ended early by the abort sequence",
	})
	m.DeferredActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deferred_actions_total",
		Help:      "Actions retried later because the motion queue was full",
	}, []string{"action"})

	m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Browser cache lookups by cache and result",
	}, []string{"cache", "result"})

	m.QueueFill = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_fill_ratio",
		Help:      "Motion queue fill (0-1)",
	})
	m.QueuePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending",
		Help:      "Commands waiting in the motion queue",
	})
	m.Temperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "temperature_celsius",
		Help:      "Current heater temperature",
	}, []string{"heater"})
	m.TargetTemperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_temperature_celsius",
		Help:      "Heater target temperature",
	}, []string{"heater"})
	m.Remaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "remaining_seconds",
		Help:      "Estimated time left in the current job (-1 when unknown)",
	})
	m.Lamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lamp_percent",
		Help:      "Case light brightness",
	})

	m.registry.MustRegister(
		m.Phase, m.PhaseTransitions,
		m.JobsStarted, m.JobsFinished, m.AbortSequences, m.DeferredActions,
		m.CacheLookups,
		m.QueueFill, m.QueuePending, m.Temperature, m.TargetTemperature,
		m.Remaining, m.Lamp,
		collectors.NewGoCollector(),
	)

	for _, p := range session.Phases() {
		m.Phase.WithLabelValues(p.String())
	}
	m.Phase.WithLabelValues(session.Selecting.String()).Set(1)
	m.Remaining.Set(-1)
	return m
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PhaseChanged moves the phase gauge and counts the transition.
func (m *Metrics) PhaseChanged(from, to session.Phase) {
	m.mu.Lock()
	m.phase = to
	m.mu.Unlock()

	m.Phase.WithLabelValues(from.String()).Set(0)
	m.Phase.WithLabelValues(to.String()).Set(1)
	m.PhaseTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// JobStarted counts a started job.
func (m *Metrics) JobStarted(_ string, flavor header.Flavor) {
	m.JobsStarted.WithLabelValues(flavor.String()).Inc()
}

// JobFinished counts a finished job by outcome.
func (m *Metrics) JobFinished(_ string, outcome session.Outcome) {
	m.JobsFinished.WithLabelValues(outcome.String()).Inc()
	if outcome != session.OutcomeCompleted {
		m.AbortSequences.Inc()
	}
}

// CacheLookup records a browser cache hit or miss.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// Deferred counts an action postponed under backpressure.
func (m *Metrics) Deferred(action string) {
	m.DeferredActions.WithLabelValues(action).Inc()
}

// Render takes the live gauges from a view.
func (m *Metrics) Render(v session.View) {
	m.SetTemperatures(v.HotendTemp, v.HotendTarget, v.BedTemp, v.BedTarget)
	m.SetQueue(v.QueuePending, v.QueueCapacity)
	if v.RemainingKnown {
		m.Remaining.Set(v.Remaining.Seconds())
	} else {
		m.Remaining.Set(-1)
	}
	m.Lamp.Set(float64(v.Lamp))
}

// SetTemperatures updates the hotend and bed gauges.
func (m *Metrics) SetTemperatures(hotend, hotendTarget, bed, bedTarget float64) {
	m.Temperature.WithLabelValues("hotend").Set(hotend)
	m.Temperature.WithLabelValues("bed").Set(bed)
	m.TargetTemperature.WithLabelValues("hotend").Set(hotendTarget)
	m.TargetTemperature.WithLabelValues("bed").Set(bedTarget)
}

// SetQueue updates the motion queue gauges.
func (m *Metrics) SetQueue(pending, capacity int) {
	m.QueuePending.Set(float64(pending))
	if capacity > 0 {
		m.QueueFill.Set(float64(pending) / float64(capacity))
	} else {
		m.QueueFill.Set(0)
	}
}

// CurrentPhase returns the last phase reported.
func (m *Metrics) CurrentPhase() session.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Gather returns all metrics in Prometheus text format.
func (m *Metrics) Gather() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process-wide instance.
func GlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}
