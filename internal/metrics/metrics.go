// Package metrics registers the daemon's Prometheus instrumentation,
// generalizing the teacher's three global counters (restart/crash/uptime)
// into a full per-component metrics set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RestartTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_restart_total",
			Help: "Total number of times the supervisor restarted a child.",
		},
		[]string{"process", "reason"},
	)
	CrashTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_crash_total",
			Help: "Total number of times a child has crashed.",
		},
		[]string{"process"},
	)
	DisabledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_disabled_total",
			Help: "Total number of times a process was disabled by the crash engine.",
		},
		[]string{"process"},
	)
	QuarantinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_quarantined_total",
			Help: "Total number of times a process was quarantined.",
		},
		[]string{"process"},
	)
	SamplerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "processguard_sampler_tick_seconds",
			Help: "Wall time spent servicing one sampler tick across all processes.",
			Buckets: prometheus.DefBuckets,
		},
	)
	SampleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_sample_errors_total",
			Help: "Sampling errors other than NotFound, logged at warning level.",
		},
		[]string{"process"},
	)
	AlertsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_alerts_published_total",
			Help: "Alerts published by kind.",
		},
		[]string{"kind", "severity"},
	)
	AlertsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_alerts_suppressed_total",
			Help: "Alerts suppressed by deduplication within the cooldown window.",
		},
		[]string{"kind"},
	)
	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processguard_sink_failures_total",
			Help: "Notification sink delivery failures.",
		},
		[]string{"sink"},
	)
	UptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "processguard_uptime_seconds",
			Help: "Daemon uptime in seconds.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RestartTotal, CrashTotal, DisabledTotal, QuarantinedTotal,
		SamplerTickDuration, SampleErrors,
		AlertsPublished, AlertsSuppressed, SinkFailures,
		UptimeSeconds,
	)
}
