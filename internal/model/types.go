// Package model holds the shared data types for process descriptors,
// runtime instances, metric samples, crash records, and alerts.
package model

import (
	"time"
)

// State is a process instance's lifecycle state.
type State string

const (
	StateStopped     State = "stopped"
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateFailed      State = "failed"
	StateDisabled    State = "disabled"
	StateQuarantined State = "quarantined"
)

// CrashAction is the policy action taken once a process crosses its crash
// threshold.
type CrashAction string

const (
	ActionDisable         CrashAction = "disable"
	ActionQuarantine      CrashAction = "quarantine"
	ActionKillDependencies CrashAction = "kill_dependencies"
)

// ProcessDescriptor is the declared, persisted configuration for one
// supervised unit.
type ProcessDescriptor struct {
	Name string            `json:"name" yaml:"name"`
	Command string         `json:"command" yaml:"command"`
	WorkingDir string       `json:"working_dir" yaml:"working_dir"`
	Env map[string]string   `json:"env" yaml:"env"`
	Kind string             `json:"kind,omitempty" yaml:"kind,omitempty"`

	AutoRestart bool            `json:"auto_restart" yaml:"auto_restart"`
	MaxRestarts int             `json:"max_restarts" yaml:"max_restarts"`
	RestartDelaySeconds float64 `json:"restart_delay_seconds" yaml:"restart_delay_seconds"`
	StableUptimeSeconds float64 `json:"stable_uptime_seconds" yaml:"stable_uptime_seconds"`

	CPUThresholdPercent float64    `json:"cpu_threshold_percent" yaml:"cpu_threshold_percent"`
	MemoryThresholdPercent float64 `json:"memory_threshold_percent" yaml:"memory_threshold_percent"`

	MaxCrashes int                `json:"max_crashes" yaml:"max_crashes"`
	WindowSeconds float64         `json:"window_seconds" yaml:"window_seconds"`
	Action CrashAction            `json:"action" yaml:"action"`
	QuarantineSeconds float64     `json:"quarantine_seconds" yaml:"quarantine_seconds"`

	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	LogFile string        `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// WithDefaults fills in the default values spec.md calls for when a field
// is left at its zero value.
func (d ProcessDescriptor) WithDefaults() ProcessDescriptor {
	if d.StableUptimeSeconds == 0 {
		d.StableUptimeSeconds = 60
	}
	if d.Action == "" {
		d.Action = ActionDisable
	}
	if d.Env == nil {
		d.Env = map[string]string{}
	}
	return d
}

// MetricSample is one reading of a process's resource usage.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	CPUPercent float64  `json:"cpu_percent"`
	RSSBytes uint64      `json:"rss_bytes"`
	MemoryPercent float64 `json:"memory_percent"`
	Threads int           `json:"threads"`
	OpenFiles int         `json:"open_files"`
	Connections int       `json:"connections"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// CrashRecord is one unexpected-exit event for a process.
type CrashRecord struct {
	Process string        `json:"process"`
	Timestamp time.Time   `json:"timestamp"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// AlertSeverity classifies an alert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertKind identifies the condition that produced an alert.
type AlertKind string

const (
	AlertCPUHigh          AlertKind = "cpu_high"
	AlertMemoryHigh       AlertKind = "memory_high"
	AlertProcessCrashed   AlertKind = "process_crashed"
	AlertProcessDisabled  AlertKind = "process_disabled"
	AlertQuarantined      AlertKind = "quarantined"
	AlertDependencyKilled AlertKind = "dependency_killed"
	AlertThresholdCleared AlertKind = "threshold_cleared"
)

// AlertRecord is a single alert as exposed through the control plane.
type AlertRecord struct {
	ID string                 `json:"id"`
	Kind AlertKind             `json:"kind"`
	Severity AlertSeverity     `json:"severity"`
	Process string             `json:"process,omitempty"`
	Message string             `json:"message"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	AcknowledgedAt time.Time   `json:"acknowledged_at,omitempty"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

// Acknowledged reports whether the alert has been acknowledged.
func (a *AlertRecord) Acknowledged() bool { return !a.AcknowledgedAt.IsZero() }

// Resolved reports whether the alert has been resolved.
func (a *AlertRecord) Resolved() bool { return !a.ResolvedAt.IsZero() }

// InstanceSnapshot is a read-only, point-in-time view of a process
// instance, safe to hand to the control plane without holding the
// instance's own lock.
type InstanceSnapshot struct {
	Descriptor ProcessDescriptor `json:"descriptor"`
	State State                  `json:"state"`
	PID int                      `json:"pid,omitempty"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	TotalRestarts int            `json:"total_restarts"`
	ConsecutiveRestarts int      `json:"consecutive_restarts"`
	Disabled bool                `json:"disabled"`
	QuarantineUntil time.Time    `json:"quarantine_until,omitempty"`
	LatestSample *MetricSample   `json:"latest_sample,omitempty"`
	CrashRecords []CrashRecord   `json:"crash_records,omitempty"`
}
