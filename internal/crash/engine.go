// Package crash implements the sliding-window crash counter and the
// restart/disable/quarantine/kill-dependencies decision algorithm from
// spec.md §4.4, grounded on core/crash_manager.py's CrashManager but
// reshaped into a per-instance, allocation-light engine that the process
// supervisor owns and drives from within a single process's mailbox
// worker (so no locking is needed inside the engine itself).
package crash

import (
	"time"

	"github.com/oarkflow/processguard/internal/model"
)

// Policy is the crash-handling configuration for one process, taken
// directly from its descriptor.
type Policy struct {
	MaxCrashes int
	Window time.Duration
	Action model.CrashAction
	QuarantineFor time.Duration
	AutoRestart bool
	MaxRestarts int
	RestartDelay time.Duration
	StableUptime time.Duration
}

// Outcome is the action the engine decided on exit.
type Outcome int

const (
	Hold Outcome = iota
	RestartAfter
	CascadeShutdown
)

// Decision is the result of evaluating an exit against the policy.
type Decision struct {
	Outcome Outcome
	RestartDelay time.Duration
	Disable bool
	QuarantineUntil time.Time
	Alerts []PendingAlert
}

// PendingAlert is an alert the engine wants published; the caller (the
// process supervisor, which owns the Alert Bus handle) actually publishes
// it so the engine stays free of bus dependencies.
type PendingAlert struct {
	Kind model.AlertKind
	Severity model.AlertSeverity
	Message string
	Metadata map[string]any
}

// Engine tracks crash records and the consecutive-restart counter for one
// process instance.
type Engine struct {
	policy Policy
	records []model.CrashRecord
	consecutiveRestarts int
}

// New constructs an engine bound to policy.
func New(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// SetPolicy replaces the policy in place. The supervisor does not call it;
// a config reload leaves the policy built at first registration.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// Records returns a copy of the current crash-record window.
func (e *Engine) Records() []model.CrashRecord {
	out := make([]model.CrashRecord, len(e.records))
	copy(out, e.records)
	return out
}

// ConsecutiveRestarts reports the current consecutive-restart counter.
func (e *Engine) ConsecutiveRestarts() int { return e.consecutiveRestarts }

// Reset clears crash records and the consecutive-restart counter, used by
// force_enable and reset_crashes.
func (e *Engine) Reset() {
	e.records = nil
	e.consecutiveRestarts = 0
}

// NotifyUptime resets the consecutive-restart counter once a sample shows
// the process has been up for at least the policy's stable-uptime window,
// per spec.md §4.4 step 5.
func (e *Engine) NotifyUptime(uptime time.Duration) {
	if uptime >= e.policy.StableUptime {
		e.consecutiveRestarts = 0
	}
}

func (e *Engine) evict(now time.Time, process string) {
	if e.policy.Window <= 0 {
		// A zero window means "every crash is inside the window": nothing
		// to evict.
		return
	}
	cutoff := now.Add(-e.policy.Window)
	kept := e.records[:0]
	for _, r := range e.records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	e.records = kept
}

// OnExit runs the decision algorithm from spec.md §4.4 for an unexpected
// child exit. disabled and quarantineUntil reflect the instance's current
// sticky flags, owned by the caller.
func (e *Engine) OnExit(now time.Time, process string, exitCode int, duration time.Duration, disabled bool, quarantineUntil time.Time) Decision {
	e.records = append(e.records, model.CrashRecord{
		Process: process,
		Timestamp: now,
		ExitCode: exitCode,
		Duration: duration,
	})
	e.evict(now, process)

	if disabled || now.Before(quarantineUntil) {
		return Decision{Outcome: Hold}
	}

	if len(e.records) >= maxCrashesOrOne(e.policy.MaxCrashes) {
		return e.applyThresholdAction(now, process)
	}

	if !e.policy.AutoRestart {
		return Decision{Outcome: Hold}
	}

	e.consecutiveRestarts++
	if e.policy.MaxRestarts >= 0 && e.consecutiveRestarts > e.policy.MaxRestarts {
		// Independent cap: treat as disable regardless of configured action.
		return Decision{
			Outcome: Hold,
			Disable: true,
			Alerts: []PendingAlert{{
				Kind: model.AlertProcessDisabled,
				Severity: model.SeverityCritical,
				Message: process + " exceeded its consecutive-restart cap and was disabled",
				Metadata: map[string]any{"consecutive_restarts": e.consecutiveRestarts, "max_restarts": e.policy.MaxRestarts},
			}},
		}
	}

	return Decision{Outcome: RestartAfter, RestartDelay: e.policy.RestartDelay}
}

// maxCrashesOrOne implements "zero max_crashes means disable on first
// crash": the threshold check is len(records) >= max(1, MaxCrashes) only
// when MaxCrashes is positive; MaxCrashes == 0 means the very first crash
// record (len==1) already meets the threshold.
func maxCrashesOrOne(maxCrashes int) int {
	if maxCrashes <= 0 {
		return 1
	}
	return maxCrashes
}

func (e *Engine) applyThresholdAction(now time.Time, process string) Decision {
	switch e.policy.Action {
	case model.ActionQuarantine:
		until := now.Add(e.policy.QuarantineFor)
		e.records = nil
		return Decision{
			Outcome: Hold,
			QuarantineUntil: until,
			Alerts: []PendingAlert{{
				Kind: model.AlertQuarantined,
				Severity: model.SeverityWarning,
				Message: process + " quarantined after exceeding its crash threshold",
				Metadata: map[string]any{"quarantine_until": until},
			}},
		}
	case model.ActionKillDependencies:
		e.records = nil
		return Decision{
			Outcome: CascadeShutdown,
			Disable: true,
			Alerts: []PendingAlert{{
				Kind: model.AlertProcessDisabled,
				Severity: model.SeverityCritical,
				Message: process + " disabled after exceeding its crash threshold",
				Metadata: map[string]any{},
			}},
		}
	default: // model.ActionDisable
		e.records = nil
		return Decision{
			Outcome: Hold,
			Disable: true,
			Alerts: []PendingAlert{{
				Kind: model.AlertProcessDisabled,
				Severity: model.SeverityCritical,
				Message: process + " disabled after exceeding its crash threshold",
				Metadata: map[string]any{},
			}},
		}
	}
}
