package crash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/model"
)

func TestZeroMaxCrashesDisablesOnFirstCrash(t *testing.T) {
	e := New(Policy{MaxCrashes: 0, Action: model.ActionDisable, AutoRestart: true, MaxRestarts: 10})
	d := e.OnExit(time.Now(), "p", 1, time.Second, false, time.Time{})
	require.Equal(t, Hold, d.Outcome)
	require.True(t, d.Disable)
}

func TestQuarantineAfterThreshold(t *testing.T) {
	e := New(Policy{MaxCrashes: 3, Window: 5 * time.Second, Action: model.ActionQuarantine, QuarantineFor: 30 * time.Second, AutoRestart: true, MaxRestarts: 10})
	now := time.Now()
	d := e.OnExit(now, "u", 1, 0, false, time.Time{})
	require.Equal(t, RestartAfter, d.Outcome)
	d = e.OnExit(now.Add(time.Second), "u", 1, 0, false, time.Time{})
	require.Equal(t, RestartAfter, d.Outcome)
	d = e.OnExit(now.Add(2*time.Second), "u", 1, 0, false, time.Time{})
	require.Equal(t, Hold, d.Outcome)
	require.False(t, d.QuarantineUntil.IsZero())
	require.Empty(t, e.Records())
}

func TestKillDependenciesCascades(t *testing.T) {
	e := New(Policy{MaxCrashes: 2, Window: time.Minute, Action: model.ActionKillDependencies, AutoRestart: true, MaxRestarts: 10})
	now := time.Now()
	e.OnExit(now, "db", 1, 0, false, time.Time{})
	d := e.OnExit(now.Add(time.Second), "db", 1, 0, false, time.Time{})
	require.Equal(t, CascadeShutdown, d.Outcome)
	require.True(t, d.Disable)
}

func TestDisabledOrQuarantinedHolds(t *testing.T) {
	e := New(Policy{MaxCrashes: 5, AutoRestart: true, MaxRestarts: 10})
	d := e.OnExit(time.Now(), "p", 1, 0, true, time.Time{})
	require.Equal(t, Hold, d.Outcome)

	future := time.Now().Add(time.Hour)
	d = e.OnExit(time.Now(), "p", 1, 0, false, future)
	require.Equal(t, Hold, d.Outcome)
}

func TestAutoRestartFalseHolds(t *testing.T) {
	e := New(Policy{MaxCrashes: 5, AutoRestart: false})
	d := e.OnExit(time.Now(), "p", 1, 0, false, time.Time{})
	require.Equal(t, Hold, d.Outcome)
}

func TestConsecutiveRestartCapDisablesRegardlessOfAction(t *testing.T) {
	e := New(Policy{MaxCrashes: 100, Window: time.Hour, Action: model.ActionQuarantine, AutoRestart: true, MaxRestarts: 2})
	now := time.Now()
	d := e.OnExit(now, "p", 1, 0, false, time.Time{})
	require.Equal(t, RestartAfter, d.Outcome)
	d = e.OnExit(now, "p", 1, 0, false, time.Time{})
	require.Equal(t, RestartAfter, d.Outcome)
	d = e.OnExit(now, "p", 1, 0, false, time.Time{})
	require.Equal(t, Hold, d.Outcome)
	require.True(t, d.Disable)
}

func TestNotifyUptimeResetsConsecutiveCounter(t *testing.T) {
	e := New(Policy{MaxCrashes: 100, AutoRestart: true, MaxRestarts: 1, StableUptime: 60 * time.Second})
	e.OnExit(time.Now(), "p", 1, 0, false, time.Time{})
	require.Equal(t, 1, e.ConsecutiveRestarts())
	e.NotifyUptime(61 * time.Second)
	require.Equal(t, 0, e.ConsecutiveRestarts())
}

func TestResetClearsRecordsAndCounter(t *testing.T) {
	e := New(Policy{MaxCrashes: 100, AutoRestart: true, MaxRestarts: 10})
	e.OnExit(time.Now(), "p", 1, 0, false, time.Time{})
	e.Reset()
	require.Empty(t, e.Records())
	require.Equal(t, 0, e.ConsecutiveRestarts())
}
