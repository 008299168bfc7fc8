package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/logs"
	"github.com/oarkflow/processguard/internal/model"
)

func newTestManager(t *testing.T) (*Manager, *facade.Fake) {
	t.Helper()
	lm, err := logs.New(logs.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	bus := alert.New(alert.Options{})
	fake := facade.NewFake()
	return New(fake, lm, bus), fake
}

func waitForState(t *testing.T, ins *Instance, want model.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ins.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("process %s never reached state %s (stuck at %s)", ins.Name(), want, ins.State())
}

// S1: a process that crashes max_crashes times within window_seconds is
// quarantined and, once quarantine_seconds elapses, may start again.
func TestQuarantineAfterThreshold(t *testing.T) {
	mgr, fake := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{
		Name: "flaky", Command: "flaky", WorkingDir: ".",
		MaxCrashes: 2, WindowSeconds: 60,
		Action: model.ActionQuarantine, QuarantineSeconds: 0.05,
	})
	ins, _ := mgr.Get("flaky")

	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
	pid, _ := ins.PID()
	fake.Exit(pid, 1)
	waitForState(t, ins, model.StateFailed)

	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
	pid, _ = ins.PID()
	fake.Exit(pid, 1)
	waitForState(t, ins, model.StateQuarantined)

	err := ins.Start(false)
	require.Error(t, err)
	var qerr *model.QuarantinedError
	require.ErrorAs(t, err, &qerr)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
}

// S2: kill_dependencies disables the crashing process and stops every
// process that (transitively) depends on it, without disabling them.
func TestCascadeShutdown(t *testing.T) {
	mgr, fake := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{
		Name: "db", Command: "db", WorkingDir: ".",
		MaxCrashes: 1, WindowSeconds: 60, Action: model.ActionKillDependencies,
	})
	mgr.Register(model.ProcessDescriptor{
		Name: "api", Command: "api", WorkingDir: ".", Dependencies: []string{"db"},
	})

	db, _ := mgr.Get("db")
	apiIns, _ := mgr.Get("api")

	require.NoError(t, db.Start(false))
	waitForState(t, db, model.StateRunning)
	require.NoError(t, apiIns.Start(false))
	waitForState(t, apiIns, model.StateRunning)

	pid, _ := db.PID()
	fake.Exit(pid, 1)

	waitForState(t, db, model.StateDisabled)
	waitForState(t, apiIns, model.StateStopping)

	apiPID, _ := apiIns.PID()
	fake.Exit(apiPID, 0)
	waitForState(t, apiIns, model.StateStopped)

	// The victim is not disabled and may be restarted by the user.
	require.NoError(t, apiIns.Start(true))
	waitForState(t, apiIns, model.StateRunning)
}

// S4: force_enable clears the disabled flag, resets crash records, and
// starts the process immediately, bypassing quarantine.
func TestForceEnableClearsDisabledAndRestarts(t *testing.T) {
	mgr, fake := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{
		Name: "worker", Command: "worker", WorkingDir: ".",
		MaxCrashes: 1, WindowSeconds: 60, Action: model.ActionDisable,
	})
	ins, _ := mgr.Get("worker")

	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
	pid, _ := ins.PID()
	fake.Exit(pid, 1)
	waitForState(t, ins, model.StateDisabled)

	require.Error(t, ins.Start(false))

	require.NoError(t, ins.ForceEnable())
	waitForState(t, ins, model.StateRunning)
	require.Empty(t, ins.Snapshot().CrashRecords)
}

// S5: starting a process whose dependency is not Running is rejected with
// DependencyNotReadyError; it succeeds once the dependency is Running.
func TestDependencyGate(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{Name: "cache", Command: "cache", WorkingDir: "."})
	mgr.Register(model.ProcessDescriptor{Name: "app", Command: "app", WorkingDir: ".", Dependencies: []string{"cache"}})

	cache, _ := mgr.Get("cache")
	app, _ := mgr.Get("app")

	err := app.Start(false)
	require.Error(t, err)
	var derr *model.DependencyNotReadyError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, []string{"cache"}, derr.Missing)

	require.NoError(t, cache.Start(false))
	waitForState(t, cache, model.StateRunning)
	require.NoError(t, app.Start(false))
	waitForState(t, app, model.StateRunning)
}

// S6: stop sends SIGTERM and waits for the reaped exit to mark the process
// Stopped, without invoking the crash engine.
func TestGracefulStopDoesNotCountAsCrash(t *testing.T) {
	mgr, fake := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{Name: "svc", Command: "svc", WorkingDir: "."})
	ins, _ := mgr.Get("svc")

	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
	pid, _ := ins.PID()

	require.NoError(t, ins.Stop())
	waitForState(t, ins, model.StateStopping)
	fake.Exit(pid, 0)
	waitForState(t, ins, model.StateStopped)

	require.Empty(t, ins.Snapshot().CrashRecords)
	require.Equal(t, 0, ins.Snapshot().ConsecutiveRestarts)
}

func TestDisabledRejectsStart(t *testing.T) {
	mgr, fake := newTestManager(t)
	mgr.Register(model.ProcessDescriptor{
		Name: "one-shot", Command: "one-shot", WorkingDir: ".",
		MaxCrashes: 1, WindowSeconds: 60, Action: model.ActionDisable,
	})
	ins, _ := mgr.Get("one-shot")
	require.NoError(t, ins.Start(false))
	waitForState(t, ins, model.StateRunning)
	pid, _ := ins.PID()
	fake.Exit(pid, 1)
	waitForState(t, ins, model.StateDisabled)

	err := ins.Start(false)
	require.Error(t, err)
	var derr *model.DisabledError
	require.ErrorAs(t, err, &derr)
}
