package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oarkflow/processguard/internal/crash"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/metrics"
	"github.com/oarkflow/processguard/internal/model"
	"github.com/oarkflow/processguard/internal/ring"
)

const (
	defaultGracefulShutdown = 10 * time.Second
	startingGrace = 1 * time.Second
)

type cmdStart struct {
	ignoreDeps bool
	resp chan error
}
type cmdStop struct{ resp chan error }
type cmdRestart struct{ resp chan error }
type cmdForceEnable struct{ resp chan error }
type cmdResetCrashes struct{ resp chan error }
type cmdChildExited struct {
	exitCode int
	duration time.Duration
}
type cmdDisappeared struct{}
type cmdGraceTimeout struct{ generation uint64 }
type cmdScheduledStart struct{ generation uint64 }
type cmdCascadeStop struct{ origin string }
type cmdSampleObserved struct{ sample model.MetricSample }
type cmdSnapshot struct{ resp chan model.InstanceSnapshot }
type cmdShutdown struct{}

// Instance is the per-process state machine from spec.md §4.5. All
// mutations are serialized through run(), its single mailbox consumer;
// read-only fields are exposed via a RWMutex-guarded snapshot for
// lock-free queries from the sampler and the control plane.
type Instance struct {
	manager *Manager
	name string
	mailbox *mailbox

	mu sync.RWMutex
	desc model.ProcessDescriptor
	state model.State
	handle *facade.Handle
	pid int
	startedAt time.Time
	totalRestarts int
	disabled bool
	quarantineUntil time.Time
	crashSnapshot []model.CrashRecord
	consecutiveRestarts int

	crashEngine *crash.Engine
	samples *ring.Buffer

	expectStop bool
	pendingRestart bool
	generation uint64
}

func newInstance(mgr *Manager, desc model.ProcessDescriptor) *Instance {
	ins := &Instance{
		manager: mgr,
		name: desc.Name,
		mailbox: newMailbox(),
		desc: desc,
		state: model.StateStopped,
		samples: ring.New(360),
	}
	ins.crashEngine = crash.New(policyFromDescriptor(desc))
	return ins
}

func policyFromDescriptor(d model.ProcessDescriptor) crash.Policy {
	return crash.Policy{
		MaxCrashes: d.MaxCrashes,
		Window: time.Duration(d.WindowSeconds * float64(time.Second)),
		Action: d.Action,
		QuarantineFor: time.Duration(d.QuarantineSeconds * float64(time.Second)),
		AutoRestart: d.AutoRestart,
		MaxRestarts: d.MaxRestarts,
		RestartDelay: time.Duration(d.RestartDelaySeconds * float64(time.Second)),
		StableUptime: time.Duration(d.StableUptimeSeconds * float64(time.Second)),
	}
}

// Name returns the process name.
func (ins *Instance) Name() string { return ins.name }

// State returns the current lifecycle state.
func (ins *Instance) State() model.State {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.state
}

// PID returns the current PID, if the process is in a state that owns one.
func (ins *Instance) PID() (int, bool) {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	if ins.state == model.StateStarting || ins.state == model.StateRunning || ins.state == model.StateStopping {
		return ins.pid, true
	}
	return 0, false
}

// Snapshot returns a read-only view of the instance for the control plane.
func (ins *Instance) Snapshot() model.InstanceSnapshot {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	snap := model.InstanceSnapshot{
		Descriptor: ins.desc,
		State: ins.state,
		PID: ins.pid,
		StartedAt: ins.startedAt,
		TotalRestarts: ins.totalRestarts,
		ConsecutiveRestarts: ins.consecutiveRestarts,
		Disabled: ins.disabled,
		QuarantineUntil: ins.quarantineUntil,
		CrashRecords: ins.crashSnapshot,
	}
	if latest, ok := ins.samples.Latest(); ok {
		s := latest
		snap.LatestSample = &s
	}
	return snap
}

// Buffer exposes the instance's own ring of observed samples, filled by
// NotifySampleObserved and read by Snapshot for LatestSample. The sampler
// keeps a separate ring per process name for its rolling means and does
// not use this one.
func (ins *Instance) Buffer() *ring.Buffer { return ins.samples }

// --- public command surface, each a synchronous round-trip through the mailbox ---

func (ins *Instance) Start(ignoreDeps bool) error {
	resp := make(chan error, 1)
	ins.mailbox.send(cmdStart{ignoreDeps: ignoreDeps, resp: resp})
	return <-resp
}

func (ins *Instance) Stop() error {
	resp := make(chan error, 1)
	ins.mailbox.send(cmdStop{resp: resp})
	return <-resp
}

func (ins *Instance) Restart() error {
	resp := make(chan error, 1)
	ins.mailbox.send(cmdRestart{resp: resp})
	return <-resp
}

func (ins *Instance) ForceEnable() error {
	resp := make(chan error, 1)
	ins.mailbox.send(cmdForceEnable{resp: resp})
	return <-resp
}

func (ins *Instance) ResetCrashes() error {
	resp := make(chan error, 1)
	ins.mailbox.send(cmdResetCrashes{resp: resp})
	return <-resp
}

// NotifyDisappeared is called by the sampler when sample(pid) returns
// NotFound: treated as an unexpected exit per spec.md §4.2 step 1.
func (ins *Instance) NotifyDisappeared() {
	ins.mailbox.send(cmdDisappeared{})
}

// NotifySampleObserved forwards an observed sample so the crash engine can
// reset its consecutive-restart counter once uptime crosses the stable
// threshold, and so Starting can promote to Running on first sample.
func (ins *Instance) NotifySampleObserved(s model.MetricSample) {
	ins.mailbox.send(cmdSampleObserved{sample: s})
}

// enqueueCascadeStop is sent by the manager to every victim in a
// kill_dependencies closure; never a reentrant call into the origin's own
// mailbox.
func (ins *Instance) enqueueCascadeStop(origin string) {
	ins.mailbox.send(cmdCascadeStop{origin: origin})
}

func (ins *Instance) shutdown() {
	ins.mailbox.send(cmdShutdown{})
}

// run is the sole consumer of ins.mailbox: every mutation of this
// instance's state happens here, serialized.
func (ins *Instance) run() {
	for {
		msg, ok := ins.mailbox.recv()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case cmdStart:
			m.resp <- ins.handleStart(m.ignoreDeps)
		case cmdStop:
			m.resp <- ins.handleStop()
		case cmdRestart:
			m.resp <- ins.handleRestart()
		case cmdForceEnable:
			m.resp <- ins.handleForceEnable()
		case cmdResetCrashes:
			ins.mu.Lock()
			ins.crashEngine.Reset()
			ins.consecutiveRestarts = 0
			ins.crashSnapshot = nil
			ins.mu.Unlock()
			m.resp <- nil
		case cmdChildExited:
			ins.handleChildExited(m.exitCode, m.duration)
		case cmdDisappeared:
			ins.handleDisappeared()
		case cmdGraceTimeout:
			ins.handleGraceTimeout(m.generation)
		case cmdScheduledStart:
			ins.handleScheduledStart(m.generation)
		case cmdCascadeStop:
			ins.handleCascadeStop()
		case cmdSampleObserved:
			ins.handleSampleObserved(m.sample)
		case cmdShutdown:
			return
		}
	}
}

func (ins *Instance) handleStart(ignoreDeps bool) error {
	ins.mu.RLock()
	disabled := ins.disabled
	quarantineUntil := ins.quarantineUntil
	state := ins.state
	desc := ins.desc
	ins.mu.RUnlock()

	if disabled {
		return &model.DisabledError{Process: ins.name}
	}
	if time.Now().Before(quarantineUntil) {
		return &model.QuarantinedError{Process: ins.name, Until: quarantineUntil.String()}
	}
	if state == model.StateRunning || state == model.StateStarting {
		return nil
	}

	if !ignoreDeps {
		missing := ins.manager.unsatisfiedDependencies(ins.name)
		if len(missing) > 0 {
			return &model.DependencyNotReadyError{Missing: missing}
		}
	}

	stdout, stderr := ins.manager.logs.Writers(ins.name, desc.LogFile)
	env := buildEnv(desc)

	ins.mu.Lock()
	ins.state = model.StateStarting
	ins.generation++
	gen := ins.generation
	ins.mu.Unlock()

	handle, err := ins.manager.facade.Spawn(context.Background(), facade.SpawnSpec{
		Command: desc.Command,
		Dir: desc.WorkingDir,
		Env: env,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		ins.mu.Lock()
		ins.state = model.StateFailed
		ins.mu.Unlock()
		ins.manager.alerts.Publish(model.AlertProcessCrashed, model.SeverityCritical, ins.name,
			"failed to spawn "+ins.name, map[string]any{"err": err.Error()})
		return err
	}

	ins.mu.Lock()
	ins.handle = handle
	ins.pid = handle.PID
	ins.startedAt = time.Now()
	ins.expectStop = false
	ins.mu.Unlock()

	go ins.waitAndNotify(handle)
	time.AfterFunc(startingGrace, func() { ins.mailbox.send(cmdGraceTimeout{generation: gen}) })

	return nil
}

func buildEnv(desc model.ProcessDescriptor) []string {
	base := osEnviron()
	for k, v := range desc.Env {
		base = append(base, k+"="+v)
	}
	return base
}

func (ins *Instance) waitAndNotify(h *facade.Handle) {
	code, err := ins.manager.facade.WaitExit(h)
	duration := time.Duration(0)
	ins.mu.RLock()
	if !ins.startedAt.IsZero() {
		duration = time.Since(ins.startedAt)
	}
	ins.mu.RUnlock()
	if err != nil {
		slog.Warn("wait_exit returned an error", slog.String("process", ins.name), slog.String("err", err.Error()))
	}
	ins.mailbox.send(cmdChildExited{exitCode: code, duration: duration})
}

func (ins *Instance) handleStop() error {
	ins.mu.RLock()
	state := ins.state
	handle := ins.handle
	ins.mu.RUnlock()

	if state == model.StateStopped {
		return nil
	}
	if state != model.StateRunning && state != model.StateStarting {
		// Failed/Disabled/Quarantined: nothing running to stop. Moving to
		// a new generation cancels a scheduled restart still pending.
		ins.mu.Lock()
		ins.generation++
		ins.mu.Unlock()
		return nil
	}

	ins.mu.Lock()
	ins.expectStop = true
	ins.pendingRestart = false
	ins.state = model.StateStopping
	gen := ins.generation
	ins.mu.Unlock()

	_ = ins.manager.facade.Signal(handle, facade.SigTerm)
	grace := defaultGracefulShutdown
	time.AfterFunc(grace, func() { ins.mailbox.send(cmdGraceTimeout{generation: gen}) })
	return nil
}

func (ins *Instance) handleRestart() error {
	ins.mu.RLock()
	state := ins.state
	ins.mu.RUnlock()
	if state == model.StateStopped || state == model.StateFailed {
		return ins.handleStart(false)
	}
	ins.mu.Lock()
	ins.pendingRestart = true
	ins.mu.Unlock()
	return ins.handleStop()
}

func (ins *Instance) handleForceEnable() error {
	ins.mu.Lock()
	ins.disabled = false
	ins.quarantineUntil = time.Time{}
	ins.crashEngine.Reset()
	ins.consecutiveRestarts = 0
	ins.crashSnapshot = nil
	ins.mu.Unlock()
	return ins.handleStart(false)
}

func (ins *Instance) handleGraceTimeout(generation uint64) {
	ins.mu.RLock()
	gen := ins.generation
	state := ins.state
	handle := ins.handle
	ins.mu.RUnlock()
	if generation != gen {
		return
	}
	if state == model.StateStarting {
		// Grace period elapsed without a sample; promote anyway per
		// spec.md §4.5: "move to Running ... or after a 1s grace."
		ins.mu.Lock()
		if ins.state == model.StateStarting {
			ins.state = model.StateRunning
		}
		ins.mu.Unlock()
		return
	}
	if state == model.StateStopping {
		_ = ins.manager.facade.Signal(handle, facade.SigKill)
	}
}

func (ins *Instance) handleScheduledStart(generation uint64) {
	ins.mu.RLock()
	gen := ins.generation
	state := ins.state
	ins.mu.RUnlock()
	if generation != gen || state != model.StateFailed {
		return
	}
	if err := ins.handleStart(false); err != nil {
		slog.Warn("scheduled restart failed", slog.String("process", ins.name), slog.String("err", err.Error()))
	}
}

func (ins *Instance) handleChildExited(exitCode int, duration time.Duration) {
	ins.mu.Lock()
	wasExpected := ins.expectStop
	pendingRestart := ins.pendingRestart
	ins.mu.Unlock()

	if wasExpected {
		ins.mu.Lock()
		ins.state = model.StateStopped
		ins.pid = 0
		ins.handle = nil
		ins.expectStop = false
		ins.pendingRestart = false
		ins.mu.Unlock()
		if pendingRestart {
			if err := ins.handleStart(false); err != nil {
				slog.Warn("post-stop restart failed", slog.String("process", ins.name), slog.String("err", err.Error()))
			}
		}
		return
	}

	ins.mu.RLock()
	curState := ins.state
	ins.mu.RUnlock()
	if curState == model.StateStopped || curState == model.StateDisabled || curState == model.StateQuarantined {
		// A stray exit notification for a handle we've already retired.
		return
	}

	ins.handleUnexpectedExit(exitCode, duration)
}

func (ins *Instance) handleDisappeared() {
	ins.mu.RLock()
	state := ins.state
	startedAt := ins.startedAt
	ins.mu.RUnlock()
	if state != model.StateRunning && state != model.StateStarting && state != model.StateStopping {
		return
	}
	duration := time.Duration(0)
	if !startedAt.IsZero() {
		duration = time.Since(startedAt)
	}
	ins.handleUnexpectedExit(-1, duration)
}

func (ins *Instance) handleUnexpectedExit(exitCode int, duration time.Duration) {
	metrics.CrashTotal.WithLabelValues(ins.name).Inc()

	ins.mu.RLock()
	disabled := ins.disabled
	quarantineUntil := ins.quarantineUntil
	ins.mu.RUnlock()

	decision := ins.crashEngine.OnExit(time.Now(), ins.name, exitCode, duration, disabled, quarantineUntil)

	ins.mu.Lock()
	ins.pid = 0
	ins.handle = nil
	ins.crashSnapshot = ins.crashEngine.Records()
	ins.consecutiveRestarts = ins.crashEngine.ConsecutiveRestarts()

	switch decision.Outcome {
	case crash.Hold:
		ins.state = model.StateFailed
		if decision.Disable {
			ins.disabled = true
			ins.state = model.StateDisabled
			ins.samples.Reset()
			metrics.DisabledTotal.WithLabelValues(ins.name).Inc()
		}
		if !decision.QuarantineUntil.IsZero() {
			ins.quarantineUntil = decision.QuarantineUntil
			ins.state = model.StateQuarantined
			metrics.QuarantinedTotal.WithLabelValues(ins.name).Inc()
		}
	case crash.RestartAfter:
		ins.state = model.StateFailed
		ins.totalRestarts++
		gen := ins.generation
		delay := decision.RestartDelay
		ins.mu.Unlock()
		time.AfterFunc(delay, func() { ins.mailbox.send(cmdScheduledStart{generation: gen}) })
		metrics.RestartTotal.WithLabelValues(ins.name, "crash").Inc()
		ins.publishDecisionAlerts(decision, exitCode)
		return
	case crash.CascadeShutdown:
		ins.disabled = true
		ins.state = model.StateDisabled
		ins.samples.Reset()
		metrics.DisabledTotal.WithLabelValues(ins.name).Inc()
	}
	ins.mu.Unlock()

	ins.publishDecisionAlerts(decision, exitCode)

	if decision.Outcome == crash.CascadeShutdown {
		ins.manager.cascade(ins.name)
	}
}

// publishDecisionAlerts publishes every alert the crash engine decided to
// raise, stamping the triggering exit code onto each alert's metadata
// (notably 127, "command not found", per spec.md §9's open-question
// resolution) without mutating the engine's own PendingAlert.Metadata map.
func (ins *Instance) publishDecisionAlerts(d crash.Decision, exitCode int) {
	for _, a := range d.Alerts {
		meta := make(map[string]any, len(a.Metadata)+1)
		for k, v := range a.Metadata {
			meta[k] = v
		}
		meta["exit_code"] = exitCode
		ins.manager.alerts.Publish(a.Kind, a.Severity, ins.name, a.Message, meta)
	}
}

func (ins *Instance) handleCascadeStop() {
	ins.mu.RLock()
	state := ins.state
	handle := ins.handle
	ins.mu.RUnlock()
	if state != model.StateRunning && state != model.StateStarting {
		return
	}
	ins.mu.Lock()
	ins.expectStop = true
	ins.pendingRestart = false
	ins.state = model.StateStopping
	gen := ins.generation
	ins.mu.Unlock()

	_ = ins.manager.facade.Signal(handle, facade.SigTerm)
	time.AfterFunc(defaultGracefulShutdown, func() { ins.mailbox.send(cmdGraceTimeout{generation: gen}) })
}

func (ins *Instance) handleSampleObserved(s model.MetricSample) {
	ins.mu.Lock()
	if ins.state == model.StateStarting {
		ins.state = model.StateRunning
	}
	ins.mu.Unlock()
	ins.crashEngine.NotifyUptime(time.Duration(s.UptimeSeconds * float64(time.Second)))
	ins.samples.Push(s)
}
