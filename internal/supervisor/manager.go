// Package supervisor implements the process-supervisor state machine from
// spec.md §4: one Instance per supervised process, each driven by its own
// mailbox goroutine, coordinated by a Manager that owns the dependency
// graph, the OS facade, log routing, and the alert bus. Grounded on the
// teacher's Supervisor/spawnAndMonitor, reshaped from one supervisor-wide
// loop into a mailbox per process per spec.md §9's design note.
package supervisor

import (
	"log/slog"
	"os"
	"sync"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/graph"
	"github.com/oarkflow/processguard/internal/logs"
	"github.com/oarkflow/processguard/internal/model"
)

// Manager owns every process instance and the shared collaborators each
// instance's mailbox worker reaches out to.
type Manager struct {
	facade facade.Facade
	logs *logs.Manager
	alerts *alert.Bus

	mu sync.RWMutex
	graph *graph.Graph
	instances map[string]*Instance
}

// New constructs a Manager with no registered processes.
func New(f facade.Facade, l *logs.Manager, a *alert.Bus) *Manager {
	return &Manager{
		facade: f,
		logs: l,
		alerts: a,
		graph: graph.New(),
		instances: map[string]*Instance{},
	}
}

// Register adds a process descriptor to the manager, starting its mailbox
// worker goroutine. It does not start the process itself. Calling Register
// again for a known name replaces its descriptor and its dependency edges
// without restarting the instance's mailbox worker; the crash-engine policy
// built at first registration stays in effect.
func (m *Manager) Register(desc model.ProcessDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop the name's previous outgoing edges, keeping the edges of the
	// processes that depend on it.
	dependents := m.graph.Dependents(desc.Name)
	m.graph.RemoveNode(desc.Name)
	m.graph.AddNode(desc.Name)
	for _, d := range dependents {
		m.graph.AddEdge(d, desc.Name)
	}
	for _, dep := range desc.Dependencies {
		m.graph.AddEdge(desc.Name, dep)
	}

	if existing, ok := m.instances[desc.Name]; ok {
		existing.mu.Lock()
		existing.desc = desc
		existing.mu.Unlock()
		return
	}

	ins := newInstance(m, desc)
	m.instances[desc.Name] = ins
	go ins.run()
}

// Deregister removes name from the manager and ends its mailbox worker. It
// does not stop a running child; the caller is responsible for having
// already stopped the process, and Deregister does not block on it.
func (m *Manager) Deregister(name string) {
	m.mu.Lock()
	ins, ok := m.instances[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.instances, name)
	m.graph.RemoveNode(name)
	m.mu.Unlock()

	ins.shutdown()
	_ = m.logs.Close(name)
}

// Get returns the named instance, if registered.
func (m *Manager) Get(name string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ins, ok := m.instances[name]
	return ins, ok
}

// Names returns every registered process name, topologically ordered
// (dependencies before dependents) — the order used for auto-start on
// daemon boot, per spec.md §9's second open-question recommendation.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.TopoOrder()
}

// Snapshots returns a point-in-time view of every registered instance.
func (m *Manager) Snapshots() []model.InstanceSnapshot {
	m.mu.RLock()
	names := make([]string, 0, len(m.instances))
	instances := make([]*Instance, 0, len(m.instances))
	for n, ins := range m.instances {
		names = append(names, n)
		instances = append(instances, ins)
	}
	m.mu.RUnlock()
	out := make([]model.InstanceSnapshot, 0, len(instances))
	for _, ins := range instances {
		out = append(out, ins.Snapshot())
	}
	return out
}

// StartAll starts every registered process in dependency order, logging
// (not failing) on any single process's start error so one broken
// descriptor can't block the rest of the fleet from starting. A process
// whose dependencies all started successfully in this pass is started
// without the Running gate, since those dependencies are still Starting;
// a process with a dependency that failed to start is gated as usual.
func (m *Manager) StartAll() {
	started := map[string]bool{}
	for _, name := range m.Names() {
		ins, ok := m.Get(name)
		if !ok {
			continue
		}
		m.mu.RLock()
		deps := m.graph.Dependencies(name)
		m.mu.RUnlock()
		depsStarted := true
		for _, dep := range deps {
			depsStarted = depsStarted && started[dep]
		}
		if err := ins.Start(depsStarted); err != nil {
			slog.Warn("auto-start failed", slog.String("process", name), slog.String("err", err.Error()))
			continue
		}
		started[name] = true
	}
}

// StopAll signals every running instance to stop and waits for their
// mailbox workers to accept the stop request; it does not block for the
// child to actually exit.
func (m *Manager) StopAll() {
	m.mu.RLock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, ins := range m.instances {
		instances = append(instances, ins)
	}
	m.mu.RUnlock()
	for _, ins := range instances {
		if err := ins.Stop(); err != nil {
			slog.Warn("shutdown stop failed", slog.String("process", ins.Name()), slog.String("err", err.Error()))
		}
	}
}

// unsatisfiedDependencies reports which of name's declared dependencies are
// not currently Running, per spec.md §4.5's dependency-gate check.
func (m *Manager) unsatisfiedDependencies(name string) []string {
	m.mu.RLock()
	deps := m.graph.Dependencies(name)
	m.mu.RUnlock()

	var missing []string
	for _, dep := range deps {
		ins, ok := m.Get(dep)
		if !ok || ins.State() != model.StateRunning {
			missing = append(missing, dep)
		}
	}
	return missing
}

// cascade computes origin's cascade-shutdown closure and enqueues a
// cascade-stop message to every victim's own mailbox — never a reentrant
// call into the origin's, per spec.md §9.
func (m *Manager) cascade(origin string) {
	m.mu.RLock()
	victims := m.graph.CascadeClosure(origin)
	m.mu.RUnlock()

	for _, name := range victims {
		ins, ok := m.Get(name)
		if !ok {
			continue
		}
		m.alerts.Publish(model.AlertDependencyKilled, model.SeverityWarning, name,
			name+" stopped because its dependency "+origin+" was disabled", map[string]any{"origin": origin})
		ins.enqueueCascadeStop(origin)
	}
}

// Facade exposes the manager's OS facade. The sampler and the control plane
// are handed the facade directly and do not call this.
func (m *Manager) Facade() facade.Facade { return m.facade }

// Logs exposes the manager's log manager to the control plane's tail
// endpoint.
func (m *Manager) Logs() *logs.Manager { return m.logs }

// Alerts exposes the manager's alert bus. The control plane is handed the
// bus directly and does not call this.
func (m *Manager) Alerts() *alert.Bus { return m.alerts }

func osEnviron() []string {
	return append([]string{}, os.Environ()...)
}
