package facade

import (
	"context"
	"sync"
	"time"

	"github.com/oarkflow/processguard/internal/model"
)

// Fake is an in-memory Facade used by component tests that need a
// deterministic OS layer: no real child is spawned, exit codes and
// samples are scripted by the test.
type Fake struct {
	mu sync.Mutex
	nextPID int
	exitCodes map[int]chan int
	samples map[int]model.MetricSample
	missing map[int]bool
	Spawned []SpawnSpec
}

// NewFake constructs an empty Fake facade.
func NewFake() *Fake {
	return &Fake{
		nextPID: 100,
		exitCodes: map[int]chan int{},
		samples: map[int]model.MetricSample{},
		missing: map[int]bool{},
	}
}

func (f *Fake) Spawn(ctx context.Context, spec SpawnSpec) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Spawned = append(f.Spawned, spec)
	pid := f.nextPID
	f.nextPID++
	f.exitCodes[pid] = make(chan int, 1)
	return &Handle{PID: pid, PGID: pid}, nil
}

func (f *Fake) Signal(h *Handle, kind SignalKind) error { return nil }

func (f *Fake) WaitExit(h *Handle) (int, error) {
	f.mu.Lock()
	ch := f.exitCodes[h.PID]
	f.mu.Unlock()
	code := <-ch
	return code, nil
}

// Exit scripts an exit code for a previously spawned PID.
func (f *Fake) Exit(pid, code int) {
	f.mu.Lock()
	ch, ok := f.exitCodes[pid]
	f.mu.Unlock()
	if ok {
		ch <- code
	}
}

// SetSample scripts the sample returned for pid.
func (f *Fake) SetSample(pid int, s model.MetricSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[pid] = s
}

// SetMissing marks pid as gone so Sample returns NotFound.
func (f *Fake) SetMissing(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[pid] = true
}

func (f *Fake) Sample(pid int) (model.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[pid] {
		return model.MetricSample{}, &model.NotFoundError{Kind: "pid"}
	}
	if s, ok := f.samples[pid]; ok {
		return s, nil
	}
	return model.MetricSample{Timestamp: time.Now()}, nil
}

func (f *Fake) ListConnections() ([]ConnInfo, error) { return nil, nil }

func (f *Fake) HostMetrics() (HostMetrics, error) { return HostMetrics{}, nil }
