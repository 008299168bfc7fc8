// Package sampler implements the ticker-driven metric sampler from
// spec.md §4.2: one tick per monitor_interval, one sample per running
// instance, a rolling mean with hysteresis feeding the alert bus. Grounded
// on the teacher's own monitoring loop (spawnAndMonitor's periodic health
// probe), generalized into its own component per spec.md §2's component
// list.
package sampler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/metrics"
	"github.com/oarkflow/processguard/internal/model"
	"github.com/oarkflow/processguard/internal/ring"
	"github.com/oarkflow/processguard/internal/supervisor"
)

// hysteresisMargin is how far below threshold the rolling mean must fall
// before a threshold_cleared alert fires, per spec.md §4.2.
const hysteresisMargin = 5.0

// meanWindow is the default number of samples (W) the rolling mean is
// computed over; spec.md §4.2 defaults this to 6 (one minute at 10s ticks).
const meanWindow = 6

// Sampler owns the ring buffers and drives the sample/alert loop.
type Sampler struct {
	interval time.Duration
	facade facade.Facade
	manager *supervisor.Manager
	alerts *alert.Bus

	mu sync.Mutex
	buffers map[string]*ring.Buffer
	cpuAboveThreshold map[string]bool
	memAboveThreshold map[string]bool

	lastTick time.Time
	lastTickMu sync.RWMutex

	stop chan struct{}
	done chan struct{}
}

// New constructs a Sampler that queries facade for every process managed by
// mgr once per interval, publishing threshold alerts to bus.
func New(interval time.Duration, f facade.Facade, mgr *supervisor.Manager, bus *alert.Bus) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{
		interval: interval,
		facade: f,
		manager: mgr,
		alerts: bus,
		buffers: map[string]*ring.Buffer{},
		cpuAboveThreshold: map[string]bool{},
		memAboveThreshold: map[string]bool{},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run drives the tick loop until Stop is called; intended to run in its own
// goroutine for the lifetime of the daemon.
func (s *Sampler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

// Stop halts the tick loop and waits for the in-flight tick, if any, to
// finish.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}

// LastTick reports when the most recent tick completed, used by the
// control plane's /health endpoint (spec.md §6).
func (s *Sampler) LastTick() time.Time {
	s.lastTickMu.RLock()
	defer s.lastTickMu.RUnlock()
	return s.lastTick
}

func (s *Sampler) tick() {
	start := time.Now()
	defer func() {
		metrics.SamplerTickDuration.Observe(time.Since(start).Seconds())
		s.lastTickMu.Lock()
		s.lastTick = time.Now()
		s.lastTickMu.Unlock()
	}()

	for _, name := range s.manager.Names() {
		ins, ok := s.manager.Get(name)
		if !ok {
			continue
		}
		state := ins.State()
		if state != model.StateStarting && state != model.StateRunning && state != model.StateStopping {
			continue
		}
		pid, ok := ins.PID()
		if !ok {
			continue
		}
		s.sampleOne(ins, name, pid, state)
	}
}

func (s *Sampler) sampleOne(ins *supervisor.Instance, name string, pid int, state model.State) {
	sample, err := s.facade.Sample(pid)
	if err != nil {
		if _, ok := err.(*model.NotFoundError); ok {
			ins.NotifyDisappeared()
			return
		}
		metrics.SampleErrors.WithLabelValues(name).Inc()
		slog.Warn("sample failed", slog.String("process", name), slog.String("err", err.Error()))
		return
	}

	buf := s.bufferFor(name)
	buf.Push(sample)
	ins.NotifySampleObserved(sample)

	desc := ins.Snapshot().Descriptor
	s.checkThreshold(name, desc, buf)
}

func (s *Sampler) bufferFor(name string) *ring.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[name]
	if !ok {
		buf = ring.New(360)
		s.buffers[name] = buf
	}
	return buf
}

// Buffer exposes a process's ring buffer for read-only access; callers must
// not mutate the returned buffer. The control plane does not call it.
func (s *Sampler) Buffer(name string) (*ring.Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[name]
	return buf, ok
}

func (s *Sampler) checkThreshold(name string, desc model.ProcessDescriptor, buf *ring.Buffer) {
	cpuMean, memMean, ok := buf.MeanOverLast(meanWindow)
	if !ok {
		return
	}

	s.mu.Lock()
	cpuAbove := s.cpuAboveThreshold[name]
	memAbove := s.memAboveThreshold[name]
	s.mu.Unlock()

	if desc.CPUThresholdPercent > 0 {
		switch {
		case !cpuAbove && cpuMean >= desc.CPUThresholdPercent:
			s.alerts.Publish(model.AlertCPUHigh, model.SeverityWarning, name,
				name+" CPU usage crossed its threshold", map[string]any{"cpu_mean": cpuMean, "threshold": desc.CPUThresholdPercent})
			s.setFlag(name, true, &s.cpuAboveThreshold)
		case cpuAbove && cpuMean <= desc.CPUThresholdPercent-hysteresisMargin:
			s.alerts.Publish(model.AlertThresholdCleared, model.SeverityInfo, name,
				name+" CPU usage returned below its threshold", map[string]any{"cpu_mean": cpuMean})
			s.setFlag(name, false, &s.cpuAboveThreshold)
		}
	}

	if desc.MemoryThresholdPercent > 0 {
		switch {
		case !memAbove && memMean >= desc.MemoryThresholdPercent:
			s.alerts.Publish(model.AlertMemoryHigh, model.SeverityWarning, name,
				name+" memory usage crossed its threshold", map[string]any{"memory_mean": memMean, "threshold": desc.MemoryThresholdPercent})
			s.setFlag(name, true, &s.memAboveThreshold)
		case memAbove && memMean <= desc.MemoryThresholdPercent-hysteresisMargin:
			s.alerts.Publish(model.AlertThresholdCleared, model.SeverityInfo, name,
				name+" memory usage returned below its threshold", map[string]any{"memory_mean": memMean})
			s.setFlag(name, false, &s.memAboveThreshold)
		}
	}
}

func (s *Sampler) setFlag(name string, v bool, m *map[string]bool) {
	s.mu.Lock()
	(*m)[name] = v
	s.mu.Unlock()
}
