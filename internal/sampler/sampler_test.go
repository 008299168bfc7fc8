package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/logs"
	"github.com/oarkflow/processguard/internal/model"
	"github.com/oarkflow/processguard/internal/supervisor"
)

func TestCPUHighThenClearedWithHysteresis(t *testing.T) {
	lm, err := logs.New(logs.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	bus := alert.New(alert.Options{CooldownSeconds: 0.01})
	fake := facade.NewFake()
	mgr := supervisor.New(fake, lm, bus)

	mgr.Register(model.ProcessDescriptor{
		Name: "hot", Command: "hot", WorkingDir: ".",
		CPUThresholdPercent: 80,
	})
	ins, _ := mgr.Get("hot")
	require.NoError(t, ins.Start(false))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && ins.State() != model.StateRunning {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, model.StateRunning, ins.State())
	pid, _ := ins.PID()

	s := New(time.Hour, fake, mgr, bus)

	fake.SetSample(pid, model.MetricSample{CPUPercent: 90, Timestamp: time.Now()})
	for i := 0; i < 6; i++ {
		s.tick()
	}
	active := bus.List(true)
	cpuHighCount := countKind(active, model.AlertCPUHigh)
	require.Equal(t, 1, cpuHighCount)

	time.Sleep(20 * time.Millisecond)
	fake.SetSample(pid, model.MetricSample{CPUPercent: 74, Timestamp: time.Now()})
	for i := 0; i < 6; i++ {
		s.tick()
	}
	active = bus.List(true)
	require.Equal(t, 1, countKind(active, model.AlertThresholdCleared))
}

func countKind(records []model.AlertRecord, kind model.AlertKind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
